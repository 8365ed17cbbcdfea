package rules

import (
	"fmt"

	"github.com/spf13/afero"
)

// Source provides a parsed authorization document.
type Source interface {
	Load() (*Document, error)
}

// FileSource loads the authorization rules from a file, with an optional
// separate groups file.
type FileSource struct {
	fs         afero.Fs
	rulesPath  string
	groupsPath string
}

// NewFileSource creates a source reading from the given paths on fs.
// groupsPath may be empty.
func NewFileSource(fs afero.Fs, rulesPath, groupsPath string) *FileSource {
	return &FileSource{
		fs:         fs,
		rulesPath:  rulesPath,
		groupsPath: groupsPath,
	}
}

// Load implements Source.
func (s *FileSource) Load() (*Document, error) {
	rulesFile, err := s.fs.Open(s.rulesPath)
	if err != nil {
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer rulesFile.Close()

	if s.groupsPath == "" {
		doc, err := Parse(rulesFile)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", s.rulesPath, err)
		}
		return doc, nil
	}

	groupsFile, err := s.fs.Open(s.groupsPath)
	if err != nil {
		return nil, fmt.Errorf("opening groups file: %w", err)
	}
	defer groupsFile.Close()

	doc, err := ParseWithGroups(rulesFile, groupsFile)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.rulesPath, err)
	}
	return doc, nil
}
