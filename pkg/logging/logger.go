package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/runt18/subversion/pkg/rules"
)

// Config holds logging configuration
type Config struct {
	DecisionLogPath string // Path to the decision log file, optional
}

var (
	decisionLog *log.Logger
	errorLog    *log.Logger
)

// Initialize sets up logging with the given configuration. Errors go to
// stderr; decisions are discarded unless a decision log path is set.
func Initialize(config *Config) error {
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	decisionLog = log.New(io.Discard, "", 0)

	if config.DecisionLogPath == "" {
		return nil
	}
	w, err := appendFile(config.DecisionLogPath)
	if err != nil {
		return fmt.Errorf("decision log: %w", err)
	}
	decisionLog = log.New(w, "", 0)
	return nil
}

// appendFile opens path for appending, creating it and its directory as
// needed.
func appendFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// LogDecision logs one access decision in a consistent format
func LogDecision(user, repository, path string, required rules.Rights, granted bool) {
	if user == "" {
		user = "anonymous"
	}

	status := "denied"
	if granted {
		status = "granted"
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf("[%s] user=%s required=%s", timestamp, user, required)

	if repository != "" {
		msg += fmt.Sprintf(" repository=%s", repository)
	}
	if path != "" {
		msg += fmt.Sprintf(" path=%s", path)
	}

	msg += fmt.Sprintf(" status=%s", status)

	decisionLog.Println(msg)
}

// LogError logs unexpected system errors to stderr
func LogError(operation string, err error, details ...interface{}) {
	msg := fmt.Sprintf("%s failed: %v", operation, err)

	for i := 0; i < len(details)-1; i += 2 {
		if key, ok := details[i].(string); ok {
			msg += fmt.Sprintf(" (%s: %v)", key, details[i+1])
		}
	}

	errorLog.Println(msg)
}
