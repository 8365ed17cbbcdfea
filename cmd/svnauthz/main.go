package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/runt18/subversion/pkg/authz"
	"github.com/runt18/subversion/pkg/logging"
	"github.com/runt18/subversion/pkg/rules"
)

var version = "dev" // Will be set during build

var (
	rulesFile  string
	groupsFile string
)

func main() {
	// Exit 0 when access is granted / the file is valid, 1 when access
	// is denied (set by checkCmd), 2 on any real error.
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "svnauthz:", err)
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:           "svnauthz",
	Short:         "Query and validate path-based authorization rules",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `svnauthz works with INI-style authorization rule files:

    [groups]
    committers = alice, bob

    [project:/trunk]
    @committers = rw
    * = r

Use "check" to ask whether a user may access a path and "validate" to
verify that a rule file parses.`,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a user has access to a path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		user, _ := cmd.Flags().GetString("user")
		repository, _ := cmd.Flags().GetString("repository")
		rightsSpec, _ := cmd.Flags().GetString("required")
		recursive, _ := cmd.Flags().GetBool("recursive")
		logPath, _ := cmd.Flags().GetString("log-file")

		if err := logging.Initialize(&logging.Config{DecisionLogPath: logPath}); err != nil {
			return err
		}

		required, err := rules.ParseRights(rightsSpec)
		if err != nil {
			return err
		}
		if recursive {
			required |= rules.Recursive
		}

		doc, err := loadRules()
		if err != nil {
			return err
		}

		granted, err := authz.NewAuthorizer(doc).CheckAccess(repository, path, user, required)
		if err != nil {
			logging.LogError("check", err, "user", user, "path", path)
			return err
		}

		logging.LogDecision(user, repository, path, required, granted)
		if !granted {
			fmt.Println("denied")
			os.Exit(1)
		}
		fmt.Println("granted")
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that a rule file parses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadRules(); err != nil {
			return err
		}
		fmt.Println("valid")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("svnauthz %s\n", version)
	},
}

func loadRules() (*rules.Document, error) {
	if rulesFile == "" {
		return nil, fmt.Errorf("rule file is required (use --file)")
	}
	source := rules.NewFileSource(afero.NewOsFs(), rulesFile, groupsFile)
	return source.Load()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rulesFile, "file", "f", "", "path to the authorization rule file (required)")
	rootCmd.PersistentFlags().StringVarP(&groupsFile, "groups-file", "g", "", "path to a separate groups file")

	checkCmd.Flags().String("path", "", "repository path to check, e.g. /trunk/src (empty: any path)")
	checkCmd.Flags().String("user", "", "user to check access for (empty: anonymous)")
	checkCmd.Flags().String("repository", "", "repository name (empty: any repository)")
	checkCmd.Flags().String("required", "r", "required rights: r, w or rw")
	checkCmd.Flags().Bool("recursive", false, "require the rights on the whole subtree")
	checkCmd.Flags().String("log-file", "", "append decisions to this log file")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}
