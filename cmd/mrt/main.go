package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/project"
	"github.com/clemv/mritrack/internal/report"
	"github.com/clemv/mritrack/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mrt",
		Short: "MRI tracker - tag-indexed metadata database for imaging projects",
		Long: `mrt tracks the scans of an MRI project: every converted file gets a
document in a tag-indexed metadata database, imported from the converter's
export logs together with its sidecar JSON tags. Tags can be added, edited,
cloned and searched with a filter language, and every mutation can be
undone across sessions.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./mrt.yaml)")
	rootCmd.PersistentFlags().StringP("project", "p", ".", "project folder")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("mrt")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("MRT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}

	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

// openProject opens the project named by --project and its database.
// The caller closes the returned database.
func openProject() (*project.Project, *database.Database, error) {
	proj := project.New(viper.GetString("project"))
	if !proj.Exists() {
		return nil, nil, fmt.Errorf("no project at %s (run 'mrt init' first)", proj.Folder)
	}
	db, err := database.Open(proj.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return proj, db, nil
}

// newEventLogger creates an event logger under the project's reports
// folder, degrading to a no-op logger when that fails
func newEventLogger(proj *project.Project) *report.EventLogger {
	level := report.LevelInfo
	if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(proj.ReportsPath(), level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	return logger
}

// parseTagValue turns a CLI string into a value of the declared type.
// List and mapping values are given as JSON; scalars in their natural
// text form.
func parseTagValue(t database.FieldType, input string) (any, error) {
	if input == "null" {
		return database.NotDefined, nil
	}

	if t.IsList() || t == database.FieldTypeMapping {
		var v any
		if err := json.Unmarshal([]byte(input), &v); err != nil {
			return nil, fmt.Errorf("expected JSON for a %s value: %w", t, err)
		}
		return v, nil
	}

	switch t {
	case database.FieldTypeInteger:
		n, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer: %w", err)
		}
		return n, nil
	case database.FieldTypeFloat:
		f, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number: %w", err)
		}
		return f, nil
	case database.FieldTypeBoolean:
		b, err := strconv.ParseBool(strings.ToLower(input))
		if err != nil {
			return nil, fmt.Errorf("expected true or false: %w", err)
		}
		return b, nil
	default:
		// Temporal types parse their canonical layout via Coerce
		return input, nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
