package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/project"
	"github.com/clemv/mritrack/internal/util"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new project folder and metadata database",
	Long: `Create the standard project layout under the --project folder:

  data/raw_data         converted scans, sidecars and export logs
  data/derived_data     pipeline outputs
  data/downloaded_data  fetched inputs
  reports               import event logs and summaries
  project.db            the metadata database

Initializing an existing project is harmless; the layout and the
builtin tags are only created where missing.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	proj := project.New(viper.GetString("project"))

	if err := proj.EnsureLayout(); err != nil {
		return fmt.Errorf("failed to create project layout: %w", err)
	}

	db, err := database.Open(proj.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return err
	}

	util.SuccessLog("Project ready at %s", proj.Folder)
	util.InfoLog("Database: %s (SQLite %s)", proj.DatabasePath(), database.SQLiteVersion())
	util.InfoLog("Next step: convert scans into %s and run 'mrt import'", proj.RawDataPath())
	return nil
}
