package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/importer"
	"github.com/clemv/mritrack/internal/util"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check tracked scans against their recorded checksums",
	Long: `Re-hash every tracked scan and compare against the checksum recorded
at import time. Reports scans whose content changed and scans that are
gone from disk. The database is not modified.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	proj, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	events := newEventLogger(proj)
	defer events.Close()

	drifts, err := importer.Verify(proj, db, events)
	if err != nil {
		return err
	}

	if len(drifts) == 0 {
		util.SuccessLog("All tracked scans match their recorded checksums")
		return nil
	}

	for _, d := range drifts {
		switch d.Kind {
		case importer.DriftModified:
			util.WarnLog("MODIFIED %s", d.Document)
			util.InfoLog("  recorded %s", d.Recorded)
			util.InfoLog("  actual   %s", d.Actual)
		case importer.DriftMissing:
			util.WarnLog("MISSING  %s", d.Document)
		}
	}
	return fmt.Errorf("%d scan(s) drifted from their recorded state", len(drifts))
}
