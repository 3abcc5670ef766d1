package importer

import (
	"os"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/project"
	"github.com/clemv/mritrack/internal/report"
	"github.com/clemv/mritrack/internal/util"
)

// Drift kinds reported by Verify
const (
	DriftModified = "modified"
	DriftMissing  = "missing"
)

// Drift is one tracked file whose content no longer matches the
// database record
type Drift struct {
	Document string
	Kind     string
	Recorded string
	Actual   string
	Size     int64
}

// Verify re-hashes every tracked scan and reports content drift.
// Untouched documents produce no report entry. Documents without a
// recorded checksum are skipped, there is nothing to compare against.
func Verify(proj *project.Project, db *database.Database, events *report.EventLogger) ([]Drift, error) {
	var drifts []Drift

	err := db.WithSession(false, func(s *database.Session) error {
		docs, err := s.Documents(database.CollectionCurrent)
		if err != nil {
			return err
		}

		for _, doc := range docs {
			recorded, ok := doc.Get(database.TagChecksum).(string)
			if !ok || recorded == "" {
				continue
			}

			path := proj.AbsolutePath(doc.Name)
			if _, err := os.Stat(path); err != nil {
				drifts = append(drifts, Drift{Document: doc.Name, Kind: DriftMissing, Recorded: recorded})
				events.LogMissing(doc.Name)
				continue
			}

			actual, err := util.ChecksumFile(path)
			if err != nil {
				// Unreadable counts as missing rather than aborting the pass
				util.WarnLog("cannot hash %s: %v", doc.Name, err)
				drifts = append(drifts, Drift{Document: doc.Name, Kind: DriftMissing, Recorded: recorded})
				events.LogMissing(doc.Name)
				continue
			}
			if actual != recorded {
				size, _, _ := util.GetFileMetadata(path)
				drifts = append(drifts, Drift{
					Document: doc.Name, Kind: DriftModified,
					Recorded: recorded, Actual: actual, Size: size,
				})
				events.LogModified(doc.Name, recorded, actual)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}
