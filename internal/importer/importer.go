package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/history"
	"github.com/clemv/mritrack/internal/project"
	"github.com/clemv/mritrack/internal/report"
	"github.com/clemv/mritrack/internal/util"
)

// Progress stages emitted over the progress channel
const (
	StageParseLog      = "parse_log"
	StageDeclareFields = "declare_fields"
	StageWriteValues   = "write_values"
	StageDefaults      = "apply_defaults"
	StageDone          = "done"
)

// Progress is one coarse milestone of a running import
type Progress struct {
	Stage string
	Done  int
	Total int
}

// Result is handed to the caller once the worker finishes. The caller
// records the add_scans entry; the worker never touches the history
// stacks itself.
type Result struct {
	Record  history.AddScans
	Summary *report.ImportSummary
	Err     error
}

// Importer ingests the scans named by the newest export log into the
// project database.
type Importer struct {
	proj   *project.Project
	db     *database.Database
	events *report.EventLogger

	mu    sync.Mutex
	added []string
}

// New returns an importer over one project. The event logger may be
// report.NullLogger().
func New(proj *project.Project, db *database.Database, events *report.EventLogger) *Importer {
	return &Importer{proj: proj, db: db, events: events}
}

// AddedDocuments returns a copy of the primary keys added so far. Safe
// to call from the foreground while the worker runs.
func (imp *Importer) AddedDocuments() []string {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	out := make([]string, len(imp.added))
	copy(out, imp.added)
	return out
}

func (imp *Importer) appendAdded(pk string) {
	imp.mu.Lock()
	imp.added = append(imp.added, pk)
	imp.mu.Unlock()
}

// Start launches the ingestion worker. The progress channel closes when
// the run ends; the result channel then delivers exactly one Result.
// A run is not cancellable once started.
func (imp *Importer) Start() (<-chan Progress, <-chan Result) {
	progress := make(chan Progress, 16)
	result := make(chan Result, 1)

	go func() {
		defer close(progress)
		record, summary, err := imp.run(progress)
		result <- Result{Record: record, Summary: summary, Err: err}
		close(result)
	}()

	return progress, result
}

// Run performs the whole import synchronously. Convenience wrapper for
// callers that do not need incremental progress.
func (imp *Importer) Run() (history.AddScans, *report.ImportSummary, error) {
	progress, result := imp.Start()
	for range progress {
	}
	r := <-result
	return r.Record, r.Summary, r.Err
}

func (imp *Importer) run(progress chan<- Progress) (history.AddScans, *report.ImportSummary, error) {
	started := time.Now()
	summary := &report.ImportSummary{
		GeneratedAt:  started,
		ProjectPath:  imp.proj.Folder,
		EventLogPath: imp.events.Path(),
	}
	record := history.AddScans{}

	logPath, err := LatestExportLog(imp.proj.RawDataPath())
	if err != nil {
		return record, summary, err
	}
	entries, err := ReadExportLog(logPath)
	if err != nil {
		return record, summary, err
	}
	summary.SourcePath = logPath
	summary.EntriesTotal = len(entries)
	progress <- Progress{Stage: StageParseLog, Done: 0, Total: len(entries)}

	// One write session covers the entire run, so a crash mid-import
	// leaves the database as it was before.
	err = imp.db.WithSession(true, func(s *database.Session) error {
		declared := make(map[string]bool)

		for i, entry := range entries {
			if !entry.Exported() {
				summary.RecordSkip(entry.NameFile, "export not finished")
				imp.events.LogSkip(entry.NameFile, "export not finished")
				continue
			}
			if err := imp.importEntry(s, entry, declared, summary, &record); err != nil {
				// One corrupt entry must not abort the batch
				util.WarnLog("skipping %s: %v", entry.NameFile, err)
				summary.RecordError(err)
				imp.events.LogError(report.EventError, entry.NameFile, err)
			}
			progress <- Progress{Stage: StageWriteValues, Done: i + 1, Total: len(entries)}
		}

		progress <- Progress{Stage: StageDefaults, Done: len(entries), Total: len(entries)}
		return imp.applyUserDefaults(s, &record)
	})
	if err != nil {
		return record, summary, err
	}

	summary.Duration = time.Since(started)
	progress <- Progress{Stage: StageDone, Done: len(entries), Total: len(entries)}
	return record, summary, nil
}

// importEntry ingests one export log entry: the scan file itself plus
// its diffusion companions when present.
func (imp *Importer) importEntry(s *database.Session, entry ExportEntry, declared map[string]bool, summary *report.ImportSummary, record *history.AddScans) error {
	scanPath, err := imp.findScanFile(entry.NameFile)
	if err != nil {
		return err
	}

	tags, sidecarErr := ReadSidecar(imp.sidecarPath(entry.NameFile))
	if sidecarErr != nil {
		// The scan is still worth tracking without its tags
		util.WarnLog("sidecar of %s unreadable: %v", entry.NameFile, sidecarErr)
	}
	imp.events.LogSidecar(entry.NameFile, imp.sidecarPath(entry.NameFile), len(tags), sidecarErr)

	if err := imp.declareTags(s, tags, declared); err != nil {
		return err
	}

	if err := imp.importFile(s, scanPath, database.TypeNifti, tags, summary, record); err != nil {
		return err
	}

	if entry.HasCompanions() {
		for _, companion := range imp.findCompanions(entry.NameFile) {
			if err := imp.importFile(s, companion.path, companion.fileType, nil, summary, record); err != nil {
				util.WarnLog("skipping companion %s: %v", filepath.Base(companion.path), err)
				summary.RecordError(err)
			}
		}
	}
	return nil
}

// importFile adds one file to current and initial with its builtin and
// sidecar tag values. Already-tracked files are skipped.
func (imp *Importer) importFile(s *database.Session, path, fileType string, tags []SidecarTag, summary *report.ImportSummary, record *history.AddScans) error {
	started := time.Now()

	pk, err := imp.proj.Key(path)
	if err != nil {
		return err
	}
	exists, err := s.HasDocument(database.CollectionCurrent, pk)
	if err != nil {
		return err
	}
	if exists {
		summary.RecordSkip(pk, "already tracked")
		imp.events.LogSkip(pk, "already tracked")
		return nil
	}

	checksum, err := util.ChecksumFile(path)
	if err != nil {
		return fmt.Errorf("checksum of %s: %w", pk, err)
	}
	size, _, err := util.GetFileMetadata(path)
	if err != nil {
		return err
	}

	values := map[string]any{
		database.TagFilename: pk,
		database.TagChecksum: checksum,
		database.TagType:     fileType,
	}
	for _, tag := range tags {
		values[tag.Name] = tag.Value
	}

	for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
		if err := s.AddDocument(coll, pk); err != nil {
			return err
		}
		if err := s.SetValues(coll, pk, values); err != nil {
			return err
		}
	}

	imp.appendAdded(pk)
	record.Documents = append(record.Documents, pk)
	for field, value := range values {
		record.Values = append(record.Values, history.ValueAdded{
			Document: pk, Field: field, Value: database.Serialize(fieldTypeOf(tags, field), value),
		})
	}

	summary.RecordScan(fileType, len(values), size)
	imp.events.LogImport(pk, path, checksum, len(values), time.Since(started))
	return nil
}

// declareTags declares newly encountered sidecar tags in both scan
// collections, once per run. Tags seen again in later entries reuse the
// existing declaration silently.
func (imp *Importer) declareTags(s *database.Session, tags []SidecarTag, declared map[string]bool) error {
	for _, tag := range tags {
		if declared[tag.Name] {
			continue
		}
		for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
			exists, err := s.HasField(coll, tag.Name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			err = s.AddField(database.Field{
				Collection:  coll,
				Name:        tag.Name,
				Type:        tag.Type,
				Description: tag.Description,
				Unit:        tag.Unit,
				Visibility:  false,
				Origin:      database.OriginBuiltin,
			})
			if err != nil {
				return err
			}
		}
		declared[tag.Name] = true
	}
	return nil
}

// applyUserDefaults fills user-declared tags' default values into the
// documents this run added, where the sidecar set nothing.
func (imp *Importer) applyUserDefaults(s *database.Session, record *history.AddScans) error {
	fields, err := s.Fields(database.CollectionCurrent)
	if err != nil {
		return err
	}

	for _, f := range fields {
		if f.Origin != database.OriginUser || f.Default == nil {
			continue
		}
		for _, pk := range imp.AddedDocuments() {
			v, err := s.GetValue(database.CollectionCurrent, pk, f.Name)
			if err != nil {
				return err
			}
			if v != database.NotDefined {
				continue
			}
			if err := s.SetValue(database.CollectionCurrent, pk, f.Name, f.Default); err != nil {
				return err
			}
			record.Values = append(record.Values, history.ValueAdded{
				Document: pk, Field: f.Name, Value: database.Serialize(f.Type, f.Default),
			})
		}
	}
	return nil
}

// findScanFile locates the converted scan file for an export log name.
// The converter writes NIfTI files; anything else with the same
// basename that is not a sidecar or companion also qualifies.
func (imp *Importer) findScanFile(name string) (string, error) {
	raw := imp.proj.RawDataPath()

	nii := filepath.Join(raw, name+".nii")
	if _, err := os.Stat(nii); err == nil {
		return nii, nil
	}
	if _, err := os.Stat(nii + ".gz"); err == nil {
		return nii + ".gz", nil
	}

	matches, _ := filepath.Glob(filepath.Join(raw, name+".*"))
	for _, m := range matches {
		switch strings.ToLower(filepath.Ext(m)) {
		case ".json", ".bvec", ".bval":
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("no scan file for %s", name)
}

type companionFile struct {
	path     string
	fileType string
}

// findCompanions locates diffusion companion files: the FSL pair or the
// MRtrix combined text file.
func (imp *Importer) findCompanions(name string) []companionFile {
	raw := imp.proj.RawDataPath()
	var out []companionFile

	bvec := filepath.Join(raw, name+".bvec")
	bval := filepath.Join(raw, name+".bval")
	if _, err := os.Stat(bvec); err == nil {
		out = append(out, companionFile{bvec, database.TypeBvec})
	}
	if _, err := os.Stat(bval); err == nil {
		out = append(out, companionFile{bval, database.TypeBval})
	}
	if len(out) > 0 {
		return out
	}

	if matches, _ := filepath.Glob(filepath.Join(raw, name+"*-bvecs-bvals-MRtrix.txt")); len(matches) > 0 {
		out = append(out, companionFile{matches[0], database.TypeMatrix})
	}
	return out
}

func (imp *Importer) sidecarPath(name string) string {
	return filepath.Join(imp.proj.RawDataPath(), name+".json")
}

// fieldTypeOf resolves the declared type of a value being recorded,
// falling back to string for the builtin path tags
func fieldTypeOf(tags []SidecarTag, field string) database.FieldType {
	for _, tag := range tags {
		if tag.Name == field {
			return tag.Type
		}
	}
	return database.FieldTypeString
}
