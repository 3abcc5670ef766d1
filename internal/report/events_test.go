package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewEventLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if logger.path == "" {
		t.Error("EventLogger path is empty")
	}

	if _, err := os.Stat(logger.path); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.path)
	}

	filename := filepath.Base(logger.path)
	if len(filename) < len("events-20060102-150405.jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
}

func TestEventLogger_LogImport(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	duration := 250 * time.Millisecond
	err = logger.LogImport("data/raw_data/scan1.nii", "/export/scan1.nii", "d41d8cd98f00b204e9800998ecf8427e", 12, duration)
	if err != nil {
		t.Fatalf("LogImport failed: %v", err)
	}

	logger.Close()

	content, err := os.ReadFile(logger.path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var event Event
	if err := json.Unmarshal(content, &event); err != nil {
		t.Fatalf("Failed to decode JSONL: %v", err)
	}

	if event.Event != EventImport {
		t.Errorf("Expected event type 'import', got '%s'", event.Event)
	}
	if event.Document != "data/raw_data/scan1.nii" {
		t.Errorf("Unexpected document '%s'", event.Document)
	}
	if event.Checksum != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("Unexpected checksum '%s'", event.Checksum)
	}
	if event.TagCount != 12 {
		t.Errorf("Expected tag_count 12, got %d", event.TagCount)
	}
	if event.Duration != duration.Milliseconds() {
		t.Errorf("Expected duration %d ms, got %d ms", duration.Milliseconds(), event.Duration)
	}
	if event.Timestamp.IsZero() {
		t.Error("Expected timestamp to be auto-set, but it's zero")
	}
}

func TestEventLogger_LogSidecarError(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	err = logger.LogSidecar("scan1.nii", "/export/scan1.json", 0, errors.New("bad json"))
	if err != nil {
		t.Fatalf("LogSidecar failed: %v", err)
	}

	logger.Close()

	content, _ := os.ReadFile(logger.path)
	var event Event
	json.Unmarshal(content, &event)

	if event.Level != LevelWarning {
		t.Errorf("Expected level 'warning', got '%s'", event.Level)
	}
	if event.Error == "" {
		t.Error("Expected error message, got empty string")
	}
}

func TestEventLogger_LogModified(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	err = logger.LogModified("data/raw_data/scan1.nii", "aaaa", "bbbb")
	if err != nil {
		t.Fatalf("LogModified failed: %v", err)
	}

	logger.Close()

	content, _ := os.ReadFile(logger.path)
	var event Event
	json.Unmarshal(content, &event)

	if event.Event != EventModified {
		t.Errorf("Expected event type 'modified', got '%s'", event.Event)
	}
	if event.Level != LevelWarning {
		t.Errorf("Expected level 'warning', got '%s'", event.Level)
	}
	if event.Extra["recorded_checksum"] != "aaaa" {
		t.Errorf("Expected recorded_checksum 'aaaa', got '%s'", event.Extra["recorded_checksum"])
	}
	if event.Checksum != "bbbb" {
		t.Errorf("Expected checksum 'bbbb', got '%s'", event.Checksum)
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	const numGoroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				event := &Event{
					Level:    LevelInfo,
					Event:    EventImport,
					Document: "concurrent-test",
				}
				if err := logger.Log(event); err != nil {
					t.Errorf("Concurrent log failed: %v", err)
				}
			}
		}()
	}

	wg.Wait()
	logger.Close()

	file, err := os.Open(logger.path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineCount := 0
	for scanner.Scan() {
		lineCount++
		var decoded Event
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("Failed to decode line %d: %v", lineCount, err)
		}
	}

	expected := numGoroutines * eventsPerGoroutine
	if lineCount != expected {
		t.Errorf("Expected %d events, got %d", expected, lineCount)
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()

	// Should not panic
	if err := logger.Log(&Event{Level: LevelInfo, Event: EventImport}); err != nil {
		t.Errorf("NullLogger.Log should not return error, got: %v", err)
	}
	if err := logger.LogSkip("/path", "no status"); err != nil {
		t.Errorf("NullLogger.LogSkip should not return error, got: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger.Close should not return error, got: %v", err)
	}
	if path := logger.Path(); path != "" {
		t.Errorf("NullLogger.Path should return empty string, got: %s", path)
	}
}

func TestEventLogger_LogLevelFiltering(t *testing.T) {
	events := []Event{
		{Level: LevelDebug, Event: EventSidecar},
		{Level: LevelInfo, Event: EventImport},
		{Level: LevelWarning, Event: EventModified},
		{Level: LevelError, Event: EventError},
	}

	testCases := []struct {
		name          string
		minLevel      EventLevel
		expectedCount int
	}{
		{"LevelDebug logs all", LevelDebug, 4},
		{"LevelInfo skips debug", LevelInfo, 3},
		{"LevelWarning skips debug and info", LevelWarning, 2},
		{"LevelError only logs errors", LevelError, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			logger, err := NewEventLogger(tmpDir, tc.minLevel)
			if err != nil {
				t.Fatalf("NewEventLogger failed: %v", err)
			}
			defer logger.Close()

			for _, e := range events {
				if err := logger.Log(&e); err != nil {
					t.Fatalf("Log failed: %v", err)
				}
			}

			logger.Close()

			file, err := os.Open(logger.path)
			if err != nil {
				t.Fatalf("Failed to open log file: %v", err)
			}
			defer file.Close()

			scanner := bufio.NewScanner(file)
			lineCount := 0
			for scanner.Scan() {
				lineCount++
			}

			if lineCount != tc.expectedCount {
				t.Errorf("Expected %d events logged, got %d", tc.expectedCount, lineCount)
			}
		})
	}
}
