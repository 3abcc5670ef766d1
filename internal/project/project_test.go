package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "proj")
	p := New(root)

	if err := p.EnsureLayout(); err != nil {
		t.Fatalf("failed to create layout: %v", err)
	}

	for _, dir := range []string{p.RawDataPath(), p.DerivedDataPath(), p.DownloadedDataPath()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("expected dir %s to exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("expected %s to be a directory", dir)
		}
	}

	if p.Exists() {
		t.Error("project should not report existing before database creation")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "proj"))

	abs := filepath.Join(p.RawDataPath(), "scanA.nii")
	key, err := p.Key(abs)
	if err != nil {
		t.Fatalf("failed to build key: %v", err)
	}
	if key != "data/raw_data/scanA.nii" {
		t.Errorf("expected key data/raw_data/scanA.nii, got %s", key)
	}

	if back := p.AbsolutePath(key); back != abs {
		t.Errorf("expected %s, got %s", abs, back)
	}
}

func TestKeyOutsideProject(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "proj"))
	if _, err := p.Key("/etc/passwd"); err == nil {
		t.Error("expected error for path outside project")
	}
}
