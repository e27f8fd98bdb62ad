package docdir_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"inkwell/internal/docdir"
)

func newManager(t *testing.T) (*docdir.Manager, string, string) {
	t.Helper()
	uploadDir := t.TempDir()
	outputDir := t.TempDir()
	manager, err := docdir.NewManager(uploadDir, outputDir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager, uploadDir, outputDir
}

func TestTaskOutputDirIsIdempotent(t *testing.T) {
	manager, _, outputDir := newManager(t)

	first, err := manager.TaskOutputDir("abc123")
	if err != nil {
		t.Fatalf("TaskOutputDir: %v", err)
	}
	second, err := manager.TaskOutputDir("abc123")
	if err != nil {
		t.Fatalf("TaskOutputDir repeat: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable path, got %q then %q", first, second)
	}
	want := filepath.Join(outputDir, "task_abc123")
	if first != want {
		t.Fatalf("expected %q, got %q", want, first)
	}
	if info, err := os.Stat(first); err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %q: %v", first, err)
	}
}

func TestTaskOutputDirRequiresID(t *testing.T) {
	manager, _, _ := newManager(t)
	if _, err := manager.TaskOutputDir(""); err == nil {
		t.Fatal("expected error for empty task id")
	}
}

func TestScanForFilesFiltersByExtension(t *testing.T) {
	manager, uploadDir, _ := newManager(t)

	mustWrite(t, filepath.Join(uploadDir, "report.pdf"))
	mustWrite(t, filepath.Join(uploadDir, "notes.TXT"))
	mustWrite(t, filepath.Join(uploadDir, "ignore.docx"))
	if err := os.MkdirAll(filepath.Join(uploadDir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(uploadDir, "nested", "deep.md"))

	found, err := manager.ScanForFiles(nil)
	if err != nil {
		t.Fatalf("ScanForFiles: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("expected 3 files, got %d: %v", len(found), found)
	}
	for _, path := range found {
		if filepath.Ext(path) == ".docx" {
			t.Fatalf("disallowed extension leaked through: %s", path)
		}
	}
}

func TestScanForFilesEmptyDir(t *testing.T) {
	manager, _, _ := newManager(t)
	found, err := manager.ScanForFiles(nil)
	if err != nil {
		t.Fatalf("ScanForFiles: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no files, got %v", found)
	}
}

func TestCleanupAllRemovesEverything(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "stray.pdf"))
	if err := os.MkdirAll(filepath.Join(root, "task_old"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(root, "task_old", "doc.md"))

	report, err := docdir.CleanupAll(root)
	if err != nil {
		t.Fatalf("CleanupAll: %v", err)
	}
	if len(report.Deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %+v", report)
	}
	wantDeleted := map[string]bool{
		filepath.Join(root, "stray.pdf"): true,
		filepath.Join(root, "task_old"):  true,
	}
	for _, path := range report.Deleted {
		if !wantDeleted[path] {
			t.Fatalf("unexpected deleted path %q", path)
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty root, found %d entries", len(entries))
	}
}

func TestCleanupAllMissingRoot(t *testing.T) {
	report, err := docdir.CleanupAll(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("CleanupAll: %v", err)
	}
	if len(report.Deleted) != 0 || len(report.Failed) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestCleanupOldRespectsAgeAndPrefix(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	aged := filepath.Join(root, "task_aged")
	fresh := filepath.Join(root, "task_fresh")
	unrelated := filepath.Join(root, "keep_me")
	for _, dir := range []string{aged, fresh, unrelated} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	old := now.Add(-10 * 24 * time.Hour)
	if err := os.Chtimes(aged, old, old); err != nil {
		t.Fatal(err)
	}
	recent := now.Add(-2 * 24 * time.Hour)
	if err := os.Chtimes(fresh, recent, recent); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(unrelated, old, old); err != nil {
		t.Fatal(err)
	}

	report, err := docdir.CleanupOld(root, 7*24*time.Hour, now)
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if len(report.Deleted) != 1 || report.Deleted[0] != aged {
		t.Fatalf("expected the aged path to be reported, got %+v", report)
	}
	if _, err := os.Stat(aged); !os.IsNotExist(err) {
		t.Fatal("aged task directory should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh task directory should survive")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatal("unprefixed directory should never be touched")
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
}
