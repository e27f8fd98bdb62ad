// Package docdir manages the on-disk layout of the pipeline: per-task
// output directories, upload scanning, and age-based cleanup.
package docdir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"inkwell/internal/services"
)

// TaskDirPrefix marks directories created for a single task run. Cleanup
// routines only ever touch directories carrying it.
const TaskDirPrefix = "task_"

// DefaultScanExtensions lists the file types picked up by upload scans.
var DefaultScanExtensions = []string{".pdf", ".txt", ".md"}

// Manager resolves and maintains pipeline directories.
type Manager struct {
	uploadDir string
	outputDir string
}

// NewManager builds a Manager over the configured upload and output roots.
func NewManager(uploadDir, outputDir string) (*Manager, error) {
	if uploadDir == "" || outputDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "docdir", "new",
			"upload and output directories are required", nil)
	}
	return &Manager{uploadDir: uploadDir, outputDir: outputDir}, nil
}

// UploadDir returns the configured upload root.
func (m *Manager) UploadDir() string { return m.uploadDir }

// OutputDir returns the configured output root.
func (m *Manager) OutputDir() string { return m.outputDir }

// TaskOutputDir ensures the per-task output directory exists and returns
// its path. Calling it twice for the same task id is harmless.
func (m *Manager) TaskOutputDir(taskID string) (string, error) {
	if taskID == "" {
		return "", services.Wrap(services.ErrValidation, "docdir", "task_dir",
			"task id is required", nil)
	}
	dir := filepath.Join(m.outputDir, TaskDirPrefix+taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "docdir", "task_dir",
			fmt.Sprintf("create %s", dir), err)
	}
	return dir, nil
}

// ScanForFiles walks the upload root and returns the absolute paths of
// files whose extension is on the allow list, sorted for stable task
// payloads. A nil extension list uses DefaultScanExtensions.
func (m *Manager) ScanForFiles(extensions []string) ([]string, error) {
	if len(extensions) == 0 {
		extensions = DefaultScanExtensions
	}
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	var found []string
	err := filepath.WalkDir(m.uploadDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "docdir", "scan",
			fmt.Sprintf("walk %s", m.uploadDir), err)
	}
	sort.Strings(found)
	return found, nil
}

// CleanupReport summarizes one cleanup pass.
type CleanupReport struct {
	// Deleted lists the entries removed.
	Deleted []string `json:"deleted"`
	// Failed lists entries that could not be removed.
	Failed []string `json:"failed,omitempty"`
	// Skipped counts entries left in place.
	Skipped int `json:"skipped"`
}

// CleanupAll removes every entry directly under the given root. The root
// itself is preserved. Removal failures are collected, not fatal.
func CleanupAll(root string) (CleanupReport, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return CleanupReport{}, nil
		}
		return CleanupReport{}, services.Wrap(services.ErrExternalTool, "docdir", "cleanup_all",
			fmt.Sprintf("read %s", root), err)
	}
	var report CleanupReport
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			report.Failed = append(report.Failed, path)
			continue
		}
		report.Deleted = append(report.Deleted, path)
	}
	return report, nil
}

// CleanupOld removes task directories under the given root whose
// modification time is older than the cutoff. Only directories carrying
// TaskDirPrefix are candidates; everything else is skipped untouched.
func CleanupOld(root string, maxAge time.Duration, now time.Time) (CleanupReport, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return CleanupReport{}, nil
		}
		return CleanupReport{}, services.Wrap(services.ErrExternalTool, "docdir", "cleanup_old",
			fmt.Sprintf("read %s", root), err)
	}
	cutoff := now.Add(-maxAge)
	var report CleanupReport
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), TaskDirPrefix) {
			report.Skipped++
			continue
		}
		info, err := entry.Info()
		if err != nil {
			report.Failed = append(report.Failed, filepath.Join(root, entry.Name()))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			report.Skipped++
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			report.Failed = append(report.Failed, path)
			continue
		}
		report.Deleted = append(report.Deleted, path)
	}
	return report, nil
}
