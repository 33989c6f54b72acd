// Package report manages the per-run results folder: creating a uniquely
// named run directory, collecting attachments, and archiving finished runs
// with a bounded history.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/config"
)

// Defaults of the reporting configuration.
const (
	DefaultResultsDir = "test-results"
	DefaultArchiveDir = "test-reports/history"
	DefaultMaxHistory = 10
)

// Manager owns one run folder from StartRun to FinalizeRun. A disabled
// manager (report.enabled: false) turns every operation into a no-op.
type Manager struct {
	enabled    bool
	resultsDir string
	archiveDir string
	maxHistory int
	logger     *slog.Logger
	clock      func() time.Time

	mu        sync.Mutex
	runID     string
	runDir    string
	manifest  *manifest
	finalized bool
}

// manifest is the run.json file written into each run folder.
type manifest struct {
	RunID       string    `json:"run_id"`
	Environment string    `json:"environment"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Attachments []string  `json:"attachments,omitempty"`
}

// NewManager creates a reporting manager from the report.* configuration
// keys.
func NewManager(cfg *config.Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		enabled:    cfg.GetBoolDefault("report.enabled", true),
		resultsDir: cfg.GetStringDefault("report.resultsDir", DefaultResultsDir),
		archiveDir: cfg.GetStringDefault("report.archiveDir", DefaultArchiveDir),
		maxHistory: cfg.GetIntDefault("report.maxHistory", DefaultMaxHistory),
		logger:     logger,
		clock:      time.Now,
	}
}

// Enabled reports whether reporting is active.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// StartRun creates the run folder and its manifest. The run ID embeds a
// timestamp and a short random suffix so concurrent runs never collide.
func (m *Manager) StartRun(environment string) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runID != "" {
		return apierr.NewConfigurationError("report.Manager.StartRun",
			fmt.Errorf("run %s already started", m.runID))
	}

	now := m.clock()
	m.runID = fmt.Sprintf("run-%s-%s", now.Format("20060102-150405"), uuid.NewString()[:8])
	m.runDir = filepath.Join(m.resultsDir, m.runID)

	if err := os.MkdirAll(m.runDir, 0o755); err != nil {
		return apierr.NewConfigurationError("report.Manager.StartRun",
			fmt.Errorf("creating run directory: %w", err))
	}

	m.manifest = &manifest{
		RunID:       m.runID,
		Environment: environment,
		StartedAt:   now,
	}
	if err := m.writeManifestLocked(); err != nil {
		return err
	}

	m.logger.Info("started run", "run_id", m.runID, "dir", m.runDir)
	return nil
}

// RunID returns the active run ID, or "".
func (m *Manager) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

// RunDir returns the active run folder, or "".
func (m *Manager) RunDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runDir
}

// SpanPath returns the path of the span timeline file inside the run
// folder, or "" when no run is active.
func (m *Manager) SpanPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runDir == "" {
		return ""
	}
	return filepath.Join(m.runDir, "spans.jsonl")
}

// Attach writes a named artifact into the run folder and records it in the
// manifest. Attaching before StartRun or on a disabled manager is a no-op.
func (m *Manager) Attach(name string, data []byte) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runDir == "" {
		m.logger.Warn("attachment ignored, no active run", "name", name)
		return nil
	}

	path := filepath.Join(m.runDir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apierr.NewConfigurationError("report.Manager.Attach",
			fmt.Errorf("writing attachment %s: %w", name, err))
	}

	m.manifest.Attachments = append(m.manifest.Attachments, filepath.Base(name))
	return m.writeManifestLocked()
}

// FinalizeRun stamps the manifest, copies the run folder into the archive,
// and trims the archive to the configured history size. It is idempotent;
// only the first call does work.
func (m *Manager) FinalizeRun() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runDir == "" || m.finalized {
		return nil
	}
	m.finalized = true

	m.manifest.FinishedAt = m.clock()
	if err := m.writeManifestLocked(); err != nil {
		return err
	}

	if err := os.MkdirAll(m.archiveDir, 0o755); err != nil {
		return apierr.NewConfigurationError("report.Manager.FinalizeRun",
			fmt.Errorf("creating archive directory: %w", err))
	}

	dest := filepath.Join(m.archiveDir, m.runID)
	if err := copyDir(m.runDir, dest); err != nil {
		return apierr.NewConfigurationError("report.Manager.FinalizeRun",
			fmt.Errorf("archiving run: %w", err))
	}

	if err := m.trimArchiveLocked(); err != nil {
		return err
	}

	m.logger.Info("finalized run", "run_id", m.runID, "archive", dest)
	return nil
}

// trimArchiveLocked deletes the oldest archived runs beyond maxHistory. Run
// folder names embed the start timestamp, so lexical order is age order.
func (m *Manager) trimArchiveLocked() error {
	if m.maxHistory <= 0 {
		return nil
	}

	entries, err := os.ReadDir(m.archiveDir)
	if err != nil {
		return apierr.NewConfigurationError("report.Manager.FinalizeRun",
			fmt.Errorf("reading archive directory: %w", err))
	}

	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "run-") {
			runs = append(runs, entry.Name())
		}
	}
	sort.Strings(runs)

	for len(runs) > m.maxHistory {
		oldest := runs[0]
		runs = runs[1:]
		if err := os.RemoveAll(filepath.Join(m.archiveDir, oldest)); err != nil {
			m.logger.Warn("failed to remove archived run", "run", oldest, "error", err)
			continue
		}
		m.logger.Info("trimmed archived run", "run", oldest)
	}

	return nil
}

func (m *Manager) writeManifestLocked() error {
	data, err := sonic.MarshalIndent(m.manifest, "", "  ")
	if err != nil {
		return apierr.NewConfigurationError("report.Manager",
			fmt.Errorf("encoding manifest: %w", err))
	}
	path := filepath.Join(m.runDir, "run.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apierr.NewConfigurationError("report.Manager",
			fmt.Errorf("writing manifest: %w", err))
	}
	return nil
}

// copyDir recursively copies src into dest.
func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
