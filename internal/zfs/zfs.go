package zfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"rotabak/internal/runner"
)

// SnapshotName is the name of the point-in-time snapshot taken for each run.
const SnapshotName = "now"

// SnapshotDir returns the read-only directory under which a dataset mounted
// at mountpoint exposes the snapshot called name.
func SnapshotDir(mountpoint, name string) string {
	return filepath.Join(mountpoint, ".zfs", "snapshot", name)
}

// Manager issues zfs and zpool commands through a Runner.
type Manager struct {
	r runner.Runner
}

func New(r runner.Runner) *Manager {
	return &Manager{r: r}
}

func SnapshotCommand(dataset, name string) runner.Command {
	return runner.New("zfs", "snapshot", dataset+"@"+name)
}

func DestroyCommand(dataset, name string) runner.Command {
	return runner.New("zfs", "destroy", dataset+"@"+name)
}

func ImportCommand(pool string) runner.Command {
	return runner.New("zpool", "import", pool)
}

func ExportCommand(pool string) runner.Command {
	return runner.New("zpool", "export", pool)
}

func SyncCommand() runner.Command {
	return runner.New("sync")
}

func (m *Manager) CreateSnapshot(ctx context.Context, dataset, name string) error {
	return m.r.Run(ctx, SnapshotCommand(dataset, name))
}

func (m *Manager) DestroySnapshot(ctx context.Context, dataset, name string) error {
	return m.r.Run(ctx, DestroyCommand(dataset, name))
}

func (m *Manager) ImportPool(ctx context.Context, pool string) error {
	return m.r.Run(ctx, ImportCommand(pool))
}

// ExportPool flushes pending writes and exports pool. The export is issued
// even when the flush fails.
func (m *Manager) ExportPool(ctx context.Context, pool string) error {
	syncErr := m.Sync(ctx)
	exportErr := m.r.Run(ctx, ExportCommand(pool))
	return errors.Join(syncErr, exportErr)
}

func (m *Manager) Sync(ctx context.Context) error {
	return m.r.Run(ctx, SyncCommand())
}

func (m *Manager) CheckDatasetExists(ctx context.Context, dataset string) error {
	if _, err := m.r.Output(ctx, runner.New("zfs", "list", "-H", "-o", "name", dataset)); err != nil {
		return fmt.Errorf("ZFS dataset %s not found or not accessible: %w", dataset, err)
	}
	return nil
}

func (m *Manager) CheckPoolImported(ctx context.Context, pool string) (bool, error) {
	out, err := m.r.Output(ctx, runner.New("zpool", "list", "-H", "-o", "name"))
	if err != nil {
		return false, fmt.Errorf("failed to list pools: %w", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.TrimSpace(line) == pool {
			return true, nil
		}
	}
	return false, nil
}

type Version struct {
	Userland string `json:"userland" yaml:"userland"`
	Kernel   string `json:"kernel" yaml:"kernel"`
}

func (m *Manager) Version(ctx context.Context) (Version, error) {
	out, err := m.r.Output(ctx, runner.New("zfs", "version", "-j"))
	if err != nil {
		return Version{}, err
	}

	var result struct {
		ZFSVersion Version `json:"zfs_version"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return Version{}, fmt.Errorf("failed to parse zfs version: %w", err)
	}
	return result.ZFSVersion, nil
}
