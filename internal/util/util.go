package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"rotabak/internal/config"
	"rotabak/internal/logging"
	"rotabak/internal/zfs"
)

const (
	// TarsDirName is the directory on a backup device holding the archives.
	TarsDirName = "tars"
	// MountedSentinel is a file kept at the root of every backup pool; its
	// presence under the target proves the pool is mounted there.
	MountedSentinel = "mounted"
)

func TarsDir(target string) string {
	return filepath.Join(target, TarsDirName)
}

func ArchivePath(target, tarName string) string {
	return filepath.Join(TarsDir(target), tarName)
}

func SentinelPath(target string) string {
	return filepath.Join(target, MountedSentinel)
}

// SourceDir is the directory archived for p: the snapshot's read-only view
// for zfs paths, the live path otherwise.
func SourceDir(p config.Path) string {
	if p.ZFS {
		return zfs.SnapshotDir(p.Path, zfs.SnapshotName)
	}
	return p.Path
}

func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func SetupDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func SetupLogging(logPath, level string, console io.Writer) (*slog.Logger, *os.File, error) {
	if err := SetupDirectories(filepath.Dir(logPath)); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger, logFile, err := logging.NewLogger(logPath, logging.ParseLevel(level), console)
	if err != nil {
		return nil, nil, err
	}

	return logger, logFile, nil
}
