package check

import (
	"context"
	"fmt"
	"io"
	"sort"

	"rotabak/internal/config"
	"rotabak/internal/lock"
	"rotabak/internal/remote"
	"rotabak/internal/runner"
	"rotabak/internal/util"
	"rotabak/internal/zfs"
)

// Run probes what a backup run depends on and prints one line per probe.
// Missing datasets and unreachable report storage are errors; detached
// devices and a held lock are reported but tolerated, since runs skip them.
func Run(ctx context.Context, cfg *config.Config, r runner.Runner, out io.Writer) error {
	fmt.Fprintln(out, "config: OK")

	held, err := lock.Held(cfg.Settings.LockPath)
	if err != nil {
		return fmt.Errorf("lock %s: %w", cfg.Settings.LockPath, err)
	}
	if held {
		fmt.Fprintf(out, "lock %s: held, runs will be skipped until it is removed\n", cfg.Settings.LockPath)
	} else {
		fmt.Fprintf(out, "lock %s: free\n", cfg.Settings.LockPath)
	}

	zm := zfs.New(r)
	for _, p := range cfg.FilePaths {
		if !p.ZFS {
			fmt.Fprintf(out, "path %s: plain directory\n", p.Path)
			continue
		}
		if err := zm.CheckDatasetExists(ctx, p.Dataset()); err != nil {
			return fmt.Errorf("path %s: %w", p.Path, err)
		}
		fmt.Fprintf(out, "path %s dataset %s: OK\n", p.Path, p.Dataset())
	}

	ids := make([]string, 0, len(cfg.BackupDevices.Entries))
	for id := range cfg.BackupDevices.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		dev := cfg.BackupDevices.Entries[id]
		attached, err := util.Exists(dev.Partition)
		if err != nil {
			return fmt.Errorf("device %s: failed to probe partition: %w", id, err)
		}
		if !attached {
			fmt.Fprintf(out, "device %s: not attached (%s)\n", id, dev.Partition)
			continue
		}
		imported, err := zm.CheckPoolImported(ctx, dev.ZFSFileSystem)
		if err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}
		state := "exported"
		if imported {
			state = "imported"
		}
		fmt.Fprintf(out, "device %s: attached, pool %s %s\n", id, dev.ZFSFileSystem, state)
	}

	s3cfg := cfg.Settings.Report.S3
	if s3cfg.Enabled {
		if err := remote.ValidateStorageClass(string(s3cfg.StorageClass)); err != nil {
			return fmt.Errorf("S3: %w", err)
		}
		backend, err := remote.NewS3(ctx, s3cfg.Bucket, s3cfg.Region,
			s3cfg.Prefix, s3cfg.Endpoint,
			s3cfg.StorageClass, cfg.S3RetryAttempts())
		if err != nil {
			return fmt.Errorf("S3 init: %w", err)
		}
		if err := backend.VerifyCredentials(ctx); err != nil {
			return fmt.Errorf("S3 credentials: %w", err)
		}
		fmt.Fprintf(out, "S3 bucket %s: OK\n", s3cfg.Bucket)
	}

	fmt.Fprintln(out, "all checks passed")
	return nil
}
