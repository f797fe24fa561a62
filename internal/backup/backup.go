package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rotabak/internal/archive"
	"rotabak/internal/config"
	"rotabak/internal/crypto"
	"rotabak/internal/lock"
	"rotabak/internal/logging"
	"rotabak/internal/report"
	"rotabak/internal/runner"
	"rotabak/internal/util"
	"rotabak/internal/zfs"
)

type Publisher interface {
	Publish(ctx context.Context, r *report.Report) (string, error)
}

type Options struct {
	// Runner executes external tools. Defaults to child processes whose
	// stderr is appended to the run log.
	Runner runner.Runner
	// Now returns the run's start time. Defaults to time.Now.
	Now func() time.Time
	// Console mirrors the log. Nil logs to the file only.
	Console io.Writer
	// Publisher, when set, receives the run report during cleanup.
	Publisher Publisher
}

type run struct {
	cfg       *config.Config
	log       *slog.Logger
	exec      runner.Runner
	zfs       *zfs.Manager
	start     time.Time
	checksums bool
	report    *report.Report
}

// Run performs one backup run over every configured path and device.
//
// If another run holds the lock, Run appends a single line to the log and
// returns a nil report. Once the lock is taken, failures inside the backup
// loop are logged and recorded in the report rather than returned; the
// devices listed under umounts are exported, the lock is removed and a final
// line is logged on every path out. The returned error only covers failures
// to set the run up.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*report.Report, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	start := now()
	logPath := cfg.Settings.LogPath

	release, err := lock.Acquire(cfg.Settings.LockPath)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, logSkipped(cfg, opts.Console, err)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if err := util.SetupDirectories(filepath.Dir(logPath)); err != nil {
		release()
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := logging.Rotate(logPath); err != nil {
		release()
		return nil, fmt.Errorf("failed to rotate log: %w", err)
	}
	logger, logFile, err := util.SetupLogging(logPath, cfg.Settings.LogLevel, opts.Console)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}

	exec := opts.Runner
	if exec == nil {
		exec = &runner.Exec{Stdout: opts.Console, Stderr: logFile}
	}

	b := &run{
		cfg:       cfg,
		log:       logger,
		exec:      exec,
		zfs:       zfs.New(exec),
		start:     start,
		checksums: cfg.Settings.Report.Checksums,
		report:    report.New(start),
	}

	b.log.Info("Starting backup", "runId", b.report.RunID)

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		b.detachAll(cleanupCtx)
		b.report.FinishedAt = now().Format(time.RFC3339)
		// TODO: mail the report once a mail relay is configurable.
		b.publish(cleanupCtx, opts.Publisher)
		// Nothing but the final line may be written once the lock is gone.
		if err := release(); err != nil {
			b.log.Warn("Failed to remove run lock", "path", cfg.Settings.LockPath, "error", err)
		}
		b.log.Info("Finished backing up")
		logFile.Close()
	}()

	if err := b.backupPaths(ctx); err != nil {
		b.log.Error("!!!! An exception occurred, abandoning the remaining backups", "error", err)
		b.report.Failure = err.Error()
	}

	return b.report, nil
}

func logSkipped(cfg *config.Config, console io.Writer, held error) error {
	logger, logFile, err := util.SetupLogging(cfg.Settings.LogPath, cfg.Settings.LogLevel, console)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFile.Close()

	logger.Warn("Backup already in progress, skipping this backup run", "lock", held.Error())
	return nil
}

// backupPaths stops at the first failure. A panic counts as a failure so
// the deferred cleanup in Run still runs to completion.
func (b *run) backupPaths(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	for _, p := range b.cfg.FilePaths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("backup interrupted: %w", err)
		}
		if err := b.backupPath(ctx, p); err != nil {
			return fmt.Errorf("path %s: %w", p.Path, err)
		}
	}
	return nil
}

func (b *run) backupPath(ctx context.Context, p config.Path) error {
	if p.ZFS {
		b.log.Info("Creating snapshot", "filesystem", p.Filesystem, "dataset", p.Dataset())
		b.check(b.zfs.CreateSnapshot(ctx, p.Dataset(), zfs.SnapshotName), zfs.SnapshotCommand(p.Dataset(), zfs.SnapshotName))
	}

	b.log.Info("Backing up", "path", p.Path)

	for _, id := range p.BackupDevices {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("backup interrupted: %w", err)
		}
		dev, err := b.cfg.Device(id)
		if err != nil {
			return err
		}
		if err := b.backupToDevice(ctx, p, id, *dev); err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}
	}

	if p.ZFS {
		b.log.Info("Destroying snapshot", "filesystem", p.Filesystem, "dataset", p.Dataset())
		b.check(b.zfs.DestroySnapshot(ctx, p.Dataset(), zfs.SnapshotName), zfs.DestroyCommand(p.Dataset(), zfs.SnapshotName))
	}
	return nil
}

func (b *run) backupToDevice(ctx context.Context, p config.Path, id string, dev config.Device) error {
	res := report.DeviceResult{Path: p.Path, Device: id, Pool: dev.ZFSFileSystem}

	attached, err := util.Exists(dev.Partition)
	if err != nil {
		return fmt.Errorf("failed to probe partition %s: %w", dev.Partition, err)
	}
	if !attached {
		b.log.Info("Skipping device, drive not attached", "pool", dev.ZFSFileSystem, "partition", dev.Partition)
		res.Outcome = report.OutcomeNotAttached
		b.report.Add(res)
		return nil
	}

	b.log.Info("Mounting", "pool", dev.ZFSFileSystem, "target", dev.Target)
	b.check(b.zfs.ImportPool(ctx, dev.ZFSFileSystem), zfs.ImportCommand(dev.ZFSFileSystem))

	mounted, err := util.Exists(util.SentinelPath(dev.Target))
	if err != nil {
		return fmt.Errorf("failed to probe mount %s: %w", dev.Target, err)
	}
	if !mounted {
		b.log.Warn("!!!! Pool does not appear to be mounted", "pool", dev.ZFSFileSystem, "target", dev.Target)
		// Export anyway in case the import half-succeeded.
		b.detach(ctx, dev)
		res.Outcome = report.OutcomeNotMounted
		b.report.Add(res)
		return nil
	}
	b.log.Info("Mounted", "pool", dev.ZFSFileSystem, "target", dev.Target)

	if err := b.archive(ctx, p, dev, &res); err != nil {
		return err
	}

	b.log.Info("Unmounting", "pool", dev.ZFSFileSystem, "target", dev.Target)
	b.detach(ctx, dev)
	b.report.Add(res)
	return nil
}

func (b *run) archive(ctx context.Context, p config.Path, dev config.Device, res *report.DeviceResult) error {
	tars := util.TarsDir(dev.Target)
	ok, err := util.IsDir(tars)
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", tars, err)
	}
	if !ok {
		b.log.Info("Creating archive directory", "dir", tars)
		b.invoke(ctx, archive.MkdirCommand(dev.Target, util.TarsDirName))
	}

	archivePath := util.ArchivePath(dev.Target, p.TarName)
	mode := archive.DecideMode(b.start, dev)
	exists := false

	if mode == archive.ModeFull {
		b.log.Info("Doing full backup", "path", p.Path)
		b.log.Info("Removing previous archive", "archive", archivePath)
		b.invoke(ctx, archive.RemoveCommand(archivePath))
		b.check(b.zfs.Sync(ctx), zfs.SyncCommand())
	} else {
		b.log.Info("Doing incremental backup", "path", p.Path)
		exists, err = util.Exists(archivePath)
		if err != nil {
			return fmt.Errorf("failed to probe archive %s: %w", archivePath, err)
		}
	}
	plan := archive.NewPlan(mode, exists)

	res.Mode = plan.Mode.String()
	res.Archive = archivePath

	src := util.SourceDir(p)
	members, err := archive.Members(src)
	if err != nil {
		b.log.Error("!!!! Cannot read backup source, no archive written", "dir", src, "error", err)
		res.Outcome = report.OutcomeSourceUnavailable
		return nil
	}

	cmd := plan.Command(src, archivePath, members)
	b.log.Info("Executing", "cmd", cmd.String())
	b.invoke(ctx, cmd)
	b.invoke(ctx, archive.TouchCommand(archivePath, b.start))

	res.Outcome = report.OutcomeArchived
	res.Command = cmd.String()
	if info, err := os.Stat(archivePath); err == nil {
		res.Size = info.Size()
	}
	if b.checksums {
		sum, err := crypto.BLAKE3File(archivePath)
		if err != nil {
			b.log.Warn("Failed to hash archive", "archive", archivePath, "error", err)
		} else {
			res.Blake3 = sum
		}
	}
	return nil
}

func (b *run) detach(ctx context.Context, dev config.Device) {
	if err := b.zfs.ExportPool(ctx, dev.ZFSFileSystem); err != nil {
		b.log.Warn("Command failed", "cmd", zfs.ExportCommand(dev.ZFSFileSystem).String(), "error", err)
	}
}

// detachAll exports every device listed under umounts, whether or not this
// run touched it.
func (b *run) detachAll(ctx context.Context) {
	for _, id := range b.cfg.BackupDevices.Umounts {
		dev, err := b.cfg.Device(id)
		if err != nil {
			b.log.Warn("Cannot unmount unknown device", "device", id)
			continue
		}
		b.detach(ctx, *dev)
		b.report.Detached = append(b.report.Detached, dev.ZFSFileSystem)
	}
}

func (b *run) publish(ctx context.Context, p Publisher) {
	if p == nil {
		return
	}
	b.report.System = report.GetSystemInfo(ctx, b.zfs)

	path, err := p.Publish(ctx, b.report)
	if err != nil {
		b.log.Warn("Failed to publish run report", "error", err)
		return
	}
	b.log.Info("Run report published", "path", path)
}

// invoke executes cmd. Exit statuses are logged but never acted on.
func (b *run) invoke(ctx context.Context, cmd runner.Command) {
	b.check(b.exec.Run(ctx, cmd), cmd)
}

func (b *run) check(err error, cmd runner.Command) {
	if err != nil {
		b.log.Warn("Command failed", "cmd", cmd.String(), "error", err)
	}
}
