// Package archive decides between full and incremental tar backups and
// builds the tar invocations for them.
package archive

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"rotabak/internal/config"
	"rotabak/internal/runner"
)

// TouchLayout is the touch(1) -t timestamp format.
const TouchLayout = "200601021504.05"

type Mode int

const (
	ModeFull Mode = iota
	ModeIncremental
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// DecideMode returns ModeFull when now falls on the device's full backup
// weekday or the device is cold storage, ModeIncremental otherwise.
func DecideMode(now time.Time, dev config.Device) Mode {
	if dev.ColdStorage {
		return ModeFull
	}
	if day, ok := dev.FullBackupDay(); ok && now.Weekday() == day {
		return ModeFull
	}
	return ModeIncremental
}

// Plan is the sequence of steps for one archive on one device.
type Plan struct {
	Mode Mode
	// RemoveExisting deletes any previous archive before writing a new one.
	RemoveExisting bool
	// Append adds only members newer than the existing archive.
	Append bool
}

// NewPlan builds the plan for mode. An incremental backup without an
// existing archive becomes a plain create.
func NewPlan(mode Mode, archiveExists bool) Plan {
	switch {
	case mode == ModeFull:
		return Plan{Mode: mode, RemoveExisting: true}
	case archiveExists:
		return Plan{Mode: mode, Append: true}
	default:
		return Plan{Mode: mode}
	}
}

// Members lists what a shell expands "*" to inside dir: the non-hidden
// entries, sorted.
func Members(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// CreateCommand writes a new archive from members of srcDir.
func CreateCommand(srcDir, archivePath string, members []string) runner.Command {
	args := append([]string{"-cf", archivePath}, members...)
	return runner.New("tar", args...).In(srcDir)
}

// AppendCommand appends the members of srcDir modified after the archive
// itself was last modified.
func AppendCommand(srcDir, archivePath string, members []string) runner.Command {
	args := append([]string{"-rf", archivePath, "--newer-mtime-than", archivePath}, members...)
	return runner.New("tar", args...).In(srcDir)
}

// Command returns the tar invocation for p.
func (p Plan) Command(srcDir, archivePath string, members []string) runner.Command {
	if p.Append {
		return AppendCommand(srcDir, archivePath, members)
	}
	return CreateCommand(srcDir, archivePath, members)
}

func RemoveCommand(archivePath string) runner.Command {
	return runner.New("rm", "-f", archivePath)
}

// TouchCommand sets the archive's modification time to t, creating the file
// if the archive step produced nothing.
func TouchCommand(archivePath string, t time.Time) runner.Command {
	return runner.New("touch", "-t", t.Format(TouchLayout), archivePath)
}

// MkdirCommand creates name inside dir.
func MkdirCommand(dir, name string) runner.Command {
	return runner.New("mkdir", name).In(dir)
}
