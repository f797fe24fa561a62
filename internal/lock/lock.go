package lock

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrHeld is returned by Acquire when the marker already exists.
var ErrHeld = errors.New("run lock is held")

// Entry is written into the marker for the operator's benefit. Only the
// marker's presence is significant.
type Entry struct {
	Pid       int    `yaml:"pid"`
	StartedAt string `yaml:"started_at"`
}

type HeldError struct {
	Path  string
	Entry *Entry
}

func (e *HeldError) Error() string {
	if e.Entry == nil || e.Entry.Pid == 0 {
		return fmt.Sprintf("%s: %s exists", ErrHeld, e.Path)
	}
	return fmt.Sprintf("%s: %s exists (pid %d, started %s)", ErrHeld, e.Path, e.Entry.Pid, e.Entry.StartedAt)
}

func (e *HeldError) Unwrap() error { return ErrHeld }

func readLock(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entry Entry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Held reports whether the marker exists.
func Held(lockPath string) (bool, error) {
	_, err := os.Stat(lockPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Acquire creates the marker at lockPath. A marker left behind by a crashed
// run is not reclaimed; it blocks every later run until removed by hand.
// Returns a release function which should be called (deferred) when work is done.
func Acquire(lockPath string) (func() error, error) {
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Contents may be empty or foreign; they only decorate the error.
			existing, _ := readLock(lockPath)
			return nil, &HeldError{Path: lockPath, Entry: existing}
		}
		return nil, fmt.Errorf("failed to create lock %s: %w", lockPath, err)
	}

	entry := &Entry{
		Pid:       os.Getpid(),
		StartedAt: time.Now().Format(time.RFC3339),
	}
	data, err := yaml.Marshal(entry)
	if err == nil {
		_, err = file.Write(data)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock %s: %w", lockPath, err)
	}

	release := func() error {
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	return release, nil
}
