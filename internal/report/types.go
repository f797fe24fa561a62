package report

import "rotabak/internal/zfs"

type Outcome string

const (
	OutcomeArchived    Outcome = "archived"
	OutcomeNotAttached Outcome = "not_attached"
	OutcomeNotMounted  Outcome = "not_mounted"
	// OutcomeSourceUnavailable means the device was mounted but the source
	// directory (usually a missing snapshot) could not be read.
	OutcomeSourceUnavailable Outcome = "source_unavailable"
)

type SystemInfo struct {
	Hostname   string      `yaml:"hostname"`
	ZFSVersion zfs.Version `yaml:"zfs_version"`
}

// DeviceResult is what happened to one path on one device.
type DeviceResult struct {
	Path    string  `yaml:"path"`
	Device  string  `yaml:"device"`
	Pool    string  `yaml:"pool"`
	Outcome Outcome `yaml:"outcome"`
	Mode    string  `yaml:"mode,omitempty"`
	Command string  `yaml:"command,omitempty"`
	Archive string  `yaml:"archive,omitempty"`
	Size    int64   `yaml:"size,omitempty"`
	Blake3  string  `yaml:"blake3_hash,omitempty"`
}

type Report struct {
	RunID      string         `yaml:"run_id"`
	System     SystemInfo     `yaml:"system"`
	StartedAt  string         `yaml:"started_at"`
	FinishedAt string         `yaml:"finished_at"`
	Failure    string         `yaml:"failure,omitempty"`
	Results    []DeviceResult `yaml:"results"`
	Detached   []string       `yaml:"detached"`
}
