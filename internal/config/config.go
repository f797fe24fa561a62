package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLockPath = "/tmp/backup_in_progress"
	DefaultLogPath  = "/var/log/backup_log.txt"
	DefaultLogLevel = "info"

	// umountsKey is the reserved backup_devices entry listing the devices
	// exported during cleanup.
	umountsKey = "umounts"
)

type Device struct {
	ZFSFileSystem    string `yaml:"zfs_file_system"`
	Target           string `yaml:"target"`
	Partition        string `yaml:"partition"`
	WdayOfFullBackup *int   `yaml:"wday_of_full_backup"`
	Offsite          bool   `yaml:"offsite"`
	ColdStorage      bool   `yaml:"cold_storage"`
}

// FullBackupDay reports the weekday on which the device gets a full backup.
// ok is false when no weekday is configured.
func (d Device) FullBackupDay() (day time.Weekday, ok bool) {
	if d.WdayOfFullBackup == nil {
		return 0, false
	}
	return time.Weekday(*d.WdayOfFullBackup), true
}

// Devices is the backup_devices mapping. The "umounts" key holds a list of
// device ids rather than a device, so it is split out while decoding.
type Devices struct {
	Entries map[string]Device
	Umounts []string
}

func (d *Devices) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("backup_devices must be a mapping")
	}

	d.Entries = make(map[string]Device, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		node := value.Content[i+1]

		if key == umountsKey {
			if err := node.Decode(&d.Umounts); err != nil {
				return fmt.Errorf("backup_devices.%s: %w", umountsKey, err)
			}
			continue
		}

		var dev Device
		if err := node.Decode(&dev); err != nil {
			return fmt.Errorf("backup_devices.%s: %w", key, err)
		}
		d.Entries[key] = dev
	}

	return nil
}

type Path struct {
	Path          string   `yaml:"path"`
	TarName       string   `yaml:"tar_name"`
	ZFS           bool     `yaml:"zfs"`
	Pool          string   `yaml:"pool"`
	Filesystem    string   `yaml:"filesystem"`
	BackupDevices []string `yaml:"backup_devices"`
}

// Dataset returns the dataset identifier of a zfs path: pool and filesystem
// joined verbatim, so "tank" + "/home" names "tank/home".
func (p Path) Dataset() string {
	return p.Pool + p.Filesystem
}

type Config struct {
	BackupDevices Devices  `yaml:"backup_devices"`
	FilePaths     []Path   `yaml:"file_paths"`
	Settings      Settings `yaml:"settings,omitempty"`
}

type Settings struct {
	LockPath string       `yaml:"lock_path"`
	LogPath  string       `yaml:"log_path"`
	LogLevel string       `yaml:"log_level"`
	Report   ReportConfig `yaml:"report"`
}

type ReportConfig struct {
	Dir          string   `yaml:"dir"`
	Checksums    bool     `yaml:"checksums"`
	AgePublicKey string   `yaml:"age_public_key,omitempty"`
	S3           S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled      bool               `yaml:"enabled"`
	Bucket       string             `yaml:"bucket"`
	Prefix       string             `yaml:"prefix"`
	Region       string             `yaml:"region"`
	Endpoint     string             `yaml:"endpoint"`
	StorageClass types.StorageClass `yaml:"storage_class"`
	Retry        struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"retry,omitempty"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.LockPath == "" {
		c.Settings.LockPath = DefaultLockPath
	}
	if c.Settings.LogPath == "" {
		c.Settings.LogPath = DefaultLogPath
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = DefaultLogLevel
	}
	if c.Settings.Report.S3.Enabled && c.Settings.Report.S3.StorageClass == "" {
		c.Settings.Report.S3.StorageClass = types.StorageClassStandard
	}
}

func (c *Config) Validate() error {
	if len(c.BackupDevices.Entries) == 0 {
		return fmt.Errorf("at least one backup device is required")
	}
	for id, d := range c.BackupDevices.Entries {
		if d.ZFSFileSystem == "" {
			return fmt.Errorf("backup_devices.%s.zfs_file_system is required", id)
		}
		if d.Target == "" {
			return fmt.Errorf("backup_devices.%s.target is required", id)
		}
		if d.Partition == "" {
			return fmt.Errorf("backup_devices.%s.partition is required", id)
		}
		if d.WdayOfFullBackup != nil && (*d.WdayOfFullBackup < 0 || *d.WdayOfFullBackup > 6) {
			return fmt.Errorf("backup_devices.%s.wday_of_full_backup must be between 0 and 6", id)
		}
	}
	for i, id := range c.BackupDevices.Umounts {
		if _, ok := c.BackupDevices.Entries[id]; !ok {
			return fmt.Errorf("backup_devices.umounts[%d]: unknown device %q", i, id)
		}
	}

	if len(c.FilePaths) == 0 {
		return fmt.Errorf("at least one file path is required")
	}
	for i, p := range c.FilePaths {
		if p.Path == "" {
			return fmt.Errorf("file_paths[%d].path is required", i)
		}
		if p.TarName == "" {
			return fmt.Errorf("file_paths[%d].tar_name is required", i)
		}
		if p.TarName != filepath.Base(p.TarName) || strings.HasPrefix(p.TarName, ".") {
			return fmt.Errorf("file_paths[%d].tar_name must be a plain file name", i)
		}
		if p.ZFS && (p.Pool == "" || p.Filesystem == "") {
			return fmt.Errorf("file_paths[%d].pool and filesystem are required when zfs is set", i)
		}
		for j, id := range p.BackupDevices {
			if _, ok := c.BackupDevices.Entries[id]; !ok {
				return fmt.Errorf("file_paths[%d].backup_devices[%d]: unknown device %q", i, j, id)
			}
		}
	}

	switch c.Settings.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("settings.log_level must be one of debug, info, warn, error")
	}

	r := c.Settings.Report
	if r.AgePublicKey != "" && !strings.HasPrefix(r.AgePublicKey, "age1") {
		return fmt.Errorf("settings.report.age_public_key must start with 'age1'")
	}
	if r.S3.Enabled {
		if r.S3.Bucket == "" {
			return fmt.Errorf("settings.report.s3.bucket is required when s3 is enabled")
		}
		if r.S3.Region == "" {
			return fmt.Errorf("settings.report.s3.region is required when s3 is enabled")
		}
	}
	return nil
}

// Device looks up a device by id.
func (c *Config) Device(id string) (*Device, error) {
	d, ok := c.BackupDevices.Entries[id]
	if !ok {
		return nil, fmt.Errorf("backup device not found: %s", id)
	}
	return &d, nil
}

func (c *Config) ReportEnabled() bool {
	return c.Settings.Report.Dir != "" || c.Settings.Report.S3.Enabled
}

func (c *Config) S3RetryAttempts() int {
	if c.Settings.Report.S3.Retry.MaxAttempts > 0 {
		return c.Settings.Report.S3.Retry.MaxAttempts
	}
	return 3
}
