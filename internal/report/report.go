// Package report records the outcome of a backup run and publishes it to a
// local directory and, optionally, to S3.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rotabak/internal/crypto"
	"rotabak/internal/zfs"

	"filippo.io/age"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const fileTimeLayout = "20060102T150405"

func New(startedAt time.Time) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: startedAt.Format(time.RFC3339),
	}
}

func (r *Report) Add(res DeviceResult) {
	r.Results = append(r.Results, res)
}

// Archived returns the results that produced an archive.
func (r *Report) Archived() []DeviceResult {
	var out []DeviceResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeArchived {
			out = append(out, res)
		}
	}
	return out
}

// FileName is the name a report is stored under: sortable by start time.
func (r *Report) FileName() string {
	name := r.RunID
	if t, err := time.Parse(time.RFC3339, r.StartedAt); err == nil {
		name = t.Format(fileTimeLayout) + "_" + r.RunID
	}
	return name + ".yaml"
}

func GetSystemInfo(ctx context.Context, zm *zfs.Manager) SystemInfo {
	info := SystemInfo{Hostname: "unknown"}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if v, err := zm.Version(ctx); err == nil {
		info.ZFSVersion = v
	} else {
		info.ZFSVersion = zfs.Version{Userland: "unknown", Kernel: "unknown"}
	}
	return info
}

func Write(filename string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

func Read(filename string) (*Report, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Report, error) {
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

// WriteTo stores r in dir under its FileName and returns the path.
func WriteTo(dir string, r *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	if err := Write(path, r); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Open reads a report file, decrypting it with identity when its name ends
// in ".age".
func Open(filename string, identity age.Identity) (*Report, error) {
	if !strings.HasSuffix(filename, ".age") {
		return Read(filename)
	}
	if identity == nil {
		return nil, fmt.Errorf("%s is encrypted, a private key is required", filename)
	}
	var buf bytes.Buffer
	if err := crypto.DecryptTo(&buf, filename, identity); err != nil {
		return nil, fmt.Errorf("failed to decrypt report: %w", err)
	}
	return Parse(buf.Bytes())
}

// Summarize prints r for a human reader.
func Summarize(w io.Writer, r *Report) {
	fmt.Fprintf(w, "Run %s on %s\n", r.RunID, r.System.Hostname)
	fmt.Fprintf(w, "  started:  %s\n", r.StartedAt)
	fmt.Fprintf(w, "  finished: %s\n", r.FinishedAt)
	if r.Failure != "" {
		fmt.Fprintf(w, "  FAILED:   %s\n", r.Failure)
	}
	for _, res := range r.Results {
		fmt.Fprintf(w, "  %s -> %s (%s): %s", res.Path, res.Device, res.Pool, res.Outcome)
		if res.Outcome == OutcomeArchived {
			fmt.Fprintf(w, ", %s, %d bytes", res.Mode, res.Size)
			if res.Blake3 != "" {
				fmt.Fprintf(w, ", blake3 %s", res.Blake3)
			}
		}
		fmt.Fprintln(w)
	}
	if len(r.Detached) > 0 {
		fmt.Fprintf(w, "  detached: %s\n", strings.Join(r.Detached, ", "))
	}
}
