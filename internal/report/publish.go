package report

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"rotabak/internal/config"
	"rotabak/internal/crypto"
	"rotabak/internal/remote"

	"filippo.io/age"
)

// Publisher stores run reports. Dir keeps a plaintext copy; Backend, when
// set, receives a copy encrypted to Recipient if one is configured.
type Publisher struct {
	Dir       string
	Recipient age.Recipient
	Backend   remote.Backend
	Host      string
}

// NewPublisher builds the publisher described by the report settings. It
// returns nil when reporting is disabled.
func NewPublisher(ctx context.Context, cfg *config.Config) (*Publisher, error) {
	if !cfg.ReportEnabled() {
		return nil, nil
	}
	rc := cfg.Settings.Report

	p := &Publisher{Dir: rc.Dir, Host: "unknown"}
	if hostname, err := os.Hostname(); err == nil {
		p.Host = hostname
	}

	if rc.AgePublicKey != "" {
		recipient, err := age.ParseX25519Recipient(rc.AgePublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse age public key: %w", err)
		}
		p.Recipient = recipient
	}

	if rc.S3.Enabled {
		backend, err := remote.NewS3(ctx, rc.S3.Bucket, rc.S3.Region, rc.S3.Prefix, rc.S3.Endpoint,
			rc.S3.StorageClass, cfg.S3RetryAttempts())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
		}
		p.Backend = backend
	}

	return p, nil
}

// RemotePath is where a report file called name is uploaded.
func (p *Publisher) RemotePath(name string) string {
	return path.Join("reports", p.Host, name)
}

// Publish writes r and uploads it. It returns the local path of the report,
// empty when only S3 is configured.
func (p *Publisher) Publish(ctx context.Context, r *Report) (string, error) {
	dir := p.Dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "rotabak_report_*")
		if err != nil {
			return "", fmt.Errorf("failed to create temp directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	local, err := WriteTo(dir, r)
	if err != nil {
		return "", err
	}

	if p.Backend != nil {
		if err := p.upload(ctx, local); err != nil {
			return "", err
		}
	}

	if p.Dir == "" {
		return "", nil
	}
	return local, nil
}

func (p *Publisher) upload(ctx context.Context, local string) error {
	upload := local
	if p.Recipient != nil {
		upload = local + ".age"
		if err := crypto.Encrypt(local, upload, p.Recipient); err != nil {
			return fmt.Errorf("failed to encrypt report: %w", err)
		}
		defer os.Remove(upload)
	}

	sum, err := crypto.BLAKE3File(upload)
	if err != nil {
		return fmt.Errorf("failed to hash report: %w", err)
	}

	if err := p.Backend.Upload(ctx, upload, p.RemotePath(filepath.Base(upload)), sum); err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}
	return nil
}
