package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mineops/walletback/internal/config"
	"github.com/mineops/walletback/internal/ssh"
)

// Orchestrator fans one backup out to every configured host concurrently
// and aggregates the per-host results.
type Orchestrator struct {
	cfg    *config.Config
	dialer Dialer
	packer *ArchivePacker
	mirror Destination
	logger *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithDialer replaces the SFTP dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(o *Orchestrator) { o.dialer = d }
}

// WithMirror replaces the configured mirror destination.
func WithMirror(d Destination) Option {
	return func(o *Orchestrator) { o.mirror = d }
}

// WithProgress installs a transfer progress callback on the SFTP dialer.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		if dialer, ok := o.dialer.(*SFTPDialer); ok {
			dialer.Progress = fn
		}
	}
}

// New validates the configuration and credential and builds an orchestrator.
// Any error returned here is a configuration error: nothing has been
// dispatched and no network attempt has been made.
func New(cfg *config.Config, username string, cred ssh.Credential, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cred.Validate(); err != nil {
		return nil, err
	}

	if username == "" {
		return nil, fmt.Errorf("username must be set")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	o := &Orchestrator{
		cfg: cfg,
		packer: &ArchivePacker{
			Compression: CompressionConfig{Type: cfg.Compression},
			OutputDir:   cfg.ArchiveDir,
		},
		dialer: &SFTPDialer{
			Port:            cfg.Port,
			Username:        username,
			Credential:      cred,
			Timeout:         cfg.Timeout(),
			RemoteDir:       cfg.BackupDirectory,
			KnownHostsPath:  cfg.KnownHosts,
			TrustOnFirstUse: cfg.TrustOnFirstUse,
			Logger:          logger,
		},
		logger: logger,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.mirror == nil && cfg.Mirror != nil {
		mirror, err := NewS3Destination(cfg.Mirror, logger)
		if err != nil {
			return nil, fmt.Errorf("invalid mirror configuration: %w", err)
		}
		o.mirror = mirror
	}

	return o, nil
}

// Report aggregates one backup run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Archive   *ArchiveInfo
	Results   []HostResult
	Mirror    *HostResult
}

// Succeeded reports whether every host (and the mirror, when configured)
// received the backup.
func (r *Report) Succeeded() bool {
	for _, result := range r.Results {
		if !result.Succeeded {
			return false
		}
	}
	if r.Mirror != nil && !r.Mirror.Succeeded {
		return false
	}
	return true
}

// FailedHosts returns the hosts whose backup failed, in config order.
func (r *Report) FailedHosts() []string {
	var failed []string
	for _, result := range r.Results {
		if !result.Succeeded {
			failed = append(failed, result.Host)
		}
	}
	return failed
}

// Run packs the wallet directory once, dispatches one task per configured
// host, waits for all of them, and reports results in config host order.
// A failed pack fails every host task but still yields one result per host.
// Cancelling ctx stops dispatching new tasks; in-flight transfers finish.
func (o *Orchestrator) Run(ctx context.Context) *Report {
	report := &Report{
		RunID:     "run-" + uuid.New().String()[:8],
		StartedAt: time.Now(),
	}
	logger := o.logger.With("run_id", report.RunID)

	logger.Info("backup_start",
		"wallet_directory", o.cfg.WalletDirectory,
		"hosts", len(o.cfg.Hosts),
		"backup_directory", o.cfg.BackupDirectory,
	)

	// Packaging is serialized here so concurrent tasks never race on the
	// same archive path; the archive name itself stays collision-free via
	// its random discriminator.
	archive, packErr := o.packer.Pack(o.cfg.WalletDirectory)
	if packErr != nil {
		logger.Error("pack_failed", "error", packErr)
	} else {
		report.Archive = archive
		if !o.cfg.KeepLocalArchive {
			defer archive.Cleanup()
		}
		logger.Info("pack_complete",
			"archive", archive.Filename,
			"bytes", archive.SizeBytes,
			"files", archive.FileCount,
			"passthrough", archive.Passthrough,
		)
	}

	results := make([]HostResult, len(o.cfg.Hosts))
	var wg sync.WaitGroup

	for i, host := range o.cfg.Hosts {
		if packErr != nil {
			results[i] = HostResult{
				Host: host,
				Err:  &TaskError{Kind: KindPackaging, Host: host, Err: packErr},
			}
			continue
		}

		if ctx.Err() != nil {
			results[i] = HostResult{
				Host: host,
				Err:  &TaskError{Kind: KindCanceled, Host: host, Err: ctx.Err()},
			}
			continue
		}

		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()
			task := &HostTask{
				Host:    host,
				Archive: archive,
				Dialer:  o.dialer,
				Logger:  logger,
			}
			results[i] = task.Run(ctx)
		}(i, host)
	}

	wg.Wait()
	report.Results = results

	if o.mirror != nil && packErr == nil && ctx.Err() == nil {
		report.Mirror = o.runMirror(archive)
	}

	report.Duration = time.Since(report.StartedAt)
	logger.Info("backup_summary",
		"hosts", len(report.Results),
		"failed", len(report.FailedHosts()),
		"duration", report.Duration.Round(time.Millisecond),
	)

	return report
}

func (o *Orchestrator) runMirror(archive *ArchiveInfo) *HostResult {
	start := time.Now()
	result := &HostResult{Host: "mirror"}

	file, err := os.Open(archive.Path)
	if err != nil {
		result.Err = &TaskError{Kind: KindPackaging, Host: result.Host, Err: err}
		result.Duration = time.Since(start)
		return result
	}
	defer file.Close()

	if err := o.mirror.Upload(archive.Filename, file, archive.SizeBytes); err != nil {
		result.Err = &TaskError{Kind: KindTransfer, Host: result.Host, Err: err}
		result.Duration = time.Since(start)
		return result
	}

	result.Succeeded = true
	result.Duration = time.Since(start)
	return result
}

// HostListing is the outcome of listing remote backups on one host.
type HostListing struct {
	Host  string
	Files []BackupFile
	Err   error
}

// ListRemote enumerates the backups present on every configured host,
// with the same per-host failure isolation as Run.
func (o *Orchestrator) ListRemote(ctx context.Context) []HostListing {
	listings := make([]HostListing, len(o.cfg.Hosts))
	var wg sync.WaitGroup

	for i, host := range o.cfg.Hosts {
		if ctx.Err() != nil {
			listings[i] = HostListing{Host: host, Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()

			dest, err := o.dialer.Dial(host)
			if err != nil {
				listings[i] = HostListing{Host: host, Err: err}
				return
			}
			defer dest.Close()

			files, err := dest.List()
			listings[i] = HostListing{Host: host, Files: files, Err: err}
		}(i, host)
	}

	wg.Wait()
	return listings
}
