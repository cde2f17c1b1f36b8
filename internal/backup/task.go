package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// HostResult is the outcome of backing up to exactly one host.
// It is created once by the task that ran and never mutated afterwards.
type HostResult struct {
	Host      string
	Succeeded bool
	Err       error
	Duration  time.Duration
}

// HostTask backs up the wallet directory to one host: pack (or reuse the
// pre-packed archive), connect, upload, close. Every failure is folded into
// the HostResult so one bad host can never affect its siblings.
type HostTask struct {
	Host      string
	SourceDir string

	// Archive is the shared pre-packed archive. When nil the task packs
	// SourceDir itself and cleans its own archive up afterwards.
	Archive *ArchiveInfo
	Packer  *ArchivePacker

	Dialer Dialer
	Logger *slog.Logger
}

// Run executes the task. It always returns a result and never panics
// across the task boundary.
func (t *HostTask) Run(ctx context.Context) (result HostResult) {
	start := time.Now()
	result = HostResult{Host: t.Host}
	logger := t.logger()

	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			result.Succeeded = false
			result.Err = &TaskError{Kind: KindUnknown, Host: t.Host, Err: fmt.Errorf("panic: %v", r)}
			logger.Error("backup_panicked", "panic", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Err = &TaskError{Kind: KindCanceled, Host: t.Host, Err: err}
		return result
	}

	archive := t.Archive
	if archive == nil {
		packed, err := t.Packer.Pack(t.SourceDir)
		if err != nil {
			result.Err = &TaskError{Kind: KindPackaging, Host: t.Host, Err: err}
			logger.Error("backup_failed", "kind", KindPackaging.String(), "error", err)
			return result
		}
		archive = packed
		defer archive.Cleanup()
	}

	dest, err := t.Dialer.Dial(t.Host)
	if err != nil {
		kind := classifyConnectError(err)
		result.Err = &TaskError{Kind: kind, Host: t.Host, Err: err}
		logger.Error("backup_failed", "kind", kind.String(), "error", err)
		return result
	}
	defer dest.Close()

	file, err := os.Open(archive.Path)
	if err != nil {
		result.Err = &TaskError{Kind: KindPackaging, Host: t.Host, Err: err}
		logger.Error("backup_failed", "kind", KindPackaging.String(), "error", err)
		return result
	}
	defer file.Close()

	if err := dest.Upload(archive.Filename, file, archive.SizeBytes); err != nil {
		result.Err = &TaskError{Kind: KindTransfer, Host: t.Host, Err: err}
		logger.Error("backup_failed", "kind", KindTransfer.String(), "error", err)
		return result
	}

	result.Succeeded = true
	logger.Info("backup_complete", "archive", archive.Filename, "bytes", archive.SizeBytes,
		"duration", time.Since(start).Round(time.Millisecond))
	return result
}

func (t *HostTask) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t.Logger.With("host", t.Host)
}
