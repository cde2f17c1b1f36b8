package backup

import "io"

// Destination is a place an archive can be put.
type Destination interface {
	// Upload writes the archive from reader to the destination under filename.
	Upload(filename string, reader io.Reader, sizeBytes int64) error

	// List returns the backup files currently at the destination.
	List() ([]BackupFile, error)

	// Type returns the destination type identifier.
	Type() string
}

// RemoteDestination is a destination backed by an open remote session.
// It is owned exclusively by the task that dialed it and must be closed
// when the task completes.
type RemoteDestination interface {
	Destination
	io.Closer
}

// Dialer opens a remote destination on one host. The orchestrator holds a
// single dialer and calls it once per host task.
type Dialer interface {
	Dial(host string) (RemoteDestination, error)
}

// BackupFile represents a file at a backup destination
type BackupFile struct {
	Filename  string
	SizeBytes int64
	CreatedAt int64 // Unix timestamp
}

// ProgressFunc receives transfer progress updates.
type ProgressFunc func(written, total int64)
