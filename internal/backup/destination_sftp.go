package backup

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/pkg/sftp"
	sshclient "github.com/mineops/walletback/internal/ssh"
)

// SFTPDialer opens SFTP destinations, one authenticated session per host.
type SFTPDialer struct {
	Port            int
	Username        string
	Credential      sshclient.Credential
	Timeout         time.Duration
	RemoteDir       string
	KnownHostsPath  string
	TrustOnFirstUse bool
	Logger          *slog.Logger
	Progress        ProgressFunc
}

// SFTPDestination places archives in a directory on a remote SFTP server.
type SFTPDestination struct {
	host       string
	remoteDir  string
	sshClient  *sshclient.Client
	sftpClient *sftp.Client
	logger     *slog.Logger
	progress   ProgressFunc
}

// Dial validates the credential, connects and authenticates to host, and
// ensures the remote backup directory exists. A missing credential fails
// before any network attempt.
func (d *SFTPDialer) Dial(host string) (RemoteDestination, error) {
	client, err := sshclient.Dial(&sshclient.ClientConfig{
		Host:            host,
		Port:            d.Port,
		Username:        d.Username,
		Credential:      d.Credential,
		Timeout:         d.Timeout,
		KnownHostsPath:  d.KnownHostsPath,
		TrustOnFirstUse: d.TrustOnFirstUse,
		HostKeyLogger:   hostKeyLogger{d.logger(host)},
	})
	if err != nil {
		return nil, err
	}

	sftpClient, err := client.NewSFTP(
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	if err := sftpClient.MkdirAll(d.RemoteDir); err != nil {
		sftpClient.Close()
		client.Close()
		return nil, fmt.Errorf("failed to create remote backup directory: %w", err)
	}

	return &SFTPDestination{
		host:       host,
		remoteDir:  d.RemoteDir,
		sshClient:  client,
		sftpClient: sftpClient,
		logger:     d.logger(host),
		progress:   d.Progress,
	}, nil
}

func (d *SFTPDialer) logger(host string) *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d.Logger.With("host", host)
}

// Close closes the SFTP and SSH connections
func (sd *SFTPDestination) Close() error {
	if sd.sftpClient != nil {
		sd.sftpClient.Close()
	}
	if sd.sshClient != nil {
		return sd.sshClient.Close()
	}
	return nil
}

// Upload transfers the archive to remoteDir/filename. There is no retry;
// a partial remote file is removed before reporting the failure.
func (sd *SFTPDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	destPath := path.Join(sd.remoteDir, filename)
	sd.logger.Info("upload_start", "path", destPath, "bytes", sizeBytes)

	file, err := sd.sftpClient.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer file.Close()

	src := reader
	if sd.progress != nil {
		src = &progressReader{reader: reader, total: sizeBytes, progress: sd.progress}
	}

	written, err := io.Copy(file, src)
	if err != nil {
		sd.sftpClient.Remove(destPath)
		return fmt.Errorf("failed to write remote file: %w", err)
	}

	if written != sizeBytes {
		sd.sftpClient.Remove(destPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}

	sd.logger.Info("upload_complete", "path", destPath, "bytes", written)
	return nil
}

// List returns all backup files in the remote backup directory.
func (sd *SFTPDestination) List() ([]BackupFile, error) {
	entries, err := sd.sftpClient.ReadDir(sd.remoteDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}

	return files, nil
}

// Type returns the destination type
func (sd *SFTPDestination) Type() string {
	return "sftp"
}

type progressReader struct {
	reader   io.Reader
	total    int64
	written  int64
	progress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.written += int64(n)
		pr.progress(pr.written, pr.total)
	}
	return n, err
}

type hostKeyLogger struct {
	logger *slog.Logger
}

func (h hostKeyLogger) KeyAccepted(host, fingerprint string) {
	h.logger.Info("ssh_host_key_accepted", "host", host, "fingerprint", fingerprint)
}

func (h hostKeyLogger) KeyChanged(host, fingerprint string) {
	h.logger.Warn("ssh_host_key_changed", "host", host, "fingerprint", fingerprint)
}
