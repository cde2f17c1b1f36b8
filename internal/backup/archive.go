package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ArchivePacker packages a wallet directory into a single tar archive.
type ArchivePacker struct {
	// Compression selects the archive format ("none" -> .tar, "gzip" -> .tar.gz).
	Compression CompressionConfig

	// OutputDir is where archives are written. Empty means a fresh temporary
	// directory per Pack, which ArchiveInfo.Cleanup removes afterwards.
	OutputDir string
}

// ArchiveInfo contains metadata about a created archive
type ArchiveInfo struct {
	Filename    string
	Path        string
	SizeBytes   int64
	CreatedAt   time.Time
	FileCount   int
	Passthrough bool

	tempDir string
}

// Cleanup removes the archive's temporary directory. It is a no-op for
// pass-through archives and for archives written to a caller-chosen directory.
func (a *ArchiveInfo) Cleanup() error {
	if a.tempDir == "" {
		return nil
	}
	return os.RemoveAll(a.tempDir)
}

// Pack creates an archive of sourceDir and returns its metadata.
// A source whose name already carries an archive suffix is used as-is,
// without any write. Archive names embed the unix timestamp plus a random
// discriminator so concurrent packs of the same directory never collide.
func (p *ArchivePacker) Pack(sourceDir string) (*ArchiveInfo, error) {
	if isArchiveName(sourceDir) {
		info, err := os.Stat(sourceDir)
		if err != nil {
			return nil, fmt.Errorf("archive is not accessible: %w", err)
		}
		return &ArchiveInfo{
			Filename:    filepath.Base(sourceDir),
			Path:        sourceDir,
			SizeBytes:   info.Size(),
			CreatedAt:   info.ModTime(),
			Passthrough: true,
		}, nil
	}

	now := time.Now()
	compression := normalizeCompression(p.Compression)
	filename := fmt.Sprintf("%s-%d-%s.%s",
		filepath.Base(sourceDir), now.Unix(), uuid.New().String()[:8], archiveExtension(compression))

	outputDir := p.OutputDir
	var tempDir string
	if outputDir == "" {
		dir, err := os.MkdirTemp("", "walletback-")
		if err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
		outputDir = dir
		tempDir = dir
	} else if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	archivePath := filepath.Join(outputDir, filename)
	fileCount, err := writeArchive(archivePath, sourceDir, compression)
	if err != nil {
		os.Remove(archivePath)
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	return &ArchiveInfo{
		Filename:  filename,
		Path:      archivePath,
		SizeBytes: info.Size(),
		CreatedAt: now,
		FileCount: fileCount,
		tempDir:   tempDir,
	}, nil
}

func writeArchive(archivePath, sourceDir string, compression CompressionConfig) (int, error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	var dst io.Writer = out
	var gzWriter *gzip.Writer
	if compression.Type == "gzip" {
		gzWriter, err = gzip.NewWriterLevel(out, compression.Level)
		if err != nil {
			return 0, fmt.Errorf("failed to configure compression: %w", err)
		}
		dst = gzWriter
	}

	tarWriter := tar.NewWriter(dst)
	fileCount, err := addTree(tarWriter, sourceDir)
	if err != nil {
		return 0, err
	}

	if err := tarWriter.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if gzWriter != nil {
		if err := gzWriter.Close(); err != nil {
			return 0, fmt.Errorf("failed to finalize compression: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to write archive: %w", err)
	}

	return fileCount, nil
}

// addTree writes the full recursive contents of sourceDir, with entries
// rooted at the directory's base name.
func addTree(tw *tar.Writer, sourceDir string) (int, error) {
	root := filepath.Base(sourceDir)
	fileCount := 0

	err := filepath.WalkDir(sourceDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}

		name := root
		if rel != "." {
			name = root + "/" + filepath.ToSlash(rel)
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			link, err = os.Readlink(p)
			if err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			file, err := os.Open(p)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, file)
			file.Close()
			if err != nil {
				return err
			}
			fileCount++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to archive %s: %w", sourceDir, err)
	}

	return fileCount, nil
}
