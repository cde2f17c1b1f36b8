package backup

import (
	"compress/gzip"
	"strings"

	"github.com/mineops/walletback/internal/config"
)

// CompressionConfig controls archive compression
// Type values: "gzip", "none"
type CompressionConfig struct {
	Type  string `yaml:"type" json:"type"`
	Level int    `yaml:"level,omitempty" json:"level,omitempty"`
}

func normalizeCompression(config CompressionConfig) CompressionConfig {
	compressionType := strings.ToLower(strings.TrimSpace(config.Type))
	if compressionType != "gzip" {
		compressionType = "none"
	}

	level := config.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}

	return CompressionConfig{
		Type:  compressionType,
		Level: level,
	}
}

func archiveExtension(config CompressionConfig) string {
	switch normalizeCompression(config).Type {
	case "gzip":
		return "tar.gz"
	default:
		return "tar"
	}
}

// isArchiveName reports whether a path already names a packaged archive,
// in which case packing is a pass-through. Config validation applies the
// same predicate, so a source accepted there is never rejected here.
func isArchiveName(name string) bool {
	return config.IsArchiveName(name)
}
