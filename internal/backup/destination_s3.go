package backup

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/mineops/walletback/internal/config"
)

// S3Destination mirrors archives into AWS S3 or S3-compatible storage.
type S3Destination struct {
	bucket   string
	prefix   string
	s3Client *s3.S3
	logger   *slog.Logger
}

// NewS3Destination creates the mirror destination from the config's mirror block.
func NewS3Destination(cfg *config.MirrorConfig, logger *slog.Logger) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces, etc.)
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &S3Destination{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		s3Client: s3.New(sess),
		logger:   logger.With("bucket", cfg.Bucket),
	}, nil
}

// Upload mirrors an archive to s3://bucket/prefix/filename.
func (sd *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key := path.Join(sd.prefix, filename)
	sd.logger.Info("mirror_upload_start", "key", key, "bytes", sizeBytes)

	// PutObject needs a seekable body
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	_, err = sd.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(sd.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(sizeBytes),
		ContentType:   aws.String("application/x-tar"),
		StorageClass:  aws.String("STANDARD"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	sd.logger.Info("mirror_upload_complete", "key", key)
	return nil
}

// List returns all backup files under the mirror prefix.
func (sd *S3Destination) List() ([]BackupFile, error) {
	prefix := sd.prefix
	if prefix != "" {
		prefix += "/"
	}

	result, err := sd.s3Client.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}

	var files []BackupFile
	for _, obj := range result.Contents {
		if *obj.Key == prefix {
			continue
		}

		files = append(files, BackupFile{
			Filename:  path.Base(*obj.Key),
			SizeBytes: *obj.Size,
			CreatedAt: obj.LastModified.Unix(),
		})
	}

	return files, nil
}

// Type returns the destination type
func (sd *S3Destination) Type() string {
	return "s3"
}
