// Package backup snapshots the audit database and ships it to S3. The
// snapshot is taken with VACUUM INTO so the copy is consistent while
// writers are active, then verified before upload.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/events"
)

// Uploader is the S3 seam
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

var _ Uploader = (*manager.Uploader)(nil)

// Config holds backup settings
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	StagingDir      string
	Now             func() time.Time
}

// Service snapshots the audit database and uploads the snapshot
type Service struct {
	log          zerolog.Logger
	db           *database.DB
	uploader     Uploader
	eventManager *events.Manager
	cfg          Config
}

// NewService creates a backup service
func NewService(db *database.DB, uploader Uploader, eventManager *events.Manager, cfg Config, log zerolog.Logger) *Service {
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		log:          log.With().Str("service", "backup").Logger(),
		db:           db,
		uploader:     uploader,
		eventManager: eventManager,
		cfg:          cfg,
	}
}

// NewUploader builds an S3 multipart uploader from the environment's AWS
// configuration. Static credentials from cfg take precedence when both
// halves are present.
func NewUploader(ctx context.Context, cfg Config) (Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return manager.NewUploader(s3.NewFromConfig(awsCfg)), nil
}

// Configured reports whether a destination bucket is set
func (s *Service) Configured() bool {
	return s.cfg.Bucket != ""
}

// Run snapshots the audit database, verifies the snapshot and uploads it.
// Returns the S3 object key of the uploaded backup.
func (s *Service) Run(ctx context.Context) (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("backup not configured: no S3 bucket set")
	}

	start := s.cfg.Now()
	stagingPath := filepath.Join(s.cfg.StagingDir, fmt.Sprintf("audit-staging-%d.db", start.UnixNano()))
	defer os.Remove(stagingPath)

	if err := s.snapshot(stagingPath); err != nil {
		return "", err
	}
	if err := s.verify(stagingPath); err != nil {
		return "", err
	}

	key := s.objectKey(start)
	size, err := s.upload(ctx, stagingPath, key)
	if err != nil {
		return "", err
	}

	duration := time.Since(start)
	if s.eventManager != nil {
		s.eventManager.Emit(events.BackupCompleted, "backup", map[string]interface{}{
			"bucket":     s.cfg.Bucket,
			"key":        key,
			"size_bytes": size,
		})
	}

	s.log.Info().
		Str("bucket", s.cfg.Bucket).
		Str("key", key).
		Int64("size_bytes", size).
		Dur("duration_ms", duration).
		Msg("Audit backup uploaded")

	return key, nil
}

// snapshot writes an atomic copy of the audit database. VACUUM INTO
// produces a fresh file without WAL residue.
func (s *Service) snapshot(stagingPath string) error {
	if _, err := s.db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", stagingPath)); err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}
	return nil
}

// verify opens the snapshot and runs an integrity check before it is
// allowed anywhere near the bucket
func (s *Service) verify(stagingPath string) error {
	snapshotDB, err := sql.Open("sqlite", stagingPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snapshotDB.Close()

	var result string
	if err := snapshotDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

func (s *Service) upload(ctx context.Context, stagingPath, key string) (int64, error) {
	f, err := os.Open(stagingPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return 0, fmt.Errorf("failed to upload snapshot to s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}

	return info.Size(), nil
}

func (s *Service) objectKey(ts time.Time) string {
	name := fmt.Sprintf("audit-%s.db", ts.UTC().Format("20060102-150405"))
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
