package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// BackupRunner uploads an audit database snapshot. Satisfied by
// *backup.Service.
type BackupRunner interface {
	Configured() bool
	Run(ctx context.Context) (string, error)
}

// AuditBackupJob ships a daily audit snapshot to S3
type AuditBackupJob struct {
	log     zerolog.Logger
	backups BackupRunner
	timeout time.Duration
}

// NewAuditBackupJob creates an audit backup job
func NewAuditBackupJob(backups BackupRunner, log zerolog.Logger) *AuditBackupJob {
	return &AuditBackupJob{
		log:     log.With().Str("job", "audit_backup").Logger(),
		backups: backups,
		timeout: 10 * time.Minute,
	}
}

// Name returns the job name
func (j *AuditBackupJob) Name() string {
	return "audit_backup"
}

// Run uploads one snapshot, skipping when no bucket is configured
func (j *AuditBackupJob) Run() error {
	if j.backups == nil || !j.backups.Configured() {
		j.log.Warn().Msg("Backup bucket not configured, skipping audit backup")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	key, err := j.backups.Run(ctx)
	if err != nil {
		return fmt.Errorf("audit backup failed: %w", err)
	}

	j.log.Info().Str("key", key).Msg("Audit backup job completed")
	return nil
}
