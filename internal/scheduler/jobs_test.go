package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/tradegate/internal/database"
)

type fakePoller struct {
	err   error
	calls int
}

func (f *fakePoller) PollOpenOrders(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeBackupRunner struct {
	configured bool
	key        string
	err        error
	calls      int
}

func (f *fakeBackupRunner) Configured() bool {
	return f.configured
}

func (f *fakeBackupRunner) Run(ctx context.Context) (string, error) {
	f.calls++
	return f.key, f.err
}

func TestSettlementPoll_Delegates(t *testing.T) {
	poller := &fakePoller{}
	job := NewSettlementPollJob(poller, quietLog())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, poller.calls)
	assert.Equal(t, "settlement_poll", job.Name())
}

func TestSettlementPoll_WrapsError(t *testing.T) {
	pollErr := errors.New("broker unreachable")
	job := NewSettlementPollJob(&fakePoller{err: pollErr}, quietLog())

	err := job.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, pollErr)
	assert.Contains(t, err.Error(), "settlement poll failed")
}

func TestAuditBackup_SkipsUnconfigured(t *testing.T) {
	backups := &fakeBackupRunner{configured: false}
	job := NewAuditBackupJob(backups, quietLog())

	require.NoError(t, job.Run())
	assert.Equal(t, 0, backups.calls)
}

func TestAuditBackup_RunsWhenConfigured(t *testing.T) {
	backups := &fakeBackupRunner{configured: true, key: "audit/audit-20260304-120000.db"}
	job := NewAuditBackupJob(backups, quietLog())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, backups.calls)
	assert.Equal(t, "audit_backup", job.Name())
}

func TestAuditBackup_WrapsError(t *testing.T) {
	uploadErr := errors.New("s3 unavailable")
	job := NewAuditBackupJob(&fakeBackupRunner{configured: true, err: uploadErr}, quietLog())

	err := job.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, uploadErr)
	assert.Contains(t, err.Error(), "audit backup failed")
}

func TestWALCheckpoint_RunsAgainstLiveDatabases(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "app.db"),
		Profile: database.ProfileStandard,
		Name:    "app",
	})
	require.NoError(t, err)
	defer db.Close()

	job := NewWALCheckpointJob([]*database.DB{db}, quietLog())

	require.NoError(t, job.Run())
	assert.Equal(t, "wal_checkpoint", job.Name())
}
