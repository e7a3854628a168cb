package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/tradegate/internal/database"
)

type fakeUploader struct {
	err       error
	calls     int
	lastInput *s3.PutObjectInput
	body      []byte
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.calls++
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &manager.UploadOutput{}, nil
}

func newTestService(t *testing.T, uploader Uploader, cfg Config) *Service {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "audit.db"),
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Conn().Exec("CREATE TABLE decisions (id INTEGER PRIMARY KEY, run_id TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = db.Conn().Exec("INSERT INTO decisions (run_id) VALUES ('run-1')")
	require.NoError(t, err)

	return NewService(db, uploader, nil, cfg, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestRun_UploadsVerifiedSnapshot(t *testing.T) {
	staging := t.TempDir()
	uploader := &fakeUploader{}
	svc := newTestService(t, uploader, Config{
		Bucket:     "trade-backups",
		Prefix:     "/audit/",
		StagingDir: staging,
		Now: func() time.Time {
			return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
		},
	})

	key, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "audit/audit-20260304-120000.db", key)
	require.Equal(t, 1, uploader.calls)
	require.NotNil(t, uploader.lastInput)
	assert.Equal(t, "trade-backups", *uploader.lastInput.Bucket)
	assert.Equal(t, key, *uploader.lastInput.Key)
	assert.NotEmpty(t, uploader.body)

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_NoBucketFails(t *testing.T) {
	uploader := &fakeUploader{}
	svc := newTestService(t, uploader, Config{})

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
	assert.Equal(t, 0, uploader.calls)
	assert.False(t, svc.Configured())
}

func TestRun_UploadFailureCleansStaging(t *testing.T) {
	staging := t.TempDir()
	uploadErr := errors.New("access denied")
	uploader := &fakeUploader{err: uploadErr}
	svc := newTestService(t, uploader, Config{Bucket: "trade-backups", StagingDir: staging})

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, uploadErr)
	assert.Contains(t, err.Error(), "s3://trade-backups/")

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestObjectKey(t *testing.T) {
	ts := time.Date(2026, 3, 4, 9, 30, 15, 0, time.UTC)

	bare := newTestService(t, &fakeUploader{}, Config{Bucket: "b"})
	assert.Equal(t, "audit-20260304-093015.db", bare.objectKey(ts))

	nested := newTestService(t, &fakeUploader{}, Config{Bucket: "b", Prefix: "prod/audit"})
	assert.Equal(t, "prod/audit/audit-20260304-093015.db", nested.objectKey(ts))
}
