package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/database"
)

// WALCheckpointJob keeps the WAL files of the long-lived databases from
// growing unbounded between natural checkpoints
type WALCheckpointJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewWALCheckpointJob creates a WAL checkpoint job for the given databases
func NewWALCheckpointJob(databases []*database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run passively checkpoints each database and warns when a WAL has grown
// past the auto-checkpoint threshold
func (j *WALCheckpointJob) Run() error {
	for _, db := range j.databases {
		if db == nil {
			continue
		}

		var busy, frames, checkpointed int
		err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to checkpoint WAL")
			continue
		}

		if frames > 1000 {
			j.log.Warn().
				Str("database", db.Name()).
				Int("wal_frames", frames).
				Int("checkpointed", checkpointed).
				Msg("WAL file is large")
			continue
		}

		j.log.Debug().
			Str("database", db.Name()).
			Int("wal_frames", frames).
			Msg("WAL checkpoint OK")
	}

	return nil
}
