package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SettlementPoller reconciles open orders against the broker. Satisfied
// by *settlement.Service.
type SettlementPoller interface {
	PollOpenOrders(ctx context.Context) error
}

// SettlementPollJob drives order settlement on a fixed interval as a
// backstop for the trade update stream
type SettlementPollJob struct {
	log     zerolog.Logger
	poller  SettlementPoller
	timeout time.Duration
}

// NewSettlementPollJob creates a settlement poll job
func NewSettlementPollJob(poller SettlementPoller, log zerolog.Logger) *SettlementPollJob {
	return &SettlementPollJob{
		log:     log.With().Str("job", "settlement_poll").Logger(),
		poller:  poller,
		timeout: 25 * time.Second,
	}
}

// Name returns the job name
func (j *SettlementPollJob) Name() string {
	return "settlement_poll"
}

// Run polls open orders once
func (j *SettlementPollJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.poller.PollOpenOrders(ctx); err != nil {
		return fmt.Errorf("settlement poll failed: %w", err)
	}
	return nil
}
