// Package events provides lightweight event emission backed by the
// structured log. Events mark the money- and order-affecting moments of
// a cycle so an operator can reconstruct what happened from logs alone.
package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	CycleStarted     EventType = "CYCLE_STARTED"
	CycleCompleted   EventType = "CYCLE_COMPLETED"
	DecisionRecorded EventType = "DECISION_RECORDED"
	TradeSubmitted   EventType = "TRADE_SUBMITTED"
	TradeRejected    EventType = "TRADE_REJECTED"
	SlippageCancel   EventType = "SLIPPAGE_CANCEL"
	OutcomeRecorded  EventType = "OUTCOME_RECORDED"
	GuideCreated     EventType = "GUIDE_CREATED"
	GuideUpdated     EventType = "GUIDE_UPDATED"
	GuideDeactivated EventType = "GUIDE_DEACTIVATED"
	SymbolEnabled    EventType = "SYMBOL_ENABLED"
	SymbolDisabled   EventType = "SYMBOL_DISABLED"
	BackupCompleted  EventType = "BACKUP_COMPLETED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"
	StreamConnected  EventType = "STREAM_CONNECTED"
	StreamDisconnect EventType = "STREAM_DISCONNECTED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission and logging
type Manager struct {
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
