package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/domain"
)

type fakeBroker struct {
	health domain.HealthStatus
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.ExecutedOrder, error) {
	return nil, nil
}

func (f *fakeBroker) GetOrder(ctx context.Context, orderID string) (*domain.ExecutedOrder, error) {
	return nil, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}

func (f *fakeBroker) Health(ctx context.Context) domain.HealthStatus {
	return f.health
}

func newTestDB(t *testing.T, name string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, broker domain.BrokerAdapter) *Server {
	t.Helper()
	return New(Config{
		Log:     zerolog.New(nil).Level(zerolog.Disabled),
		AppDB:   newTestDB(t, "app"),
		AuditDB: newTestDB(t, "audit"),
		Broker:  broker,
	})
}

func statusResponse(t *testing.T, s *Server) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	s := New(Config{Log: zerolog.New(nil).Level(zerolog.Disabled)})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "tradegate", body["service"])
}

func TestSystemStatus_Healthy(t *testing.T) {
	s := newTestServer(t, nil)

	body := statusResponse(t, s)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "not_configured", body["broker"])

	databases := body["databases"].(map[string]interface{})
	assert.Equal(t, "healthy", databases["app"])
	assert.Equal(t, "healthy", databases["audit"])

	assert.GreaterOrEqual(t, body["uptime_seconds"].(float64), 0.0)
	assert.Contains(t, body, "cpu_percent")
	assert.Contains(t, body, "memory_percent")
}

func TestSystemStatus_HealthyBroker(t *testing.T) {
	s := newTestServer(t, &fakeBroker{health: domain.HealthStatus{Healthy: true}})

	body := statusResponse(t, s)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "healthy", body["broker"])
	assert.NotContains(t, body, "broker_reason")
}

func TestSystemStatus_BrokerDegrades(t *testing.T) {
	broker := &fakeBroker{health: domain.HealthStatus{Healthy: false, Reason: "account blocked"}}
	s := newTestServer(t, broker)

	body := statusResponse(t, s)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "degraded", body["broker"])
	assert.Equal(t, "account blocked", body["broker_reason"])
}

func TestSystemStatus_ClosedDatabaseDegrades(t *testing.T) {
	appDB := newTestDB(t, "app")
	auditDB := newTestDB(t, "audit")
	require.NoError(t, appDB.Close())

	s := New(Config{
		Log:     zerolog.New(nil).Level(zerolog.Disabled),
		AppDB:   appDB,
		AuditDB: auditDB,
	})

	body := statusResponse(t, s)
	assert.Equal(t, "degraded", body["status"])

	databases := body["databases"].(map[string]interface{})
	assert.Equal(t, "unhealthy", databases["app"])
	assert.Equal(t, "healthy", databases["audit"])
}
