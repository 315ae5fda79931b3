package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/posts", 200, 20*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.AddSwept(3)
	m.ObserveReminder(true)
	m.ObserveReminder(false)
	m.ObserveTransition(models.AppointmentCompleted)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.0001)
	assert.Equal(t, uint64(3), snap.AppointmentsSwept)
	assert.Equal(t, uint64(1), snap.RemindersSent)
	assert.Equal(t, uint64(1), snap.RemindersFailed)
}

func TestMetricsServiceExposesDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.AddSwept(2)
	m.ObserveTransition(models.AppointmentWaitingToComplete)
	m.ObserveDataRequest(models.DataRequestExport, models.DataRequestCompleted)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "appointments_swept_total 2")
	assert.Contains(t, body, `appointment_transitions_total{status="WAITING_TO_COMPLETE"} 1`)
	assert.Contains(t, body, `gdpr_requests_total{status="COMPLETED",type="EXPORT"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.AddSwept(1)
	m.ObserveReminder(true)
	m.ObserveTransition(models.AppointmentCancelled)
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())
}
