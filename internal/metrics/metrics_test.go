package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/resource"
)

func TestObserveWrite(t *testing.T) {
	m := New()
	org := resource.MustRef("bbp")

	m.ObserveWrite(resource.KindOrganization, "create", nil, time.Millisecond)
	m.ObserveWrite(resource.KindOrganization, "update", resource.ErrIncorrectRevision(org, 1, 2), time.Millisecond)
	m.ObserveWrite(resource.KindOrganization, "update", resource.ErrIncorrectRevision(org, 1, 2), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("organization", "create", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.writes.WithLabelValues("organization", "update", "revision_conflict")))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "internal", Outcome(errors.New("boom")))
	assert.Equal(t, "not_found", Outcome(resource.ErrNotFound(resource.MustRef("bbp"), 0)))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveWrite(resource.KindDomain, "create", nil, 0)
	m.Indexed(nil)
	m.SetQueueDepth(0, 3)
	m.Notified("published")
	m.AttachmentStored(10)
	m.ObserveRequest("GET", "/v0/organizations/{org}", 200)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Indexed(nil)
	m.SetQueueDepth(1, 4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nexus_index_revisions_total")
	assert.Contains(t, rec.Body.String(), `nexus_index_queue_depth{shard="1"} 4`)
}
