package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Sync(SyncParsed)
	m.Reconciled(time.Second, 3)
	m.BrokenLink()
	m.Searched("ok", time.Millisecond, true)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Sync(SyncParsed)
	m.Sync(SyncParsed)
	m.BrokenLink()
	m.Reconciled(20*time.Millisecond, 7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`nbweb_sync_total{outcome="parsed"} 2`,
		"nbweb_broken_links_total 1",
		"nbweb_indexed_documents 7",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestInstancesDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.BrokenLink()
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "nbweb_broken_links_total 1") {
		t.Error("second instance saw first instance's counter")
	}
}
