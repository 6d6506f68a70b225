package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mapwright/mapwright/internal/ledger"
)

func TestObserverCounts(t *testing.T) {
	m := New()
	m.CommandHandled("undo", time.Millisecond, nil)
	m.CommandHandled("undo", time.Millisecond, errors.New("boom"))
	m.CommandHandled("redo", time.Millisecond, nil)
	m.MapUpdated(ledger.ReasonCommitted, 3)
	m.MapUpdated(ledger.ReasonPreview, 1)
	m.SessionSaved(nil)

	if got := testutil.ToFloat64(m.commands.WithLabelValues("undo", "ok")); got != 1 {
		t.Errorf("undo ok = %v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("undo", "error")); got != 1 {
		t.Errorf("undo error = %v", got)
	}
	if got := testutil.ToFloat64(m.updates.WithLabelValues("committed")); got != 1 {
		t.Errorf("committed = %v", got)
	}
	if got := testutil.ToFloat64(m.saves.WithLabelValues("ok")); got != 1 {
		t.Errorf("saves = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.CommandHandled("pointer", time.Microsecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`mapwright_worker_commands_total{outcome="ok",type="pointer"} 1`,
		"mapwright_worker_command_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
