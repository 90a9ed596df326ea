package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRosterWrite_Counts(t *testing.T) {
	before := testutil.ToFloat64(rosterWrites.WithLabelValues("enlist", OutcomeOK))
	RosterWrite("enlist", OutcomeOK)
	after := testutil.ToFloat64(rosterWrites.WithLabelValues("enlist", OutcomeOK))
	if after-before != 1 {
		t.Errorf("expected +1, got %v", after-before)
	}
}

func TestStreamOpened_Balances(t *testing.T) {
	before := testutil.ToFloat64(activeStreams)
	done := StreamOpened()
	if got := testutil.ToFloat64(activeStreams); got != before+1 {
		t.Errorf("gauge after open: %v", got)
	}
	done()
	if got := testutil.ToFloat64(activeStreams); got != before {
		t.Errorf("gauge after close: %v", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	RosterWrite("assign_role", OutcomeNoop)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "rosterhub_roster_writes_total") {
		t.Error("expected roster write counter in exposition")
	}
}
