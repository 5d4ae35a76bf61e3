package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Login(true)
	r.Login(false)
	r.Login(false)
	r.GuessAccepted()
	r.Rejected("round_closed")
	r.Settled(2)
	r.Settled(0)
	r.RoundOpen(false)
	r.StoreError("settle")

	if got := testutil.ToFloat64(r.logins.WithLabelValues("false")); got != 2 {
		t.Errorf("returning logins = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.settlements); got != 2 {
		t.Errorf("settlements = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.winners); got != 2 {
		t.Errorf("winners = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.roundOpen); got != 0 {
		t.Errorf("round_open = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.rejected.WithLabelValues("round_closed")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Login(true)
	r.GuessAccepted()
	r.Rejected("x")
	r.Settled(1)
	r.RoundOpen(true)
	r.StoreError("x")
}

func TestHandlerExposition(t *testing.T) {
	r := New()
	r.GuessAccepted()

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "roundguess_guesses_total 1") {
		t.Errorf("exposition missing guesses counter:\n%s", w.Body.String())
	}
}
