package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-chi/chi/v5"

	"go.vocdoni.io/vaas/api"
)

func TestErrorKind(t *testing.T) {
	qt.Assert(t, ErrorKind(nil), qt.Equals, "none")
	qt.Assert(t, ErrorKind(api.ErrVoteDuplicate.With("x")), qt.Equals, "duplicate")
	qt.Assert(t, ErrorKind(fmt.Errorf("submit: %w", api.ErrProofInvalid)), qt.Equals, "proof")
	qt.Assert(t, ErrorKind(api.ErrCSPTokenInvalid), qt.Equals, "auth")
	qt.Assert(t, ErrorKind(io.EOF), qt.Equals, "other")
}

func TestAgent(t *testing.T) {
	RegisterVoter()
	RegisterVoter()
	VotesSubmitted.Inc()
	PollAttempts.WithLabelValues("nullifier").Inc()

	r := chi.NewRouter()
	NewAgent("/metrics", r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	qt.Assert(t, rec.Code, qt.Equals, http.StatusOK)
	body := rec.Body.String()
	qt.Assert(t, strings.Contains(body, "vaas_votes_submitted_total"), qt.IsTrue)
	qt.Assert(t, strings.Contains(body, `vaas_poll_attempts_total{target="nullifier"}`), qt.IsTrue)
}
