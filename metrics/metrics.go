package metrics

import (
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/log"
)

// Voter flow collectors
var (
	// CSPRequests counts CSP calls by operation (auth, sign, sharedKey), mode and result.
	CSPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaas",
		Subsystem: "csp",
		Name:      "requests_total",
		Help:      "Number of requests sent to the CSP",
	}, []string{"operation", "mode", "result"})
	// VotesSubmitted ...
	VotesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaas",
		Subsystem: "votes",
		Name:      "submitted_total",
		Help:      "Number of ballots accepted by the backend",
	})
	// SubmitErrors counts rejected ballots by error kind.
	SubmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaas",
		Subsystem: "votes",
		Name:      "submit_errors_total",
		Help:      "Number of ballots rejected, by error kind",
	}, []string{"kind"})
	// PollAttempts counts confirmation polls by target (nullifier, transaction).
	PollAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaas",
		Subsystem: "poll",
		Name:      "attempts_total",
		Help:      "Number of confirmation polls",
	}, []string{"target"})
	// ConfirmationLatency ...
	ConfirmationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vaas",
		Subsystem: "votes",
		Name:      "confirmation_seconds",
		Help:      "Time from ballot submission to registration",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

var registerOnce sync.Once

// Agent serves the registered collectors.
type Agent struct {
	Path string
}

// NewAgent mounts the prometheus handler on the router at path.
func NewAgent(path string, router chi.Router) *Agent {
	router.Method(http.MethodGet, path, promhttp.Handler())
	log.Infof("prometheus metrics ready at: %s", path)
	return &Agent{Path: path}
}

// Register the provided prometheus collector, ignoring any error returned (simply logs a Warn)
func Register(c prometheus.Collector) {
	err := prometheus.Register(c)
	if err != nil {
		log.Warnf("cannot register metrics: (%s) (%+v)", err, c)
	}
}

// RegisterVoter registers the voter flow collectors. Further calls are no-ops.
func RegisterVoter() {
	registerOnce.Do(func() {
		Register(CSPRequests)
		Register(VotesSubmitted)
		Register(SubmitErrors)
		Register(PollAttempts)
		Register(ConfirmationLatency)
	})
}

// ErrorKind returns a short label for err, following the error taxonomy.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, api.ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, api.ErrProofInvalid):
		return "proof"
	case errors.Is(err, api.ErrElectionClosed):
		return "closed"
	case errors.Is(err, api.ErrNotYetOpen):
		return "not_open"
	case errors.Is(err, api.ErrAuthRejected):
		return "auth"
	case errors.Is(err, api.ErrConfig):
		return "config"
	case errors.Is(err, api.ErrConfirmationTimeout):
		return "timeout"
	}
	return "other"
}
