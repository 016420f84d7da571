package voter_test

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/apiclient"
	"go.vocdoni.io/vaas/ballot"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/csp"
	"go.vocdoni.io/vaas/db/metadb"
	"go.vocdoni.io/vaas/receipt"
	"go.vocdoni.io/vaas/retry"
	"go.vocdoni.io/vaas/test/testcommon"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/voter"
)

var questions = []types.Question{
	{Title: "q1", Choices: []string{"yes", "no"}},
	{Title: "q2", Choices: []string{"a", "b", "c"}},
}

type testEnv struct {
	csp     *testcommon.CSP
	backend *testcommon.Backend
	api     *apiclient.HTTPclient
}

func newTestEnv(t *testing.T, salted bool) *testEnv {
	fake := testcommon.NewCSP(t, salted)
	backend := testcommon.NewBackend(t, fake.PubKey())
	return &testEnv{
		csp:     fake,
		backend: backend,
		api:     apiclient.NewHTTPclient(backend.URL, backend.BearerToken),
	}
}

func (te *testEnv) newElection(t *testing.T, typ string, mutate func(*api.ElectionCreate)) types.HexBytes {
	et, err := types.ParseElectionType(typ)
	qt.Assert(t, err, qt.IsNil)
	req := &api.ElectionCreate{
		Title:         "election",
		EndDate:       time.Now().Add(time.Hour),
		Type:          typ,
		Confidential:  et.Confidential,
		HiddenResults: et.HiddenResults,
		Questions:     questions,
	}
	if mutate != nil {
		mutate(req)
	}
	created, err := te.api.CreateElection(context.Background(), req)
	qt.Assert(t, err, qt.IsNil)
	if et.Confidential {
		te.csp.SetSharedKey(created.ElectionID, te.backend.SharedKey(created.ElectionID))
	}
	return created.ElectionID
}

func (te *testEnv) voter(t *testing.T) *voter.Voter {
	keys := ethereum.NewSignKeys()
	qt.Assert(t, keys.Generate(), qt.IsNil)
	return &voter.Voter{
		API:        te.api,
		CSP:        csp.New(te.csp.URL, te.csp.BearerToken),
		Keys:       keys,
		Salted:     te.csp.Salted,
		CSPPubKey:  te.csp.PubKey(),
		Policy:     retry.Constant(time.Millisecond, 5),
		OpenPolicy: retry.Constant(time.Millisecond, 2),
		Receipts:   receipt.NewStore(metadb.NewTest(t)),
	}
}

func TestCastBlindHiddenResults(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, true)
	te.backend.RegisterAfter = 1
	id := te.newElection(t, "blind-plain-hidden-results", nil)
	v := te.voter(t)

	r, err := v.Cast(context.Background(), id, []int{1, 2})
	c.Assert(err, qt.IsNil)
	c.Assert(r.Registered, qt.IsTrue)
	c.Assert(r.Mode, qt.Equals, "blind")
	c.Assert(r.ExplorerURL, qt.Not(qt.Equals), "")

	// the ballot is not signed by the voter identity
	c.Assert(r.Nullifier, qt.Not(qt.DeepEquals), testcommon.Nullifier(v.Keys.Address().Bytes(), id))

	stored, err := v.Receipts.Get(id)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Nullifier, qt.DeepEquals, r.Nullifier)
	c.Assert(stored.Registered, qt.IsTrue)

	envs := te.backend.Envelopes(id)
	c.Assert(envs, qt.HasLen, 1)
	pkg, err := ballot.Decrypt(envs[0].VotePackage, te.backend.Keys(id))
	c.Assert(err, qt.IsNil)
	c.Assert(pkg.Votes, qt.DeepEquals, []int{1, 2})
}

func TestCastBlindWithBallotKeys(t *testing.T) {
	te := newTestEnv(t, false)
	id := te.newElection(t, "blind-plain", nil)
	v := te.voter(t)
	v.BallotKeys = ethereum.NewSignKeys()
	qt.Assert(t, v.BallotKeys.Generate(), qt.IsNil)

	r, err := v.Cast(context.Background(), id, []int{0, 0})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, r.Nullifier, qt.DeepEquals, testcommon.Nullifier(v.BallotKeys.Address().Bytes(), id))
}

func TestCastPlainOpen(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, false)
	id := te.newElection(t, "signed-plain", nil)
	v := te.voter(t)

	r, err := v.Cast(context.Background(), id, []int{0, 1})
	c.Assert(err, qt.IsNil)
	c.Assert(r.Registered, qt.IsTrue)
	c.Assert(r.Mode, qt.Equals, "signed")
	c.Assert(r.Nullifier, qt.DeepEquals, testcommon.Nullifier(v.Keys.Address().Bytes(), id))

	envs := te.backend.Envelopes(id)
	c.Assert(envs, qt.HasLen, 1)
	pkg, err := ballot.DecodePackage(envs[0].VotePackage)
	c.Assert(err, qt.IsNil)
	c.Assert(pkg.Votes, qt.DeepEquals, []int{0, 1})

	// the same identity cannot vote twice
	_, err = v.Cast(context.Background(), id, []int{1, 1})
	c.Assert(err, qt.ErrorIs, api.ErrDuplicateVote)
	c.Assert(te.backend.Votes(), qt.Equals, 1)
}

func TestCastConfidential(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, true)
	id := te.newElection(t, "blind-confidential", nil)
	v := te.voter(t)

	// choices are checked against the unlocked questions before any token is requested
	before := te.csp.Requests()
	_, err := v.Cast(context.Background(), id, []int{0, 3})
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
	c.Assert(te.csp.Requests()-before, qt.Equals, 1)

	r, err := v.Cast(context.Background(), id, []int{0, 2})
	c.Assert(err, qt.IsNil)
	c.Assert(r.Registered, qt.IsTrue)
}

func TestElectionUnlocksConfidential(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, false)
	id := te.newElection(t, "signed-confidential", nil)
	v := te.voter(t)

	public, err := te.api.Election(context.Background(), id)
	c.Assert(err, qt.IsNil)
	c.Assert(public.Questions, qt.HasLen, 0)

	e, err := v.Election(context.Background(), id)
	c.Assert(err, qt.IsNil)
	c.Assert(e.Questions, qt.DeepEquals, questions)
	c.Assert(te.csp.Requests(), qt.Equals, 1)
}

func TestCastTimeoutAndResume(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, true)
	te.backend.RegisterAfter = 4
	id := te.newElection(t, "blind-plain", nil)
	v := te.voter(t)
	v.Policy = retry.Constant(time.Millisecond, 2)

	r, err := v.Cast(context.Background(), id, []int{1, 0})
	c.Assert(err, qt.ErrorIs, api.ErrConfirmationTimeout)
	c.Assert(api.IsRetryable(err), qt.IsTrue)
	c.Assert(r, qt.IsNotNil)
	c.Assert(r.Registered, qt.IsFalse)

	stored, err := v.Receipts.Get(id)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Registered, qt.IsFalse)
	c.Assert(stored.LastChecked.IsZero(), qt.IsFalse)

	v.Policy = retry.Constant(time.Millisecond, 5)
	r, err = v.Resume(context.Background(), id)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Registered, qt.IsTrue)
	c.Assert(r.Nullifier, qt.DeepEquals, stored.Nullifier)

	// a registered receipt is returned without polling
	before := te.backend.Requests()
	r, err = v.Resume(context.Background(), id)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Registered, qt.IsTrue)
	c.Assert(te.backend.Requests(), qt.Equals, before)
	c.Assert(te.backend.Votes(), qt.Equals, 1)
}

func TestResumeWithoutReceipt(t *testing.T) {
	te := newTestEnv(t, true)
	v := te.voter(t)
	_, err := v.Resume(context.Background(), make(types.HexBytes, types.ElectionIDLength))
	qt.Assert(t, err, qt.ErrorIs, receipt.ErrNotFound)

	v.Receipts = nil
	_, err = v.Resume(context.Background(), make(types.HexBytes, types.ElectionIDLength))
	qt.Assert(t, err, qt.ErrorIs, api.ErrConfig)
}

func TestCastWaitsForUpcoming(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, true)
	start := time.Now().Add(200 * time.Millisecond)
	id := te.newElection(t, "blind-plain", func(r *api.ElectionCreate) { r.StartDate = &start })
	v := te.voter(t)
	v.OpenPolicy = retry.Constant(50*time.Millisecond, 40)

	r, err := v.Cast(context.Background(), id, []int{0, 0})
	c.Assert(err, qt.IsNil)
	c.Assert(r.Registered, qt.IsTrue)
	c.Assert(time.Now().Before(start), qt.IsFalse)
}

func TestCastNotOpen(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, true)
	start := time.Now().Add(time.Hour)
	id := te.newElection(t, "blind-plain", func(r *api.ElectionCreate) {
		r.StartDate = &start
		r.EndDate = start.Add(time.Hour)
	})
	v := te.voter(t)

	_, err := v.Cast(context.Background(), id, []int{0, 0})
	c.Assert(err, qt.ErrorIs, api.ErrNotYetOpen)
	// the CSP is never contacted while the election is not open
	c.Assert(te.csp.Requests(), qt.Equals, 0)
}

func TestCastClosed(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, true)
	id := te.newElection(t, "blind-plain", nil)
	te.backend.SetStatus(id, types.StatusCanceled)
	v := te.voter(t)

	_, err := v.Cast(context.Background(), id, []int{0, 0})
	c.Assert(err, qt.ErrorIs, api.ErrElectionClosed)
	c.Assert(api.IsRetryable(err), qt.IsFalse)
	c.Assert(te.csp.Requests(), qt.Equals, 0)
}

func TestCastModeMismatch(t *testing.T) {
	te := newTestEnv(t, true)
	id := te.newElection(t, "blind-plain", nil)
	v := te.voter(t)
	plain := types.AuthPlain
	v.Mode = &plain

	_, err := v.Cast(context.Background(), id, []int{0, 0})
	qt.Assert(t, err, qt.ErrorIs, api.ErrConfig)
	qt.Assert(t, te.csp.Requests(), qt.Equals, 0)
}

func TestCastAuthRejected(t *testing.T) {
	te := newTestEnv(t, true)
	te.csp.Authorize = func(types.HexBytes, []string) error {
		return api.ErrCSPAuthFailed.With("unknown voter")
	}
	id := te.newElection(t, "blind-plain", nil)
	v := te.voter(t)

	_, err := v.Cast(context.Background(), id, []int{0, 0})
	qt.Assert(t, err, qt.ErrorIs, api.ErrAuthRejected)
	qt.Assert(t, te.backend.Votes(), qt.Equals, 0)
}

func TestCastBlindTwice(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, true)
	id := te.newElection(t, "blind-plain", nil)
	v := te.voter(t)

	_, err := v.Cast(context.Background(), id, []int{0, 1})
	c.Assert(err, qt.IsNil)

	// the stored receipt stops a second ballot before any token is requested
	sent := te.csp.Requests()
	_, err = v.Cast(context.Background(), id, []int{1, 1})
	c.Assert(err, qt.ErrorIs, api.ErrDuplicateVote)
	c.Assert(te.csp.Requests(), qt.Equals, sent)

	// without the receipt the CSP refuses a second token for the same voter
	again := te.voter(t)
	again.Keys = v.Keys
	_, err = again.Cast(context.Background(), id, []int{1, 1})
	c.Assert(err, qt.ErrorIs, api.ErrAuthRejected)
	c.Assert(te.backend.Votes(), qt.Equals, 1)
}

func TestCastEndsWhileAuthenticating(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, true)
	id := te.newElection(t, "blind-plain", nil)
	e, ok := te.backend.Election(id)
	c.Assert(ok, qt.IsTrue)
	v := te.voter(t)
	// the clock passes the end date once the CSP has been contacted
	v.Clock = func() time.Time {
		if te.csp.Requests() > 0 {
			return e.EndDate.Add(time.Minute)
		}
		return time.Now()
	}

	_, err := v.Cast(context.Background(), id, []int{0, 0})
	c.Assert(err, qt.ErrorIs, api.ErrElectionClosed)
	c.Assert(te.csp.Requests() > 0, qt.IsTrue)
	c.Assert(te.backend.Votes(), qt.Equals, 0)
	_, err = v.Receipts.Get(id)
	c.Assert(err, qt.ErrorIs, receipt.ErrNotFound)
}

func TestResults(t *testing.T) {
	c := qt.New(t)
	te := newTestEnv(t, false)
	results := [][]types.Result{{{Title: "yes", Value: "3"}, {Title: "no", Value: "1"}}}
	publish := func(id types.HexBytes) {
		e, ok := te.backend.Election(id)
		c.Assert(ok, qt.IsTrue)
		e.Results = results
		te.backend.AddElection(e, te.backend.SharedKey(id), te.backend.Keys(id)...)
	}
	v := te.voter(t)

	open := te.newElection(t, "blind-plain", nil)
	publish(open)
	got, err := v.Results(context.Background(), open)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, results)

	hidden := te.newElection(t, "blind-plain-hidden-results", nil)
	publish(hidden)
	_, err = v.Results(context.Background(), hidden)
	c.Assert(err, qt.ErrorIs, api.ErrNotYetOpen)
	te.backend.SetStatus(hidden, types.StatusResults)
	got, err = v.Results(context.Background(), hidden)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, results)

	te.backend.SetStatus(open, types.StatusCanceled)
	_, err = v.Results(context.Background(), open)
	c.Assert(err, qt.ErrorIs, api.ErrElectionClosed)
}
