package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestErrorJSON(t *testing.T) {
	data, err := ErrVoteDuplicate.Withf("nullifier %x", []byte{1}).MarshalJSON()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, string(data), qt.Equals, `{"error":"duplicate vote: nullifier 01","code":4010}`)
}

func TestErrorWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrVoteProofInvalid.With("bad signature").Write(rec)
	qt.Assert(t, rec.Code, qt.Equals, http.StatusBadRequest)
	qt.Assert(t, rec.Header().Get("Content-Type"), qt.Equals, "application/json")

	err := CheckResponse(rec.Code, rec.Body.Bytes())
	qt.Assert(t, err, qt.ErrorIs, ErrProofInvalid)
	qt.Assert(t, err, qt.ErrorIs, ErrVoteProofInvalid)
	qt.Assert(t, err, qt.Not(qt.ErrorIs), ErrDuplicateVote)
	qt.Assert(t, err.Error(), qt.Equals, "eligibility proof invalid: bad signature")
}

func TestCheckResponse(t *testing.T) {
	qt.Assert(t, CheckResponse(200, []byte(`{"nullifier":"aa"}`)), qt.IsNil)
	qt.Assert(t, CheckResponse(200, []byte(`not json`)), qt.IsNil)

	// a 200 carrying an error field is still an error
	err := CheckResponse(200, []byte(`{"error":"token already used","code":4021}`))
	qt.Assert(t, err, qt.ErrorIs, ErrAuthRejected)
	qt.Assert(t, err, qt.ErrorMatches, "token already used")

	err = CheckResponse(502, []byte("bad gateway"))
	qt.Assert(t, err, qt.ErrorMatches, `API server returned status code is not 200: 502 \(bad gateway\)`)

	err = CheckResponse(400, []byte(`{"error":"something else","code":4999}`))
	var apiErr Error
	qt.Assert(t, errors.As(err, &apiErr), qt.IsTrue)
	qt.Assert(t, apiErr.Code, qt.Equals, 4999)
	qt.Assert(t, apiErr.HTTPstatus, qt.Equals, 400)
}

func TestIsRetryable(t *testing.T) {
	qt.Assert(t, IsRetryable(fmt.Errorf("election 01: %w", ErrNotYetOpen)), qt.IsTrue)
	qt.Assert(t, IsRetryable(ErrVoteElectionNotOpen.With("paused")), qt.IsTrue)
	qt.Assert(t, IsRetryable(ErrConfirmationTimeout), qt.IsTrue)
	qt.Assert(t, IsRetryable(ErrVoteElectionClosed), qt.IsFalse)
	qt.Assert(t, IsRetryable(ErrAuthRejected), qt.IsFalse)
}

func TestEndpointWithParam(t *testing.T) {
	p := EndpointWithParam(CSPSignEndpoint, ParamElectionID, "0a0b")
	p = EndpointWithParam(p, ParamMode, "blind")
	qt.Assert(t, p, qt.Equals, "/elections/0a0b/blind/sign")
}
