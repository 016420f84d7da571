package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.vocdoni.io/vaas/log"
)

// Error taxonomy of the voting flow. Use errors.Is to match them; every
// layer wraps with %w and keeps the remote message.
var (
	// ErrConfig is malformed local input, never retried.
	ErrConfig = errors.New("invalid configuration")
	// ErrAuthRejected is a CSP refusal of a token or signature request.
	ErrAuthRejected = errors.New("CSP authentication rejected")
	// ErrProofInvalid is a ballot rejected as cryptographically invalid.
	ErrProofInvalid = errors.New("eligibility proof invalid")
	// ErrDuplicateVote is a second ballot for an already used eligibility.
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrElectionClosed is returned once the election reached ENDED, CANCELED or RESULTS.
	ErrElectionClosed = errors.New("election closed")
	// ErrNotYetOpen is returned while the election is UPCOMING or PAUSED; retry later.
	ErrNotYetOpen = errors.New("election not open yet")
	// ErrConfirmationTimeout is an exhausted polling budget; resume with the same nullifier or hash.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// IsRetryable reports whether err is worth retrying later by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotYetOpen) || errors.Is(err, ErrConfirmationTimeout)
}

// Error is used by handler functions to wrap errors, assigning a unique error code
// and also specifying which HTTP Status should be used.
//
// Error codes in the 4001-4999 range are the user's fault,
// and error codes 5001-5999 are the server's fault, mimicking HTTP.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// Wire errors. The ones wrapping a taxonomy sentinel are decoded back into
// it on the client side by their code.
var (
	ErrMalformedBody         = Error{Code: 4000, HTTPstatus: http.StatusBadRequest, Err: errors.New("malformed JSON body")}
	ErrMalformedElectionID   = Error{Code: 4001, HTTPstatus: http.StatusBadRequest, Err: errors.New("malformed election ID")}
	ErrElectionNotFound      = Error{Code: 4002, HTTPstatus: http.StatusNotFound, Err: errors.New("election not found")}
	ErrNullifierNotFound     = Error{Code: 4003, HTTPstatus: http.StatusNotFound, Err: errors.New("nullifier not found")}
	ErrTransactionNotFound   = Error{Code: 4004, HTTPstatus: http.StatusNotFound, Err: errors.New("transaction not found")}
	ErrVoteMalformed         = Error{Code: 4005, HTTPstatus: http.StatusBadRequest, Err: errors.New("malformed vote transaction")}
	ErrSharedKeyInvalid      = Error{Code: 4006, HTTPstatus: http.StatusUnauthorized, Err: errors.New("invalid shared key")}
	ErrUnauthorized          = Error{Code: 4007, HTTPstatus: http.StatusUnauthorized, Err: errors.New("missing or invalid bearer token")}
	ErrVoteDuplicate         = Error{Code: 4010, HTTPstatus: http.StatusConflict, Err: ErrDuplicateVote}
	ErrVoteProofInvalid      = Error{Code: 4011, HTTPstatus: http.StatusBadRequest, Err: ErrProofInvalid}
	ErrVoteElectionClosed    = Error{Code: 4012, HTTPstatus: http.StatusConflict, Err: ErrElectionClosed}
	ErrVoteElectionNotOpen   = Error{Code: 4013, HTTPstatus: http.StatusConflict, Err: ErrNotYetOpen}
	ErrCSPAuthFailed         = Error{Code: 4020, HTTPstatus: http.StatusUnauthorized, Err: ErrAuthRejected}
	ErrCSPTokenInvalid       = Error{Code: 4021, HTTPstatus: http.StatusBadRequest, Err: ErrAuthRejected}
	ErrCSPModeUnsupported    = Error{Code: 4022, HTTPstatus: http.StatusBadRequest, Err: ErrConfig}
	ErrStatusTransition      = Error{Code: 4030, HTTPstatus: http.StatusBadRequest, Err: errors.New("invalid status transition")}
	ErrElectionConfigInvalid = Error{Code: 4031, HTTPstatus: http.StatusBadRequest, Err: ErrConfig}
	ErrInternal              = Error{Code: 5000, HTTPstatus: http.StatusInternalServerError, Err: errors.New("internal error")}
)

var errorsByCode = func() map[int]Error {
	m := make(map[int]Error)
	for _, e := range []Error{
		ErrMalformedBody, ErrMalformedElectionID, ErrElectionNotFound, ErrNullifierNotFound,
		ErrTransactionNotFound, ErrVoteMalformed, ErrSharedKeyInvalid, ErrUnauthorized,
		ErrVoteDuplicate, ErrVoteProofInvalid, ErrVoteElectionClosed, ErrVoteElectionNotOpen,
		ErrCSPAuthFailed, ErrCSPTokenInvalid, ErrCSPModeUnsupported, ErrStatusTransition,
		ErrElectionConfigInvalid, ErrInternal,
	} {
		m[e.Code] = e
	}
	return m
}()

// MarshalJSON returns a JSON containing Err.Error() and Code. Field HTTPstatus is ignored.
//
// Example output: {"error":"duplicate vote","code":4010}
func (e Error) MarshalJSON() ([]byte, error) {
	// json.Marshal doesn't call Err.Error(), so the string goes in an anon struct.
	return json.Marshal(
		struct {
			Err  string `json:"error"`
			Code int    `json:"code"`
		}{
			Err:  e.Err.Error(),
			Code: e.Code,
		})
}

// Error returns the message contained inside the Error
func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the wrapped error, usually a taxonomy sentinel.
func (e Error) Unwrap() error {
	return e.Err
}

// Is matches wire errors by code, so a decoded remote error equals the
// variable it was produced from.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code == e.Code
}

// Write serializes the error as JSON with its HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	log.Debugw("API error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(msg); err != nil {
		log.Warnw("cannot write error response", "error", err)
	}
}

// Withf returns a copy of Error with the Sprintf formatted string appended at the end of e.Err
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// With returns a copy of Error with the string appended at the end of e.Err
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of Error with err.Error() appended at the end of e.Err
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err.Error()),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// errCodeNot200 prefixes errors for responses without a decodable error body.
const errCodeNot200 = "API server returned status code is not 200"

// CheckResponse turns a raw HTTP response into an error when the status is
// not 200 or the JSON body carries an "error" field. Known codes are mapped
// back to their wire error, so errors.Is matches the taxonomy sentinels.
// It returns nil for successful responses.
func CheckResponse(status int, body []byte) error {
	var e struct {
		Err  string `json:"error"`
		Code int    `json:"code"`
	}
	decoded := json.Unmarshal(body, &e) == nil
	if status == http.StatusOK && (!decoded || e.Err == "") {
		return nil
	}
	if !decoded || e.Err == "" {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, body)
	}
	known, ok := errorsByCode[e.Code]
	if !ok {
		return Error{Err: errors.New(e.Err), Code: e.Code, HTTPstatus: status}
	}
	// The remote message already starts with the sentinel text.
	return Error{
		Err:        &remoteError{msg: e.Err, kind: known.Err},
		Code:       e.Code,
		HTTPstatus: status,
	}
}

// remoteError keeps the exact remote message while matching the local sentinel.
type remoteError struct {
	msg  string
	kind error
}

func (r *remoteError) Error() string { return r.msg }

func (r *remoteError) Unwrap() error { return r.kind }
