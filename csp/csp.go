// Package csp is the client side of the Certification Service Provider
// protocol: it exchanges voter credentials for a single use signing token
// and asks the CSP to sign, plainly or blindly, the eligibility payload.
package csp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/internal/httpclient"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/metrics"
	"go.vocdoni.io/vaas/types"
)

var (
	// ErrWrongMode is returned when a token is used with the other signing family.
	ErrWrongMode = fmt.Errorf("%w: token issued for another auth mode", api.ErrConfig)
	// ErrWrongElection is returned when a token is used for another election.
	ErrWrongElection = fmt.Errorf("%w: token issued for another election", api.ErrConfig)
)

// Token is a single use signing token, bound to the election and the mode
// it was issued for. In blind mode TokenR is the uncompressed point R.
type Token struct {
	TokenR     types.HexBytes
	ElectionID types.HexBytes
	Mode       types.AuthMode
}

// Signer is the signing half of the CSP, as used by the proof builder.
type Signer interface {
	SignPlain(ctx context.Context, token *Token, payload []byte) (types.HexBytes, error)
	SignBlind(ctx context.Context, token *Token, blinded []byte) (types.HexBytes, error)
}

// Client talks to a CSP. It is safe for concurrent use.
type Client struct {
	rc *httpclient.Client
}

var _ Signer = (*Client)(nil)

// New returns a CSP client. addr includes the API prefix, such as
// https://csp.example.com/v1/auth.
func New(addr *url.URL, bearerToken *uuid.UUID) *Client {
	return &Client{rc: httpclient.New(addr, bearerToken)}
}

// SetRetries configures the attempts of idempotent requests. Auth and sign
// requests consume tokens and are never retried.
func (c *Client) SetRetries(n int) { c.rc.SetRetries(n) }

// RequestToken sends the authentication data and returns a signing token
// for the election and mode.
func (c *Client) RequestToken(ctx context.Context, electionID types.HexBytes,
	mode types.AuthMode, auth AuthData,
) (*Token, error) {
	if err := checkElectionID(electionID); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, fmt.Errorf("%w: missing auth data", api.ErrConfig)
	}
	var resp api.TokenResponse
	if err := c.post(ctx, "auth", mode.Endpoint(), &api.AuthRequest{AuthData: auth.Encode()}, &resp,
		endpoint(api.CSPAuthEndpoint, electionID, mode)); err != nil {
		return nil, err
	}
	if len(resp.TokenR) == 0 {
		return nil, fmt.Errorf("%w: empty token", api.ErrAuthRejected)
	}
	log.Debugw("CSP token received", "electionId", electionID.String(),
		"mode", mode.Endpoint(), "tokenSize", len(resp.TokenR))
	return &Token{TokenR: resp.TokenR, ElectionID: electionID, Mode: mode}, nil
}

// RequestSharedKey returns the key unlocking the metadata of a confidential election.
func (c *Client) RequestSharedKey(ctx context.Context, electionID types.HexBytes, auth AuthData) (types.HexBytes, error) {
	if err := checkElectionID(electionID); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, fmt.Errorf("%w: missing auth data", api.ErrConfig)
	}
	var resp api.SharedKeyResponse
	path := api.EndpointWithParam(api.CSPSharedKeyEndpoint, api.ParamElectionID, electionID.String())
	if err := c.post(ctx, "sharedKey", "none", &api.AuthRequest{AuthData: auth.Encode()}, &resp, path); err != nil {
		return nil, err
	}
	if len(resp.SharedKey) == 0 {
		return nil, fmt.Errorf("%w: empty shared key", api.ErrAuthRejected)
	}
	return resp.SharedKey, nil
}

// SignPlain asks for an ECDSA signature of payload with a plain mode token.
func (c *Client) SignPlain(ctx context.Context, token *Token, payload []byte) (types.HexBytes, error) {
	return c.sign(ctx, types.AuthPlain, token, payload)
}

// SignBlind asks for a blind signature of an already blinded message with a
// blind mode token.
func (c *Client) SignBlind(ctx context.Context, token *Token, blinded []byte) (types.HexBytes, error) {
	return c.sign(ctx, types.AuthBlind, token, blinded)
}

func (c *Client) sign(ctx context.Context, mode types.AuthMode, token *Token, payload []byte) (types.HexBytes, error) {
	if token == nil {
		return nil, fmt.Errorf("%w: missing token", api.ErrConfig)
	}
	if err := CheckToken(token, token.ElectionID, mode); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", api.ErrConfig)
	}
	var resp api.SignResponse
	if err := c.post(ctx, "sign", mode.Endpoint(), &api.SignRequest{TokenR: token.TokenR, Payload: payload}, &resp,
		endpoint(api.CSPSignEndpoint, token.ElectionID, mode)); err != nil {
		return nil, err
	}
	if len(resp.Signature) == 0 {
		return nil, fmt.Errorf("%w: empty signature", api.ErrAuthRejected)
	}
	return resp.Signature, nil
}

// CheckToken verifies that token was issued for the election and mode.
func CheckToken(token *Token, electionID types.HexBytes, mode types.AuthMode) error {
	if token == nil || len(token.TokenR) == 0 {
		return fmt.Errorf("%w: missing token", api.ErrConfig)
	}
	if token.Mode != mode {
		return fmt.Errorf("%w: have %s, want %s", ErrWrongMode, token.Mode, mode)
	}
	if err := checkElectionID(electionID); err != nil {
		return err
	}
	if !bytes.Equal(token.ElectionID, electionID) {
		return ErrWrongElection
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, modeLabel string, body, resp any, path string) error {
	data, status, err := c.rc.Request(ctx, http.MethodPost, body, path)
	if err == nil {
		err = api.CheckResponse(status, data)
		if err != nil && !errors.Is(err, api.ErrAuthRejected) && !errors.Is(err, api.ErrConfig) {
			// every CSP refusal is an authentication rejection
			err = fmt.Errorf("%w: %w", api.ErrAuthRejected, err)
		}
	}
	if err == nil {
		if err = json.Unmarshal(data, resp); err != nil {
			err = fmt.Errorf("%w: could not decode CSP response: %v", api.ErrAuthRejected, err)
		}
	}
	result := "ok"
	if err != nil {
		result = metrics.ErrorKind(err)
	}
	metrics.CSPRequests.WithLabelValues(op, modeLabel, result).Inc()
	return err
}

func endpoint(pattern string, electionID types.HexBytes, mode types.AuthMode) string {
	p := api.EndpointWithParam(pattern, api.ParamElectionID, electionID.String())
	return api.EndpointWithParam(p, api.ParamMode, mode.Endpoint())
}

func checkElectionID(electionID types.HexBytes) error {
	if len(electionID) != types.ElectionIDLength {
		return fmt.Errorf("%w: election ID must be %d bytes, got %d",
			api.ErrConfig, types.ElectionIDLength, len(electionID))
	}
	return nil
}
