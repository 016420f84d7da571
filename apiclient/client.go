// Package apiclient is the voter side client of the organization backend:
// election reads, ballot submission and confirmation polling, plus the
// administrative election calls.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/db/lru"
	"go.vocdoni.io/vaas/internal/httpclient"
	"go.vocdoni.io/vaas/types"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost
	// HTTPPUT is the method string used for calling Request()
	HTTPPUT = http.MethodPut

	confidentialCacheSize = 64
)

// timeNow is replaced in tests.
var timeNow = time.Now

// HTTPclient is the backend HTTP client. It is safe for concurrent use once
// configured.
type HTTPclient struct {
	rc      *httpclient.Client
	account *ethereum.SignKeys
	chainID string

	// confidential elections by election ID and shared key
	confidential *lru.Cache[string, *types.Election]
}

// NewHTTPclient creates a new HTTP(s) backend client. addr includes the API
// prefix, for instance https://backend.example/v1/pub.
func NewHTTPclient(addr *url.URL, bearerToken *uuid.UUID) *HTTPclient {
	return &HTTPclient{
		rc:           httpclient.New(addr, bearerToken),
		confidential: lru.New[string, *types.Election](confidentialCacheSize),
	}
}

// ChainID returns the chain identifier used when signing transactions.
func (c *HTTPclient) ChainID() string {
	return c.chainID
}

// SetChainID configures the chain identifier used when signing transactions.
func (c *HTTPclient) SetChainID(chainID string) {
	c.chainID = chainID
}

// SetAccount sets the account used for signing transactions when no keys
// are given to SubmitVote.
func (c *HTTPclient) SetAccount(accountPrivateKey string) error {
	account, err := ethereum.NewSignKeysFromHex(accountPrivateKey)
	if err != nil {
		return fmt.Errorf("%w: account key: %v", api.ErrConfig, err)
	}
	c.account = account
	return nil
}

// Account returns the account configured with SetAccount, if any.
func (c *HTTPclient) Account() *ethereum.SignKeys {
	return c.account
}

// SetAuthToken configures the bearer authentication token.
func (c *HTTPclient) SetAuthToken(token *uuid.UUID) {
	c.rc.SetAuthToken(token)
}

// SetRetries configures the attempts of idempotent requests on transport errors.
func (c *HTTPclient) SetRetries(n int) {
	c.rc.SetRetries(n)
}

// Request performs a `method` type raw request to the endpoint specified in
// urlPath. Returns the response, the status code and an error.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	return c.rc.Request(ctx, method, jsonBody, urlPath...)
}

// call performs a request, checks the response and decodes it into resp
// when not nil.
func (c *HTTPclient) call(ctx context.Context, method string, body, resp any, urlPath ...string) error {
	data, status, err := c.rc.Request(ctx, method, body, urlPath...)
	if err != nil {
		return err
	}
	return decode(status, data, resp)
}

// callOnce is call without transport retries.
func (c *HTTPclient) callOnce(ctx context.Context, method string, body, resp any, urlPath ...string) error {
	data, status, err := c.rc.RequestOnce(ctx, method, body, urlPath...)
	if err != nil {
		return err
	}
	return decode(status, data, resp)
}

func decode(status int, data []byte, resp any) error {
	if err := api.CheckResponse(status, data); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

func checkElectionID(electionID types.HexBytes) error {
	if len(electionID) != types.ElectionIDLength {
		return fmt.Errorf("%w: election ID must be %d bytes, got %d",
			api.ErrConfig, types.ElectionIDLength, len(electionID))
	}
	return nil
}
