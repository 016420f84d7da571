package testcommon

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	blind "github.com/arnaucube/go-blindsecp256k1"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/crypto/saltedkey"
	"go.vocdoni.io/vaas/csp"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/types"
)

type issuedToken struct {
	electionID types.HexBytes
	mode       types.AuthMode
	k          *big.Int
	used       bool
}

// CSPSigner signs eligibility payloads the way a Vocdoni CSP does, with a
// single secp256k1 root key for both signing families. Tokens are single
// use. It implements csp.Signer without any transport.
type CSPSigner struct {
	Salted bool

	key    *ecdsa.PrivateKey
	mu     sync.Mutex
	tokens map[string]*issuedToken
}

var _ csp.Signer = (*CSPSigner)(nil)

// NewCSPSigner returns a signer with a fresh root key.
func NewCSPSigner(salted bool) (*CSPSigner, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &CSPSigner{Salted: salted, key: key, tokens: make(map[string]*issuedToken)}, nil
}

// PubKey returns the compressed root public key, as published in the census root.
func (s *CSPSigner) PubKey() []byte {
	return ethcrypto.CompressPubkey(&s.key.PublicKey)
}

// Issue creates a new token for the election and mode. Blind tokens are
// the uncompressed point R = k*G.
func (s *CSPSigner) Issue(electionID types.HexBytes, mode types.AuthMode) (types.HexBytes, error) {
	t := &issuedToken{electionID: electionID, mode: mode}
	var tokenR []byte
	switch mode {
	case types.AuthBlind:
		k, err := randScalar()
		if err != nil {
			return nil, err
		}
		x, y := ethcrypto.S256().ScalarBaseMult(k.FillBytes(make([]byte, 32)))
		t.k = k
		tokenR = (&blind.Point{X: x, Y: y}).BytesUncompressed()
	default:
		tokenR = make([]byte, 32)
		if _, err := rand.Read(tokenR); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[string(tokenR)] = t
	return tokenR, nil
}

// Token issues a token and wraps it as the client would receive it.
func (s *CSPSigner) Token(electionID types.HexBytes, mode types.AuthMode) (*csp.Token, error) {
	tokenR, err := s.Issue(electionID, mode)
	if err != nil {
		return nil, err
	}
	return &csp.Token{TokenR: tokenR, ElectionID: electionID, Mode: mode}, nil
}

// SignPlain implements csp.Signer.
func (s *CSPSigner) SignPlain(_ context.Context, token *csp.Token, payload []byte) (types.HexBytes, error) {
	return s.Sign(token.ElectionID, types.AuthPlain, token.TokenR, payload)
}

// SignBlind implements csp.Signer.
func (s *CSPSigner) SignBlind(_ context.Context, token *csp.Token, blinded []byte) (types.HexBytes, error) {
	return s.Sign(token.ElectionID, types.AuthBlind, token.TokenR, blinded)
}

// Sign consumes tokenR and signs payload. Errors are api.Error values.
func (s *CSPSigner) Sign(electionID types.HexBytes, mode types.AuthMode, tokenR, payload []byte) (types.HexBytes, error) {
	s.mu.Lock()
	t, ok := s.tokens[string(tokenR)]
	if ok && !t.used && t.mode == mode && string(t.electionID) == string(electionID) {
		t.used = true
	} else {
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, api.ErrCSPTokenInvalid.With("token not found, already used or issued for another election")
	}

	key := s.key
	if s.Salted {
		var err error
		if key, err = saltedkey.SaltECDSAPrivKey(s.key, electionID); err != nil {
			return nil, api.ErrInternal.WithErr(err)
		}
	}
	switch mode {
	case types.AuthBlind:
		sk := (*blind.PrivateKey)(key.D)
		sig, err := sk.BlindSign(new(big.Int).SetBytes(payload), t.k)
		if err != nil {
			return nil, api.ErrCSPTokenInvalid.WithErr(err)
		}
		return sig.Bytes(), nil
	default:
		sig, err := ethcrypto.Sign(ethereum.Hash(payload), key)
		if err != nil {
			return nil, api.ErrInternal.WithErr(err)
		}
		return sig, nil
	}
}

func randScalar() (*big.Int, error) {
	n := new(big.Int).Sub(ethcrypto.S256().Params().N, big.NewInt(1))
	k, err := rand.Int(rand.Reader, n)
	if err != nil {
		return nil, err
	}
	return k.Add(k, big.NewInt(1)), nil
}

// CSP is a fake CSP served over HTTP.
type CSP struct {
	*CSPSigner
	URL         *url.URL
	BearerToken *uuid.UUID

	// Authorize decides whether authData grants a token. Nil accepts everyone.
	Authorize func(electionID types.HexBytes, authData []string) error

	mu         sync.Mutex
	sharedKeys map[string]types.HexBytes
	issued     map[string]bool
	requests   atomic.Int64
}

// NewCSP starts a fake CSP under api.DefaultCSPPrefix, stopped on test cleanup.
func NewCSP(t testing.TB, salted bool) *CSP {
	signer, err := NewCSPSigner(salted)
	if err != nil {
		t.Fatal(err)
	}
	token := uuid.New()
	c := &CSP{CSPSigner: signer, BearerToken: &token, sharedKeys: make(map[string]types.HexBytes), issued: make(map[string]bool)}

	r := newRouter()
	r.Route(api.DefaultCSPPrefix, func(r chi.Router) {
		r.Use(bearerAuth(c.BearerToken), c.count)
		r.Post(api.CSPAuthEndpoint, c.auth)
		r.Post(api.CSPSignEndpoint, c.sign)
		r.Post(api.CSPSharedKeyEndpoint, c.sharedKey)
	})
	c.URL = serve(t, r, api.DefaultCSPPrefix)
	log.Debugw("fake CSP started", "url", c.URL.String(), "salted", salted)
	return c
}

// Requests returns the number of requests received.
func (c *CSP) Requests() int { return int(c.requests.Load()) }

// SetSharedKey configures the key returned for a confidential election.
func (c *CSP) SetSharedKey(electionID, key types.HexBytes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sharedKeys[string(electionID)] = key
}

func (c *CSP) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (c *CSP) auth(w http.ResponseWriter, r *http.Request) {
	electionID, mode, ok := cspParams(w, r)
	if !ok {
		return
	}
	var req api.AuthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.AuthData) == 0 {
		api.ErrCSPAuthFailed.With("missing auth data").Write(w)
		return
	}
	if c.Authorize != nil {
		if err := c.Authorize(electionID, req.AuthData); err != nil {
			api.ErrCSPAuthFailed.WithErr(err).Write(w)
			return
		}
	}
	// one token per voter and election
	voter := string(electionID) + "\x00" + strings.Join(req.AuthData, "\x00")
	c.mu.Lock()
	if c.issued[voter] {
		c.mu.Unlock()
		api.ErrCSPAuthFailed.With("a token was already issued for this voter").Write(w)
		return
	}
	c.issued[voter] = true
	c.mu.Unlock()
	tokenR, err := c.Issue(electionID, mode)
	if err != nil {
		c.mu.Lock()
		delete(c.issued, voter)
		c.mu.Unlock()
		api.ErrInternal.WithErr(err).Write(w)
		return
	}
	api.HTTPWriteJSON(w, &api.TokenResponse{TokenR: tokenR})
}

func (c *CSP) sign(w http.ResponseWriter, r *http.Request) {
	electionID, mode, ok := cspParams(w, r)
	if !ok {
		return
	}
	var req api.SignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sig, err := c.Sign(electionID, mode, req.TokenR, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	api.HTTPWriteJSON(w, &api.SignResponse{Signature: sig})
}

func (c *CSP) sharedKey(w http.ResponseWriter, r *http.Request) {
	electionID, ok := electionParam(w, r)
	if !ok {
		return
	}
	var req api.AuthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if c.Authorize != nil {
		if err := c.Authorize(electionID, req.AuthData); err != nil {
			api.ErrCSPAuthFailed.WithErr(err).Write(w)
			return
		}
	}
	c.mu.Lock()
	key, found := c.sharedKeys[string(electionID)]
	c.mu.Unlock()
	if !found {
		api.ErrElectionNotFound.Write(w)
		return
	}
	api.HTTPWriteJSON(w, &api.SharedKeyResponse{SharedKey: key})
}

func cspParams(w http.ResponseWriter, r *http.Request) (types.HexBytes, types.AuthMode, bool) {
	electionID, ok := electionParam(w, r)
	if !ok {
		return nil, 0, false
	}
	mode, err := types.ParseAuthMode(chi.URLParam(r, api.ParamMode))
	if err != nil {
		api.ErrCSPModeUnsupported.WithErr(err).Write(w)
		return nil, 0, false
	}
	return electionID, mode, true
}

func electionParam(w http.ResponseWriter, r *http.Request) (types.HexBytes, bool) {
	electionID, err := types.HexStringToHexBytes(chi.URLParam(r, api.ParamElectionID))
	if err != nil || len(electionID) != types.ElectionIDLength {
		api.ErrMalformedElectionID.Write(w)
		return nil, false
	}
	return electionID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.ErrMalformedBody.WithErr(err).Write(w)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		api.ErrMalformedBody.WithErr(err).Write(w)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(api.Error); ok {
		apiErr.Write(w)
		return
	}
	api.ErrInternal.With(fmt.Sprint(err)).Write(w)
}
