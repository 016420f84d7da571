package testcommon

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.vocdoni.io/proto/build/go/models"
	"google.golang.org/protobuf/proto"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/ballot"
	"go.vocdoni.io/vaas/crypto"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/crypto/nacl"
	"go.vocdoni.io/vaas/election"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/proof"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/util"
)

// hiddenResultsKeys is the number of encryption keys of the elections
// created through the API with hidden results.
const hiddenResultsKeys = 2

type storedElection struct {
	election  types.Election
	sharedKey types.HexBytes
	keys      []crypto.Cipher
	envelopes []*models.VoteEnvelope
}

type nullifierState struct {
	electionID types.HexBytes
	polls      int
}

// Backend is a fake organization backend served over HTTP. Ballots are
// verified like the ledger does: transaction signature, election status and
// CSP proof against CSPPubKey.
type Backend struct {
	URL         *url.URL
	BearerToken *uuid.UUID
	CSPPubKey   []byte
	ChainID     string

	// RegisterAfter is the number of nullifier polls answered as not
	// registered before a ballot is registered.
	RegisterAfter int
	// MineAfter is the number of transaction polls answered as not mined
	// before a creation transaction is mined.
	MineAfter int
	// Now is the backend clock. Nil means time.Now.
	Now func() time.Time

	mu         sync.Mutex
	elections  map[string]*storedElection
	nullifiers map[string]*nullifierState
	txs        map[string]int
	requests   atomic.Int64
	votes      atomic.Int64
}

// NewBackend starts a fake backend under api.DefaultAPIPrefix, stopped on
// test cleanup. Proofs are verified against cspPubKey.
func NewBackend(t testing.TB, cspPubKey []byte) *Backend {
	token := uuid.New()
	b := &Backend{
		BearerToken: &token,
		CSPPubKey:   cspPubKey,
		elections:   make(map[string]*storedElection),
		nullifiers:  make(map[string]*nullifierState),
		txs:         make(map[string]int),
	}
	r := newRouter()
	r.Route(api.DefaultAPIPrefix, func(r chi.Router) {
		r.Use(bearerAuth(b.BearerToken), b.count)
		r.Post(api.ElectionsEndpoint, b.createElection)
		r.Get(api.ElectionEndpoint, b.election)
		r.Get(api.ElectionConfidentialEndpoint, b.electionConfidential)
		r.Put(api.ElectionStatusEndpoint, b.setStatus)
		r.Post(api.VoteEndpoint, b.vote)
		r.Get(api.NullifierEndpoint, b.nullifier)
		r.Get(api.TransactionEndpoint, b.transaction)
	})
	b.URL = serve(t, r, api.DefaultAPIPrefix)
	log.Debugw("fake backend started", "url", b.URL.String())
	return b
}

func (b *Backend) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

// Requests returns the number of requests received.
func (b *Backend) Requests() int { return int(b.requests.Load()) }

// Votes returns the number of accepted ballots.
func (b *Backend) Votes() int { return int(b.votes.Load()) }

// AddElection stores e as is. A non empty sharedKey makes the metadata
// confidential; keys are the private halves of e.EncryptionPubKeys, if any.
func (b *Backend) AddElection(e *types.Election, sharedKey types.HexBytes, keys ...crypto.Cipher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elections[string(e.ElectionID)] = &storedElection{election: *e, sharedKey: sharedKey, keys: keys}
}

// SetStatus overrides the recorded status of an election, bypassing the
// transition checks.
func (b *Backend) SetStatus(electionID types.HexBytes, status types.ElectionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if se, ok := b.elections[string(electionID)]; ok {
		se.election.Status = status
	}
}

// Election returns a copy of the stored election, with its current status.
func (b *Backend) Election(electionID types.HexBytes) (*types.Election, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	se, ok := b.elections[string(electionID)]
	if !ok {
		return nil, false
	}
	e := se.election
	e.Status = election.StatusAt(&se.election, b.now())
	return &e, true
}

// Keys returns the private encryption keys of an election, in index order.
func (b *Backend) Keys(electionID types.HexBytes) []crypto.Cipher {
	b.mu.Lock()
	defer b.mu.Unlock()
	if se, ok := b.elections[string(electionID)]; ok {
		return se.keys
	}
	return nil
}

// Envelopes returns the accepted ballots of an election.
func (b *Backend) Envelopes(electionID types.HexBytes) []*models.VoteEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	if se, ok := b.elections[string(electionID)]; ok {
		return append([]*models.VoteEnvelope(nil), se.envelopes...)
	}
	return nil
}

// Nullifier computes the nullifier of a CSP ballot, as the ledger does.
func Nullifier(voter []byte, electionID types.HexBytes) types.HexBytes {
	return ethereum.HashRaw(append(append([]byte{}, voter...), electionID...))
}

func (b *Backend) createElection(w http.ResponseWriter, r *http.Request) {
	var req api.ElectionCreate
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := types.ParseElectionType(req.Type); err != nil || req.EndDate.IsZero() {
		api.ErrElectionConfigInvalid.Withf("type %q, end date %s", req.Type, req.EndDate).Write(w)
		return
	}
	se := &storedElection{election: types.Election{
		ElectionID:    util.RandomBytes(types.ElectionIDLength),
		Type:          req.Type,
		Title:         req.Title,
		Description:   req.Description,
		Header:        req.Header,
		StreamURI:     req.StreamURI,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Confidential:  req.Confidential,
		HiddenResults: req.HiddenResults,
		Questions:     req.Questions,
		Status:        types.StatusReady,
	}}
	if req.Confidential {
		se.sharedKey = util.RandomBytes(32)
	}
	if req.HiddenResults {
		for i := 0; i < hiddenResultsKeys; i++ {
			key, err := nacl.Generate(rand.Reader)
			if err != nil {
				api.ErrInternal.WithErr(err).Write(w)
				return
			}
			se.keys = append(se.keys, key)
			se.election.EncryptionPubKeys = append(se.election.EncryptionPubKeys, types.EncryptionPubKey{
				Idx: i,
				Key: fmt.Sprintf("%x", key.Public().Bytes()),
			})
		}
	}
	txHash := util.RandomBytes(32)
	b.mu.Lock()
	b.elections[string(se.election.ElectionID)] = se
	b.txs[string(txHash)] = 0
	b.mu.Unlock()
	api.HTTPWriteJSON(w, &api.ElectionCreated{ElectionID: se.election.ElectionID, TxHash: txHash})
}

// SharedKey returns the shared key of a confidential election created
// through the API.
func (b *Backend) SharedKey(electionID types.HexBytes) types.HexBytes {
	b.mu.Lock()
	defer b.mu.Unlock()
	if se, ok := b.elections[string(electionID)]; ok {
		return se.sharedKey
	}
	return nil
}

func (b *Backend) lookup(w http.ResponseWriter, r *http.Request) (*types.Election, *storedElection, bool) {
	electionID, ok := electionParam(w, r)
	if !ok {
		return nil, nil, false
	}
	b.mu.Lock()
	se, found := b.elections[string(electionID)]
	var e types.Election
	if found {
		e = se.election
		e.Status = election.StatusAt(&se.election, b.now())
	}
	b.mu.Unlock()
	if !found {
		api.ErrElectionNotFound.Write(w)
		return nil, nil, false
	}
	if e.HiddenResults && e.Status != types.StatusResults {
		e.Results = nil
	}
	return &e, se, true
}

func (b *Backend) election(w http.ResponseWriter, r *http.Request) {
	e, se, ok := b.lookup(w, r)
	if !ok {
		return
	}
	if len(se.sharedKey) > 0 {
		e.Title, e.Description, e.Header, e.StreamURI = "", "", "", ""
		e.Questions = nil
	}
	api.HTTPWriteJSON(w, e)
}

func (b *Backend) electionConfidential(w http.ResponseWriter, r *http.Request) {
	e, se, ok := b.lookup(w, r)
	if !ok {
		return
	}
	key, err := types.HexStringToHexBytes(chi.URLParam(r, api.ParamSharedKey))
	if err != nil || len(se.sharedKey) == 0 || string(key) != string(se.sharedKey) {
		api.ErrSharedKeyInvalid.Write(w)
		return
	}
	api.HTTPWriteJSON(w, e)
}

func (b *Backend) setStatus(w http.ResponseWriter, r *http.Request) {
	e, se, ok := b.lookup(w, r)
	if !ok {
		return
	}
	var req api.ElectionStatusUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	if err := election.Transition(e.Status, req.Status); err != nil {
		api.ErrStatusTransition.WithErr(err).Write(w)
		return
	}
	b.mu.Lock()
	se.election.Status = req.Status
	b.mu.Unlock()
	api.HTTPWriteOK(w)
}

func (b *Backend) vote(w http.ResponseWriter, r *http.Request) {
	e, se, ok := b.lookup(w, r)
	if !ok {
		return
	}
	var req api.VoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	stxBytes, err := base64.StdEncoding.DecodeString(req.Vote)
	if err != nil {
		api.ErrVoteMalformed.WithErr(err).Write(w)
		return
	}
	stx := &models.SignedTx{}
	if err := proto.Unmarshal(stxBytes, stx); err != nil {
		api.ErrVoteMalformed.WithErr(err).Write(w)
		return
	}
	_, signer, tx, err := ethereum.TxSigner(stx.Tx, stx.Signature, b.ChainID)
	if err != nil {
		api.ErrVoteMalformed.WithErr(err).Write(w)
		return
	}
	env := tx.GetVote()
	if env == nil || string(env.ProcessId) != string(e.ElectionID) {
		api.ErrVoteMalformed.With("not a vote for this election").Write(w)
		return
	}

	switch e.Status {
	case types.StatusReady:
	case types.StatusUpcoming, types.StatusPaused:
		api.ErrVoteElectionNotOpen.Withf("election is %s", strings.ToLower(string(e.Status))).Write(w)
		return
	default:
		api.ErrVoteElectionClosed.Withf("election is %s", strings.ToLower(string(e.Status))).Write(w)
		return
	}

	pca := env.GetProof().GetCa()
	if pca == nil {
		api.ErrVoteProofInvalid.With("missing CSP proof").Write(w)
		return
	}
	if err := proof.VerifyProofCA(pca, b.CSPPubKey, e.ElectionID, signer); err != nil {
		api.ErrVoteProofInvalid.WithErr(err).Write(w)
		return
	}
	if e.HiddenResults {
		if len(env.EncryptionKeyIndexes) == 0 {
			api.ErrVoteMalformed.With("hidden results ballot without encryption key indexes").Write(w)
			return
		}
	} else if _, err := ballot.DecodePackage(env.VotePackage); err != nil {
		api.ErrVoteMalformed.WithErr(err).Write(w)
		return
	}

	nullifier := Nullifier(signer.Bytes(), e.ElectionID)
	b.mu.Lock()
	if _, dup := b.nullifiers[string(nullifier)]; dup {
		b.mu.Unlock()
		api.ErrVoteDuplicate.Withf("nullifier %x", nullifier).Write(w)
		return
	}
	b.nullifiers[string(nullifier)] = &nullifierState{electionID: e.ElectionID}
	se.envelopes = append(se.envelopes, env)
	se.election.VoteCount++
	b.mu.Unlock()
	b.votes.Add(1)
	api.HTTPWriteJSON(w, &api.VoteResponse{Nullifier: nullifier})
}

func (b *Backend) nullifier(w http.ResponseWriter, r *http.Request) {
	nullifier, err := types.HexStringToHexBytes(chi.URLParam(r, api.ParamNullifier))
	if err != nil {
		api.ErrNullifierNotFound.WithErr(err).Write(w)
		return
	}
	b.mu.Lock()
	st, ok := b.nullifiers[string(nullifier)]
	var resp api.NullifierStatus
	if ok {
		st.polls++
		resp.ElectionID = st.electionID
		resp.Registered = st.polls > b.RegisterAfter
	}
	b.mu.Unlock()
	if !ok {
		api.ErrNullifierNotFound.Write(w)
		return
	}
	if resp.Registered {
		resp.ExplorerURL = b.URL.String() + "/explorer/vote/" + nullifier.String()
	}
	api.HTTPWriteJSON(w, &resp)
}

func (b *Backend) transaction(w http.ResponseWriter, r *http.Request) {
	hash, err := types.HexStringToHexBytes(chi.URLParam(r, api.ParamTxHash))
	if err != nil {
		api.ErrTransactionNotFound.WithErr(err).Write(w)
		return
	}
	b.mu.Lock()
	polls, ok := b.txs[string(hash)]
	if ok {
		polls++
		b.txs[string(hash)] = polls
	}
	b.mu.Unlock()
	if !ok {
		api.ErrTransactionNotFound.Write(w)
		return
	}
	api.HTTPWriteJSON(w, &api.TransactionStatus{Mined: polls > b.MineAfter})
}
