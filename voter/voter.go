// Package voter runs the full single-voter flow: it waits for the election
// to open, authenticates with the CSP, builds the eligibility proof, encodes
// and submits the ballot, and polls until it is registered.
package voter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/ballot"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/csp"
	"go.vocdoni.io/vaas/election"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/metrics"
	"go.vocdoni.io/vaas/proof"
	"go.vocdoni.io/vaas/receipt"
	"go.vocdoni.io/vaas/retry"
	"go.vocdoni.io/vaas/types"
)

// Default polling budgets.
var (
	DefaultPolicy     = retry.Exponential(time.Second, 10*time.Second, 20)
	DefaultOpenPolicy = retry.Constant(5*time.Second, 12)
)

// Backend is the part of apiclient.HTTPclient used by the voter.
type Backend interface {
	Election(ctx context.Context, electionID types.HexBytes) (*types.Election, error)
	ElectionConfidential(ctx context.Context, electionID, sharedKey types.HexBytes) (*types.Election, error)
	SubmitVote(ctx context.Context, env *ballot.Envelope, keys *ethereum.SignKeys) (types.HexBytes, error)
	PollConfirmation(ctx context.Context, nullifier types.HexBytes, policy retry.Policy) (*api.NullifierStatus, error)
}

// CSP is the part of csp.Client used by the voter.
type CSP interface {
	csp.Signer
	RequestToken(ctx context.Context, electionID types.HexBytes, mode types.AuthMode, auth csp.AuthData) (*csp.Token, error)
	RequestSharedKey(ctx context.Context, electionID types.HexBytes, auth csp.AuthData) (types.HexBytes, error)
}

// Voter casts the ballot of a single voter. Voter values share no mutable
// state, so several of them can run concurrently over the same clients.
type Voter struct {
	API Backend
	CSP CSP

	// Keys is the voter identity towards the CSP. In plain mode it also
	// signs the ballot.
	Keys *ethereum.SignKeys
	// BallotKeys signs blind mode ballots. Nil means a fresh key per ballot,
	// so the ballot cannot be linked to Keys.
	BallotKeys *ethereum.SignKeys
	// AuthData is sent to the CSP. Nil means csp.StandardAuth signed by Keys.
	AuthData csp.AuthData
	// Mode, if set, must match the mode of the election.
	Mode *types.AuthMode

	// Salted tells whether the CSP salts its key with the election ID.
	Salted bool
	// CSPPubKey, if set, is used to verify the proof before submission.
	CSPPubKey []byte
	// Encrypter encrypts hidden results ballots. Nil means ballot.SealedBox.
	Encrypter ballot.Encrypter

	// Policy bounds the confirmation polling, OpenPolicy the wait for an
	// upcoming or paused election. Zero values use the defaults.
	Policy     retry.Policy
	OpenPolicy retry.Policy

	// Receipts, if set, stores the receipt of every submitted ballot.
	Receipts *receipt.Store
	// Clock is the time source of the lifecycle checks. Nil means time.Now.
	Clock func() time.Time
}

func (v *Voter) now() time.Time {
	if v.Clock != nil {
		return v.Clock()
	}
	return time.Now()
}

func (v *Voter) policy() retry.Policy {
	if v.Policy.MaxAttempts == 0 && v.Policy.Backoff == nil {
		return DefaultPolicy
	}
	return v.Policy
}

func (v *Voter) openPolicy() retry.Policy {
	if v.OpenPolicy.MaxAttempts == 0 && v.OpenPolicy.Backoff == nil {
		return DefaultOpenPolicy
	}
	return v.OpenPolicy
}

// Cast votes choices in the election and waits for the ballot to be
// registered. When the confirmation budget is exhausted it returns the
// receipt together with an error matching api.ErrConfirmationTimeout; the
// polling can then be continued with Resume.
func (v *Voter) Cast(ctx context.Context, electionID types.HexBytes, choices []int) (*receipt.VoteReceipt, error) {
	if v.API == nil || v.CSP == nil || v.Keys == nil {
		return nil, fmt.Errorf("%w: voter needs a backend, a CSP and keys", api.ErrConfig)
	}
	if err := v.notSubmitted(electionID); err != nil {
		return nil, err
	}
	e, err := v.openElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	mode, err := e.AuthMode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrConfig, err)
	}
	if v.Mode != nil && *v.Mode != mode {
		return nil, fmt.Errorf("%w: configured mode %s but election %x is %s",
			api.ErrConfig, *v.Mode, electionID, mode)
	}
	auth, err := v.authData(electionID)
	if err != nil {
		return nil, err
	}

	if e.Confidential {
		if e, err = v.confidential(ctx, e, auth); err != nil {
			return nil, err
		}
	}
	// no token is spent on a ballot that cannot be encoded
	if err := ballot.ValidateChoices(choices, e.Questions); err != nil {
		return nil, err
	}
	if e.HiddenResults && len(e.EncryptionPubKeys) == 0 {
		return nil, fmt.Errorf("%w: hidden results election %x has no encryption keys", api.ErrConfig, electionID)
	}

	ballotKeys, err := v.ballotKeys(mode)
	if err != nil {
		return nil, err
	}
	token, err := v.CSP.RequestToken(ctx, electionID, mode, auth)
	if err != nil {
		return nil, err
	}
	builder := &proof.Builder{Signer: v.CSP, Salted: v.Salted, CSPPubKey: v.CSPPubKey}
	p, err := builder.Build(ctx, token, ballotKeys.Address())
	if err != nil {
		return nil, err
	}
	enc := &ballot.Encoder{Encrypter: v.Encrypter}
	env, err := enc.Encode(electionID, p, choices, e.HiddenResults, e.EncryptionPubKeys, ballot.WithQuestions(e.Questions))
	if err != nil {
		return nil, err
	}

	// the token round trip may outlast the voting window
	if err := election.NewMachine(e, v.now).CanSubmit(); err != nil {
		return nil, fmt.Errorf("election %x: %w", electionID, err)
	}
	nullifier, err := v.API.SubmitVote(ctx, env, ballotKeys)
	if err != nil {
		return nil, err
	}
	r := &receipt.VoteReceipt{
		ElectionID:  electionID,
		Nullifier:   nullifier,
		Mode:        mode.String(),
		SubmittedAt: v.now(),
	}
	if err := v.save(r); err != nil {
		return r, err
	}
	return v.confirm(ctx, r)
}

// Resume continues polling the stored receipt of an election.
func (v *Voter) Resume(ctx context.Context, electionID types.HexBytes) (*receipt.VoteReceipt, error) {
	if v.Receipts == nil {
		return nil, fmt.Errorf("%w: no receipt store configured", api.ErrConfig)
	}
	r, err := v.Receipts.Get(electionID)
	if err != nil {
		return nil, err
	}
	if r.Registered {
		return r, nil
	}
	return v.confirm(ctx, r)
}

// Results returns the published results of an election. Hidden results
// are only returned once the election reaches RESULTS.
func (v *Voter) Results(ctx context.Context, electionID types.HexBytes) ([][]types.Result, error) {
	if v.API == nil {
		return nil, fmt.Errorf("%w: voter needs a backend", api.ErrConfig)
	}
	e, err := v.API.Election(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if err := election.NewMachine(e, v.now).CanReadResults(); err != nil {
		return nil, err
	}
	return e.Results, nil
}

// Election returns the election metadata, unlocked through the CSP when the
// election is confidential.
func (v *Voter) Election(ctx context.Context, electionID types.HexBytes) (*types.Election, error) {
	e, err := v.API.Election(ctx, electionID)
	if err != nil || !e.Confidential {
		return e, err
	}
	auth, err := v.authData(electionID)
	if err != nil {
		return nil, err
	}
	return v.confidential(ctx, e, auth)
}

// openElection fetches the election and, while it is upcoming or paused,
// polls it again under the open policy.
func (v *Voter) openElection(ctx context.Context, electionID types.HexBytes) (*types.Election, error) {
	var e *types.Election
	err := retry.Do(ctx, v.openPolicy(), func(ctx context.Context, attempt int) error {
		var err error
		if e, err = v.API.Election(ctx, electionID); err != nil {
			if api.IsRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		err = election.NewMachine(e, v.now).CanAuthenticate()
		switch {
		case err == nil:
			return nil
		case api.IsRetryable(err):
			log.Infow("election not open yet, waiting", "electionId", electionID.String(),
				"status", election.StatusAt(e, v.now()), "attempt", attempt)
			return err
		default:
			return retry.Permanent(err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("election %x: %w", electionID, err)
	}
	return e, nil
}

// confidential unlocks the metadata of a confidential election.
func (v *Voter) confidential(ctx context.Context, e *types.Election, auth csp.AuthData) (*types.Election, error) {
	sharedKey, err := v.CSP.RequestSharedKey(ctx, e.ElectionID, auth)
	if err != nil {
		return nil, err
	}
	full, err := v.API.ElectionConfidential(ctx, e.ElectionID, sharedKey)
	if err != nil {
		return nil, err
	}
	// the public record carries the fresher dynamic fields
	full.Status = e.Status
	full.VoteCount = e.VoteCount
	return full, nil
}

func (v *Voter) authData(electionID types.HexBytes) (csp.AuthData, error) {
	if v.AuthData != nil {
		return v.AuthData, nil
	}
	return csp.NewStandardAuth(v.Keys, electionID)
}

// ballotKeys returns the keys signing the ballot transaction. The proof
// commits to their address.
func (v *Voter) ballotKeys(mode types.AuthMode) (*ethereum.SignKeys, error) {
	if mode != types.AuthBlind {
		return v.Keys, nil
	}
	if v.BallotKeys != nil {
		return v.BallotKeys, nil
	}
	k := ethereum.NewSignKeys()
	if err := k.Generate(); err != nil {
		return nil, fmt.Errorf("cannot generate ballot key: %w", err)
	}
	return k, nil
}

func (v *Voter) confirm(ctx context.Context, r *receipt.VoteReceipt) (*receipt.VoteReceipt, error) {
	st, err := v.API.PollConfirmation(ctx, r.Nullifier, v.policy())
	r.LastChecked = v.now()
	if st != nil {
		r.Registered = st.Registered
		r.ExplorerURL = st.ExplorerURL
	}
	if r.Registered {
		metrics.ConfirmationLatency.Observe(r.LastChecked.Sub(r.SubmittedAt).Seconds())
	}
	if serr := v.save(r); serr != nil {
		return r, errors.Join(err, serr)
	}
	return r, err
}

// notSubmitted fails with api.ErrDuplicateVote when a receipt of the
// election is already stored.
func (v *Voter) notSubmitted(electionID types.HexBytes) error {
	if v.Receipts == nil {
		return nil
	}
	_, err := v.Receipts.Get(electionID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: a ballot for election %x was already submitted, use Resume",
			api.ErrDuplicateVote, electionID)
	case errors.Is(err, receipt.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (v *Voter) save(r *receipt.VoteReceipt) error {
	if v.Receipts == nil {
		return nil
	}
	if err := v.Receipts.Save(r); err != nil {
		return fmt.Errorf("cannot store receipt: %w", err)
	}
	return nil
}
