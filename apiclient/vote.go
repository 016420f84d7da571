package apiclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.vocdoni.io/proto/build/go/models"
	"google.golang.org/protobuf/proto"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/ballot"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/metrics"
	"go.vocdoni.io/vaas/types"
)

// SubmitVote signs the envelope transaction with keys and sends it to the
// backend. keys may be nil to use the account set with SetAccount. It
// returns the nullifier of the accepted ballot.
//
// A rejected ballot returns an error matching api.ErrDuplicateVote,
// api.ErrProofInvalid, api.ErrElectionClosed or api.ErrNotYetOpen;
// transport failures are returned unchanged. The submission itself is never
// retried.
func (c *HTTPclient) SubmitVote(ctx context.Context, env *ballot.Envelope, keys *ethereum.SignKeys) (types.HexBytes, error) {
	if env == nil || env.VoteEnvelope == nil {
		return nil, fmt.Errorf("%w: nil vote envelope", api.ErrConfig)
	}
	if keys == nil {
		keys = c.account
	}
	if keys == nil {
		return nil, fmt.Errorf("%w: no keys to sign the vote transaction", api.ErrConfig)
	}
	stx, err := SignVoteTx(env, keys, c.chainID)
	if err != nil {
		return nil, err
	}
	log.Debugw("submitting vote", "envelope", log.FormatProto(env.VoteEnvelope, "votePackage"))
	stxBytes, err := proto.Marshal(stx)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal signed tx: %w", err)
	}

	resp := &api.VoteResponse{}
	err = c.call(ctx, HTTPPOST, &api.VoteRequest{Vote: base64.StdEncoding.EncodeToString(stxBytes)}, resp,
		api.EndpointWithParam(api.VoteEndpoint, api.ParamElectionID, types.HexBytes(env.ProcessId).String()))
	if err != nil {
		metrics.SubmitErrors.WithLabelValues(metrics.ErrorKind(err)).Inc()
		return nil, fmt.Errorf("submit vote for election %x: %w", env.ProcessId, err)
	}
	if len(resp.Nullifier) == 0 {
		err := errors.New("backend accepted the vote without a nullifier")
		metrics.SubmitErrors.WithLabelValues(metrics.ErrorKind(err)).Inc()
		return nil, err
	}
	metrics.VotesSubmitted.Inc()
	log.Infow("vote submitted", "electionId", types.HexBytes(env.ProcessId).String(),
		"nullifier", resp.Nullifier.String())
	return resp.Nullifier, nil
}

// SignVoteTx wraps the envelope into a ledger transaction signed by keys.
func SignVoteTx(env *ballot.Envelope, keys *ethereum.SignKeys, chainID string) (*models.SignedTx, error) {
	txBytes, err := proto.Marshal(env.Tx())
	if err != nil {
		return nil, fmt.Errorf("cannot marshal vote tx: %w", err)
	}
	signature, err := keys.SignVocdoniTx(txBytes, chainID)
	if err != nil {
		return nil, fmt.Errorf("cannot sign vote tx: %w", err)
	}
	return &models.SignedTx{Tx: txBytes, Signature: signature}, nil
}

// Nullifier returns the registration status of a ballot with a single request.
func (c *HTTPclient) Nullifier(ctx context.Context, nullifier types.HexBytes) (*api.NullifierStatus, error) {
	return c.nullifier(ctx, nullifier, c.call)
}

type caller func(ctx context.Context, method string, body, resp any, urlPath ...string) error

func (c *HTTPclient) nullifier(ctx context.Context, nullifier types.HexBytes, call caller) (*api.NullifierStatus, error) {
	if len(nullifier) == 0 {
		return nil, fmt.Errorf("%w: empty nullifier", api.ErrConfig)
	}
	st := &api.NullifierStatus{}
	if err := call(ctx, HTTPGET, nil, st,
		api.EndpointWithParam(api.NullifierEndpoint, api.ParamNullifier, nullifier.String())); err != nil {
		return nil, fmt.Errorf("nullifier %x: %w", nullifier, err)
	}
	return st, nil
}
