package apiclient

import (
	"context"
	"errors"
	"fmt"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/metrics"
	"go.vocdoni.io/vaas/retry"
	"go.vocdoni.io/vaas/types"
)

var (
	errNotRegistered = errors.New("ballot not registered yet")
	errNotMined      = errors.New("transaction not mined yet")
)

// PollConfirmation polls the nullifier until the ballot is registered or the
// policy runs out of attempts. A not yet registered ballot is not an error;
// when the budget is exhausted it returns the last known status (which may
// be nil) together with api.ErrConfirmationTimeout, and polling can be
// resumed later with the same nullifier. Transport errors count as attempts.
func (c *HTTPclient) PollConfirmation(ctx context.Context, nullifier types.HexBytes, policy retry.Policy) (*api.NullifierStatus, error) {
	var last *api.NullifierStatus
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		metrics.PollAttempts.WithLabelValues("nullifier").Inc()
		st, err := c.nullifier(ctx, nullifier, c.callOnce)
		switch {
		case errors.Is(err, api.ErrNullifierNotFound):
			// not indexed yet
			return errNotRegistered
		case err != nil:
			return pollError(err)
		}
		last = st
		if !st.Registered {
			return errNotRegistered
		}
		return nil
	})
	switch {
	case err == nil:
		log.Infow("ballot registered", "nullifier", nullifier.String(), "explorerUrl", last.ExplorerURL)
		return last, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return last, err
	case isPermanent(err):
		return last, err
	}
	log.Warnw("ballot confirmation timed out", "nullifier", nullifier.String(),
		"attempts", policy.Attempts(), "lastError", err.Error())
	return last, fmt.Errorf("%w: nullifier %x not registered after %d attempts: %v",
		api.ErrConfirmationTimeout, nullifier, policy.Attempts(), err)
}

// PollTransactionMined polls an administrative transaction until it is
// mined, making exactly policy.Attempts() requests at most. On exhaustion it
// returns api.ErrConfirmationTimeout.
func (c *HTTPclient) PollTransactionMined(ctx context.Context, txHash types.HexBytes, policy retry.Policy) error {
	if len(txHash) == 0 {
		return fmt.Errorf("%w: empty transaction hash", api.ErrConfig)
	}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		metrics.PollAttempts.WithLabelValues("transaction").Inc()
		st := &api.TransactionStatus{}
		err := c.callOnce(ctx, HTTPGET, nil, st,
			api.EndpointWithParam(api.TransactionEndpoint, api.ParamTxHash, txHash.String()))
		switch {
		case errors.Is(err, api.ErrTransactionNotFound):
			return errNotMined
		case err != nil:
			return pollError(err)
		}
		if !st.Mined {
			return errNotMined
		}
		return nil
	})
	switch {
	case err == nil:
		log.Infow("transaction mined", "txHash", txHash.String())
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	case isPermanent(err):
		return err
	}
	return fmt.Errorf("%w: transaction %x not mined after %d attempts: %v",
		api.ErrConfirmationTimeout, txHash, policy.Attempts(), err)
}

// pollError tells apart the errors worth another poll (transport and server
// side failures) from client errors, which stop the loop.
func pollError(err error) error {
	var apiErr api.Error
	if errors.As(err, &apiErr) && apiErr.HTTPstatus < 500 {
		return retry.Permanent(&permanentError{err})
	}
	return err
}

// permanentError marks a poll stopped by a client side error.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
