package apiclient

import (
	"context"
	"fmt"
	"strings"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/election"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/types"
)

// Election returns the public election record.
func (c *HTTPclient) Election(ctx context.Context, electionID types.HexBytes) (*types.Election, error) {
	if err := checkElectionID(electionID); err != nil {
		return nil, err
	}
	e := &types.Election{}
	if err := c.call(ctx, HTTPGET, nil, e,
		api.EndpointWithParam(api.ElectionEndpoint, api.ParamElectionID, electionID.String())); err != nil {
		return nil, fmt.Errorf("election %x: %w", electionID, err)
	}
	return e, nil
}

// ElectionConfidential returns the full record of a confidential election,
// unlocked with the shared key issued by the CSP. Records are cached by
// election and shared key; the dynamic fields (status, vote count) are
// refreshed with Election.
func (c *HTTPclient) ElectionConfidential(ctx context.Context, electionID, sharedKey types.HexBytes) (*types.Election, error) {
	if err := checkElectionID(electionID); err != nil {
		return nil, err
	}
	if len(sharedKey) == 0 {
		return nil, fmt.Errorf("%w: empty shared key", api.ErrConfig)
	}
	cacheKey := electionID.String() + "/" + sharedKey.String()
	if e, ok := c.confidential.Get(cacheKey); ok {
		log.Debugw("confidential election from cache", "electionId", electionID.String())
		cp := *e
		return &cp, nil
	}
	path := api.EndpointWithParam(api.ElectionConfidentialEndpoint, api.ParamElectionID, electionID.String())
	path = api.EndpointWithParam(path, api.ParamSharedKey, sharedKey.String())
	e := &types.Election{}
	if err := c.call(ctx, HTTPGET, nil, e, path); err != nil {
		return nil, fmt.Errorf("confidential election %x: %w", electionID, err)
	}
	cp := *e
	c.confidential.Add(cacheKey, &cp)
	return e, nil
}

// CreateElection publishes a new election. When the response carries a
// transaction hash, confirm it with PollTransactionMined.
func (c *HTTPclient) CreateElection(ctx context.Context, req *api.ElectionCreate) (*api.ElectionCreated, error) {
	if err := validateElectionCreate(req); err != nil {
		return nil, err
	}
	created := &api.ElectionCreated{}
	if err := c.call(ctx, HTTPPOST, req, created, api.ElectionsEndpoint); err != nil {
		return nil, fmt.Errorf("create election: %w", err)
	}
	if len(created.ElectionID) == 0 {
		return nil, fmt.Errorf("create election: backend returned no election ID")
	}
	log.Infow("election created", "electionId", created.ElectionID.String(), "txHash", created.TxHash.String())
	return created, nil
}

func validateElectionCreate(req *api.ElectionCreate) error {
	if req == nil {
		return fmt.Errorf("%w: nil election", api.ErrConfig)
	}
	t, err := types.ParseElectionType(req.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrConfig, err)
	}
	if t.Confidential != req.Confidential || t.HiddenResults != req.HiddenResults {
		return fmt.Errorf("%w: election type %q does not match the confidential and hidden results flags",
			api.ErrConfig, req.Type)
	}
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: empty title", api.ErrConfig)
	}
	if req.EndDate.IsZero() {
		return fmt.Errorf("%w: missing end date", api.ErrConfig)
	}
	if req.StartDate != nil && !req.StartDate.Before(req.EndDate) {
		return fmt.Errorf("%w: start date must be before end date", api.ErrConfig)
	}
	if len(req.Questions) == 0 {
		return fmt.Errorf("%w: no questions", api.ErrConfig)
	}
	for i, q := range req.Questions {
		if len(q.Choices) < 2 {
			return fmt.Errorf("%w: question %d needs at least two choices", api.ErrConfig, i)
		}
	}
	return nil
}

// SetElectionStatus changes the administrative status of an election. The
// transition is checked locally against the current status before the
// request is sent.
func (c *HTTPclient) SetElectionStatus(ctx context.Context, electionID types.HexBytes, status types.ElectionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", api.ErrConfig, status)
	}
	e, err := c.Election(ctx, electionID)
	if err != nil {
		return err
	}
	current := election.StatusAt(e, timeNow())
	if err := election.Transition(current, status); err != nil {
		return fmt.Errorf("%w: %w", api.ErrConfig, err)
	}
	if err := c.call(ctx, HTTPPUT, &api.ElectionStatusUpdate{Status: status}, nil,
		api.EndpointWithParam(api.ElectionStatusEndpoint, api.ParamElectionID, electionID.String())); err != nil {
		return fmt.Errorf("set status of election %x: %w", electionID, err)
	}
	log.Infow("election status changed", "electionId", electionID.String(), "from", current, "to", status)
	return nil
}
