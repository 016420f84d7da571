package csp

import (
	"fmt"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/types"
)

// AuthData is the CSP specific authentication payload. Its encoding is an
// ordered list of strings whose meaning only the CSP knows.
type AuthData interface {
	Encode() []string
}

// CustomAuth authenticates with a voter ID and the registration signature
// obtained out of band, as in [voterId, signature].
type CustomAuth struct {
	VoterID   types.HexBytes
	Signature types.HexBytes
}

// Encode implements AuthData.
func (a CustomAuth) Encode() []string {
	return []string{a.VoterID.String(), a.Signature.String()}
}

// StandardAuth authenticates with the election ID signed by the voter key.
type StandardAuth struct {
	SignedElectionID types.HexBytes
}

// Encode implements AuthData.
func (a StandardAuth) Encode() []string {
	return []string{a.SignedElectionID.String()}
}

// NewStandardAuth signs the election ID with the Ethereum prefix.
func NewStandardAuth(keys *ethereum.SignKeys, electionID types.HexBytes) (StandardAuth, error) {
	if len(electionID) != types.ElectionIDLength {
		return StandardAuth{}, fmt.Errorf("%w: election ID must be %d bytes, got %d",
			api.ErrConfig, types.ElectionIDLength, len(electionID))
	}
	sig, err := keys.SignEthereum(electionID)
	if err != nil {
		return StandardAuth{}, err
	}
	return StandardAuth{SignedElectionID: sig}, nil
}

// RawAuth is sent as given.
type RawAuth []string

// Encode implements AuthData.
func (a RawAuth) Encode() []string { return a }
