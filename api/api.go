// Package api holds the wire contract shared by the voter clients and the
// test servers: endpoint patterns, request and response bodies, and the
// error taxonomy of the voting flow.
package api

import (
	"time"

	"go.vocdoni.io/vaas/types"
)

// Default URL prefixes of the organization backend and the CSP.
const (
	DefaultAPIPrefix = "/v1/pub"
	DefaultCSPPrefix = "/v1/auth"
)

// URL parameter names, as used in the endpoint patterns below.
const (
	ParamElectionID = "electionId"
	ParamSharedKey  = "sharedKey"
	ParamNullifier  = "nullifier"
	ParamTxHash     = "txHash"
	ParamMode       = "mode"
)

// Backend endpoints, relative to the API prefix.
const (
	ElectionsEndpoint            = "/elections"
	ElectionEndpoint             = "/elections/{electionId}"
	ElectionConfidentialEndpoint = "/elections/{electionId}/auth/{sharedKey}"
	ElectionStatusEndpoint       = "/elections/{electionId}/status"
	VoteEndpoint                 = "/elections/{electionId}/vote"
	NullifierEndpoint            = "/nullifiers/{nullifier}"
	TransactionEndpoint          = "/transactions/{txHash}"
)

// CSP endpoints, relative to the CSP prefix. {mode} is "ecdsa" or "blind".
const (
	CSPAuthEndpoint      = "/elections/{electionId}/{mode}/auth"
	CSPSignEndpoint      = "/elections/{electionId}/{mode}/sign"
	CSPSharedKeyEndpoint = "/elections/{electionId}/sharedKey"
)

// AuthRequest carries the opaque authentication data defined by the CSP.
type AuthRequest struct {
	AuthData []string `json:"authData"`
}

// TokenResponse is the CSP answer to an auth request. TokenR is the
// single-use signing token; in blind mode it is the uncompressed blinding
// point R.
type TokenResponse struct {
	TokenR types.HexBytes `json:"tokenR"`
}

// SignRequest asks the CSP to sign a payload, plain or blinded.
type SignRequest struct {
	TokenR  types.HexBytes `json:"tokenR"`
	Payload types.HexBytes `json:"payload"`
}

// SignResponse carries a plain ECDSA signature or a blind signature.
type SignResponse struct {
	Signature types.HexBytes `json:"signature"`
}

// SharedKeyResponse unlocks the confidential metadata of an election.
type SharedKeyResponse struct {
	SharedKey types.HexBytes `json:"sharedKey"`
}

// VoteRequest carries a base64 encoded models.SignedTx.
type VoteRequest struct {
	Vote string `json:"vote"`
}

// VoteResponse returns the nullifier of an accepted vote.
type VoteResponse struct {
	Nullifier types.HexBytes `json:"nullifier"`
}

// NullifierStatus is the registration state of a ballot.
type NullifierStatus struct {
	ElectionID  types.HexBytes `json:"electionId"`
	Registered  bool           `json:"registered"`
	ExplorerURL string         `json:"explorerUrl,omitempty"`
}

// TransactionStatus reports whether an administrative transaction is mined.
type TransactionStatus struct {
	Mined bool `json:"mined"`
}

// ElectionCreate is the body of an election creation request.
type ElectionCreate struct {
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Header        string           `json:"header,omitempty"`
	StreamURI     string           `json:"streamUri,omitempty"`
	StartDate     *time.Time       `json:"startDate,omitempty"`
	EndDate       time.Time        `json:"endDate"`
	Type          string           `json:"type"`
	Confidential  bool             `json:"confidential"`
	HiddenResults bool             `json:"hiddenResults"`
	Questions     []types.Question `json:"questions"`
}

// ElectionCreated is returned on election creation. TxHash is only present
// when the backend publishes the election asynchronously.
type ElectionCreated struct {
	ElectionID types.HexBytes `json:"electionId"`
	TxHash     types.HexBytes `json:"txHash,omitempty"`
}

// ElectionStatusUpdate changes the administrative status of an election.
type ElectionStatusUpdate struct {
	Status types.ElectionStatus `json:"status"`
}
