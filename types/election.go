package types

import (
	"fmt"
	"strings"
	"time"

	"go.vocdoni.io/proto/build/go/models"
)

// ElectionIDLength is the size in bytes of an election (process) identifier.
const ElectionIDLength = 32

// ElectionStatus is the lifecycle state of an election as reported by the backend.
type ElectionStatus string

const (
	StatusUpcoming ElectionStatus = "UPCOMING"
	StatusReady    ElectionStatus = "READY"
	StatusPaused   ElectionStatus = "PAUSED"
	StatusEnded    ElectionStatus = "ENDED"
	StatusCanceled ElectionStatus = "CANCELED"
	StatusResults  ElectionStatus = "RESULTS"
)

// Valid reports whether s is one of the known statuses.
func (s ElectionStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusReady, StatusPaused, StatusEnded, StatusCanceled, StatusResults:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s ElectionStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusResults
}

// ProcessStatus returns the ledger status for s. UPCOMING has no ledger
// counterpart and maps to READY, like the backend does.
func (s ElectionStatus) ProcessStatus() models.ProcessStatus {
	switch s {
	case StatusPaused:
		return models.ProcessStatus_PAUSED
	case StatusEnded:
		return models.ProcessStatus_ENDED
	case StatusCanceled:
		return models.ProcessStatus_CANCELED
	case StatusResults:
		return models.ProcessStatus_RESULTS
	default:
		return models.ProcessStatus_READY
	}
}

// StatusFromProcess converts a ledger process status.
func StatusFromProcess(ps models.ProcessStatus) (ElectionStatus, error) {
	switch ps {
	case models.ProcessStatus_READY:
		return StatusReady, nil
	case models.ProcessStatus_PAUSED:
		return StatusPaused, nil
	case models.ProcessStatus_ENDED:
		return StatusEnded, nil
	case models.ProcessStatus_CANCELED:
		return StatusCanceled, nil
	case models.ProcessStatus_RESULTS:
		return StatusResults, nil
	}
	return "", fmt.Errorf("unknown process status %s", ps)
}

// AuthMode selects the CSP endpoint family used by an election.
type AuthMode int

const (
	// AuthPlain uses the "ecdsa" CSP family; proofs are linkable to the token exchange.
	AuthPlain AuthMode = iota
	// AuthBlind uses the "blind" CSP family; proofs are unlinkable.
	AuthBlind
)

// Endpoint returns the CSP URL path segment of the mode.
func (m AuthMode) Endpoint() string {
	if m == AuthBlind {
		return "blind"
	}
	return "ecdsa"
}

func (m AuthMode) String() string {
	if m == AuthBlind {
		return "blind"
	}
	return "signed"
}

// ParseAuthMode accepts both the election type prefixes (signed, blind) and
// the CSP endpoint names (ecdsa, blind).
func ParseAuthMode(s string) (AuthMode, error) {
	switch strings.ToLower(s) {
	case "blind":
		return AuthBlind, nil
	case "signed", "ecdsa", "plain":
		return AuthPlain, nil
	}
	return 0, fmt.Errorf("unknown auth mode %q", s)
}

// ElectionType is the compound election type string, such as
// "blind-confidential-hidden-results" or "signed-plain".
type ElectionType struct {
	Mode          AuthMode
	Confidential  bool
	HiddenResults bool
}

func (t ElectionType) String() string {
	metadata := "plain"
	if t.Confidential {
		metadata = "confidential"
	}
	results := "rolling-results"
	if t.HiddenResults {
		results = "hidden-results"
	}
	return t.Mode.String() + "-" + metadata + "-" + results
}

// ParseElectionType parses a compound election type. The results part is
// optional and defaults to rolling (open) results.
func ParseElectionType(s string) (ElectionType, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) < 2 {
		return ElectionType{}, fmt.Errorf("malformed election type %q", s)
	}
	var t ElectionType
	var err error
	if t.Mode, err = ParseAuthMode(parts[0]); err != nil {
		return ElectionType{}, err
	}
	switch parts[1] {
	case "plain":
	case "confidential":
		t.Confidential = true
	default:
		return ElectionType{}, fmt.Errorf("malformed election type %q", s)
	}
	if len(parts) == 3 {
		switch parts[2] {
		case "rolling-results", "open-results":
		case "hidden-results":
			t.HiddenResults = true
		default:
			return ElectionType{}, fmt.Errorf("malformed election type %q", s)
		}
	}
	return t, nil
}

// Question is a single question of an election, with its ordered choices.
type Question struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Choices     []string `json:"choices"`
}

// Result is the tally of a single choice.
type Result struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// EncryptionPubKey is one of the election public keys used to encrypt
// ballots while results are hidden.
type EncryptionPubKey struct {
	Idx int    `json:"idx"`
	Key string `json:"key"`
}

// Election is the election record consumed by the voter.
type Election struct {
	ElectionID    HexBytes       `json:"electionId"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Header        string         `json:"header,omitempty"`
	StreamURI     string         `json:"streamUri,omitempty"`
	StartDate     *time.Time     `json:"startDate,omitempty"`
	EndDate       time.Time      `json:"endDate"`
	Confidential  bool           `json:"confidential"`
	HiddenResults bool           `json:"hiddenResults"`
	Census        HexBytes       `json:"census,omitempty"`
	Questions     []Question     `json:"questions"`
	Status        ElectionStatus `json:"status"`
	VoteCount     uint64         `json:"voteCount"`
	Results       [][]Result     `json:"results,omitempty"`

	EncryptionPubKeys []EncryptionPubKey `json:"encryptionPubKeys,omitempty"`
}

// AuthMode returns the CSP family configured for the election. An empty
// type falls back to blind, the anonymous default of the backend.
func (e *Election) AuthMode() (AuthMode, error) {
	if e.Type == "" {
		return AuthBlind, nil
	}
	t, err := ParseElectionType(e.Type)
	if err != nil {
		return 0, err
	}
	return t.Mode, nil
}

// CSPDriven reports whether eligibility is issued by a CSP rather than an on-chain census.
func (e *Election) CSPDriven() bool { return len(e.Census) == 0 }
