// Package ballot encodes the vote package and wraps it, together with the
// eligibility proof, into the vote envelope sent to the ledger.
package ballot

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.vocdoni.io/proto/build/go/models"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/proof"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/util"
)

const (
	votePackageNonceSize = 32
	envelopeNonceSize    = 32
)

// VotePackage is the ballot content. Each position of Votes is the answer
// to the question with the same index.
type VotePackage struct {
	Nonce string `json:"nonce"`
	Votes []int  `json:"votes"`
}

// Envelope is a vote envelope ready to be signed and submitted.
type Envelope struct {
	*models.VoteEnvelope
	// CensusOrigin is always OFF_CHAIN_CA for CSP elections.
	CensusOrigin models.CensusOrigin
}

// Tx returns the ledger transaction carrying the envelope.
func (e *Envelope) Tx() *models.Tx {
	return &models.Tx{Payload: &models.Tx_Vote{Vote: e.VoteEnvelope}}
}

// Encrypter encrypts a marshalled vote package while results are hidden.
// keys are sorted by index; it returns the ciphertext and the indexes of
// the keys actually used.
type Encrypter interface {
	Encrypt(pkg *VotePackage, keys []types.EncryptionPubKey) ([]byte, []uint32, error)
}

// Option configures a single Encode call.
type Option func(*options)

type options struct {
	questions []types.Question
}

// WithQuestions validates the choices against the election questions.
func WithQuestions(questions []types.Question) Option {
	return func(o *options) { o.questions = questions }
}

// Encoder builds envelopes with a given encryption strategy. The zero value
// uses SealedBox.
type Encoder struct {
	Encrypter Encrypter
}

// Encode builds an envelope with the default encoder.
func Encode(electionID types.HexBytes, p proof.EligibilityProof, choices []int,
	hiddenResults bool, keys []types.EncryptionPubKey, opts ...Option,
) (*Envelope, error) {
	return (&Encoder{}).Encode(electionID, p, choices, hiddenResults, keys, opts...)
}

// Encode builds the envelope for choices. When hiddenResults is set the vote
// package is encrypted with the election keys, which must not be empty.
// The proof is embedded unchanged.
func (enc *Encoder) Encode(electionID types.HexBytes, p proof.EligibilityProof, choices []int,
	hiddenResults bool, keys []types.EncryptionPubKey, opts ...Option,
) (*Envelope, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(electionID) != types.ElectionIDLength {
		return nil, fmt.Errorf("%w: election ID must be %d bytes", api.ErrConfig, types.ElectionIDLength)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: missing eligibility proof", api.ErrConfig)
	}
	if err := ValidateChoices(choices, o.questions); err != nil {
		return nil, err
	}

	pkg := &VotePackage{Nonce: util.RandomHex(votePackageNonceSize), Votes: choices}
	env := &models.VoteEnvelope{
		Nonce:     util.RandomBytes(envelopeNonceSize),
		ProcessId: electionID,
		Proof:     &models.Proof{Payload: &models.Proof_Ca{Ca: p.ProofCA()}},
	}
	if hiddenResults {
		if len(keys) == 0 {
			return nil, fmt.Errorf("%w: hidden results election without encryption keys", api.ErrConfig)
		}
		sorted, err := SortKeys(keys)
		if err != nil {
			return nil, err
		}
		encrypter := enc.Encrypter
		if encrypter == nil {
			encrypter = SealedBox{}
		}
		data, indexes, err := encrypter.Encrypt(pkg, sorted)
		if err != nil {
			return nil, err
		}
		env.VotePackage = data
		env.EncryptionKeyIndexes = indexes
	} else {
		data, err := json.Marshal(pkg)
		if err != nil {
			return nil, err
		}
		env.VotePackage = data
	}
	return &Envelope{VoteEnvelope: env, CensusOrigin: models.CensusOrigin_OFF_CHAIN_CA}, nil
}

// DecodePackage decodes a cleartext vote package.
func DecodePackage(data []byte) (*VotePackage, error) {
	var pkg VotePackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("cannot decode vote package: %w", err)
	}
	return &pkg, nil
}

// ValidateChoices checks that there is a choice per question and every
// choice indexes an option. Without questions only emptiness and negative
// values are checked.
func ValidateChoices(choices []int, questions []types.Question) error {
	if len(choices) == 0 {
		return fmt.Errorf("%w: no choices given", api.ErrConfig)
	}
	if len(questions) > 0 && len(choices) != len(questions) {
		return fmt.Errorf("%w: %d choices for %d questions", api.ErrConfig, len(choices), len(questions))
	}
	for i, c := range choices {
		if c < 0 {
			return fmt.Errorf("%w: negative choice %d for question %d", api.ErrConfig, c, i)
		}
		if len(questions) > 0 && c >= len(questions[i].Choices) {
			return fmt.Errorf("%w: choice %d out of range for question %d (%d options)",
				api.ErrConfig, c, i, len(questions[i].Choices))
		}
	}
	return nil
}

// SortKeys returns a copy of keys sorted by index. Negative indexes are
// rejected with api.ErrConfig.
func SortKeys(keys []types.EncryptionPubKey) ([]types.EncryptionPubKey, error) {
	for _, k := range keys {
		if _, err := keyIndex(k); err != nil {
			return nil, err
		}
	}
	sorted := append([]types.EncryptionPubKey(nil), keys...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Idx < sorted[j].Idx })
	return sorted, nil
}

// keyIndex returns the envelope form of the key index.
func keyIndex(k types.EncryptionPubKey) (uint32, error) {
	if k.Idx < 0 || int64(k.Idx) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: invalid encryption key index %d", api.ErrConfig, k.Idx)
	}
	return uint32(k.Idx), nil
}
