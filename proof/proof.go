// Package proof builds and verifies the CSP eligibility proof embedded in
// every ballot.
//
// In blind mode the CSP signs a blinded commitment to the CAbundle, so the
// signature it issues can not be linked to the proof the voter publishes.
// In plain mode the CSP signs the CAbundle itself.
package proof

import (
	"bytes"
	"fmt"
	"math/big"

	blind "github.com/arnaucube/go-blindsecp256k1"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.vocdoni.io/proto/build/go/models"
	"google.golang.org/protobuf/proto"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/crypto/saltedkey"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/types"
)

// EligibilityProof is either a Plain or a Blind proof.
type EligibilityProof interface {
	// Mode returns the CSP family that issued the proof.
	Mode() types.AuthMode
	// ProofCA returns the wire representation of the proof.
	ProofCA() *models.ProofCA
	// Voter returns the address committed in the bundle.
	Voter() ethcommon.Address

	isEligibilityProof()
}

// Plain is an ECDSA signature of the marshalled bundle.
type Plain struct {
	Signature types.HexBytes
	Address   ethcommon.Address
	Bundle    *models.CAbundle
	// Salted is set when the CSP signs with its key salted by the election ID.
	Salted bool
}

// Blind is the unblinded signature of the Keccak256 hash of the marshalled
// bundle, in uncompressed form.
type Blind struct {
	Signature types.HexBytes
	Address   ethcommon.Address
	Bundle    *models.CAbundle
	Salted    bool
}

func (*Plain) isEligibilityProof() {}
func (*Blind) isEligibilityProof() {}

// Mode implements EligibilityProof.
func (*Plain) Mode() types.AuthMode { return types.AuthPlain }

// Mode implements EligibilityProof.
func (*Blind) Mode() types.AuthMode { return types.AuthBlind }

// Voter implements EligibilityProof.
func (p *Plain) Voter() ethcommon.Address { return p.Address }

// Voter implements EligibilityProof.
func (p *Blind) Voter() ethcommon.Address { return p.Address }

// ProofCA implements EligibilityProof.
func (p *Plain) ProofCA() *models.ProofCA {
	t := models.ProofCA_ECDSA
	if p.Salted {
		t = models.ProofCA_ECDSA_PIDSALTED
	}
	return &models.ProofCA{Type: t, Bundle: p.Bundle, Signature: p.Signature}
}

// ProofCA implements EligibilityProof.
func (p *Blind) ProofCA() *models.ProofCA {
	t := models.ProofCA_ECDSA_BLIND
	if p.Salted {
		t = models.ProofCA_ECDSA_BLIND_PIDSALTED
	}
	return &models.ProofCA{Type: t, Bundle: p.Bundle, Signature: p.Signature}
}

// FromProofCA decodes the wire representation of a proof.
func FromProofCA(p *models.ProofCA) (EligibilityProof, error) {
	if p == nil || p.Bundle == nil {
		return nil, fmt.Errorf("%w: CSP proof or bundle are nil", api.ErrProofInvalid)
	}
	addr := ethcommon.BytesToAddress(p.Bundle.Address)
	switch p.GetType() {
	case models.ProofCA_ECDSA, models.ProofCA_ECDSA_PIDSALTED:
		return &Plain{
			Signature: p.Signature,
			Address:   addr,
			Bundle:    p.Bundle,
			Salted:    p.GetType() == models.ProofCA_ECDSA_PIDSALTED,
		}, nil
	case models.ProofCA_ECDSA_BLIND, models.ProofCA_ECDSA_BLIND_PIDSALTED:
		return &Blind{
			Signature: p.Signature,
			Address:   addr,
			Bundle:    p.Bundle,
			Salted:    p.GetType() == models.ProofCA_ECDSA_BLIND_PIDSALTED,
		}, nil
	}
	return nil, fmt.Errorf("%w: CSP proof %s type not supported", api.ErrProofInvalid, p.Type)
}

// NewBundle returns the commitment signed by the CSP.
func NewBundle(electionID types.HexBytes, voter ethcommon.Address) *models.CAbundle {
	return &models.CAbundle{ProcessId: electionID, Address: voter.Bytes()}
}

// BlindMessage returns the message signed in blind mode: the Keccak256 hash
// of the marshalled bundle as an integer.
func BlindMessage(bundle []byte) *big.Int {
	return new(big.Int).SetBytes(ethereum.HashRaw(bundle))
}

// Verify checks p against the CSP root public key (compressed or not) the
// same way the ledger does. Any mismatch is api.ErrProofInvalid.
func Verify(p EligibilityProof, cspPubKey []byte, electionID types.HexBytes) error {
	pca := p.ProofCA()
	if pca.Bundle == nil {
		return fmt.Errorf("%w: CSP bundle is nil", api.ErrProofInvalid)
	}
	if !bytes.Equal(pca.Bundle.ProcessId, electionID) {
		return fmt.Errorf("%w: CSP bundle processID does not match", api.ErrProofInvalid)
	}
	if !bytes.Equal(pca.Bundle.Address, p.Voter().Bytes()) {
		return fmt.Errorf("%w: CSP bundle address and key do not match: %x != %x",
			api.ErrProofInvalid, p.Voter(), pca.Bundle.Address)
	}
	cspBundle, err := proto.Marshal(pca.Bundle)
	if err != nil {
		return fmt.Errorf("cannot marshal CSP bundle to protobuf: %w", err)
	}
	rootPub, err := ethereum.DecompressPubKey(cspPubKey)
	if err != nil {
		return fmt.Errorf("%w: cannot decompress CSP public key: %v", api.ErrConfig, err)
	}

	switch p := p.(type) {
	case *Plain:
		return verifyPlain(p, cspBundle, rootPub, electionID)
	case *Blind:
		return verifyBlind(p, cspBundle, rootPub, electionID)
	}
	return fmt.Errorf("%w: unknown proof variant %T", api.ErrProofInvalid, p)
}

// VerifyProofCA decodes and verifies a wire proof, also checking that the
// bundle commits to the ballot signer.
func VerifyProofCA(pca *models.ProofCA, cspPubKey []byte, electionID types.HexBytes, signer ethcommon.Address) error {
	p, err := FromProofCA(pca)
	if err != nil {
		return err
	}
	if p.Voter() != signer {
		return fmt.Errorf("%w: CSP bundle address and key do not match: %x != %x",
			api.ErrProofInvalid, signer, p.Voter())
	}
	return Verify(p, cspPubKey, electionID)
}

func verifyPlain(p *Plain, cspBundle, rootPub []byte, electionID types.HexBytes) error {
	bundlePub, err := ethereum.PubKeyFromSignature(cspBundle, p.Signature)
	if err != nil {
		return fmt.Errorf("%w: cannot fetch CSP public key from signature: %v", api.ErrProofInvalid, err)
	}
	// salted keys are compared uncompressed
	if bundlePub, err = ethereum.DecompressPubKey(bundlePub); err != nil {
		return fmt.Errorf("%w: unable to decompress proof pub key: %v", api.ErrProofInvalid, err)
	}
	if p.Salted {
		pub, err := ethcrypto.UnmarshalPubkey(rootPub)
		if err != nil {
			return fmt.Errorf("%w: cannot unmarshal ECDSA CSP public key: %v", api.ErrConfig, err)
		}
		if pub, err = saltedkey.SaltECDSAPubKey(pub, electionID); err != nil {
			return fmt.Errorf("%w: cannot salt ECDSA public key: %v", api.ErrProofInvalid, err)
		}
		rootPub = ethcrypto.FromECDSAPub(pub)
	}
	if !bytes.Equal(bundlePub, rootPub) {
		return fmt.Errorf("%w: CSP bundle signature does not match", api.ErrProofInvalid)
	}
	return nil
}

func verifyBlind(p *Blind, cspBundle, rootPub []byte, electionID types.HexBytes) error {
	pub, err := blind.NewPublicKeyFromECDSA(rootPub)
	if err != nil {
		return fmt.Errorf("%w: cannot compute blind CSP public key: %v", api.ErrConfig, err)
	}
	signature, err := blind.NewSignatureFromBytesUncompressed(p.Signature)
	if err != nil {
		return fmt.Errorf("%w: cannot decode blind CSP signature: %v", api.ErrProofInvalid, err)
	}
	if p.Salted {
		if pub, err = saltedkey.SaltBlindPubKey(pub, electionID); err != nil {
			return fmt.Errorf("%w: cannot salt blind pubkey: %v", api.ErrProofInvalid, err)
		}
	}
	if !blind.Verify(BlindMessage(cspBundle), signature, pub) {
		log.Debugw("blind CSP verification failed", "electionId", electionID.String(),
			"cspKey", fmt.Sprintf("%x", pub.Bytes()), "address", p.Address.Hex())
		return fmt.Errorf("%w: blind CSP verification failed for election %x",
			api.ErrProofInvalid, electionID)
	}
	return nil
}
