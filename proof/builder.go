package proof

import (
	"context"
	"fmt"
	"math/big"

	blind "github.com/arnaucube/go-blindsecp256k1"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/proto/build/go/models"
	"google.golang.org/protobuf/proto"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/csp"
	"go.vocdoni.io/vaas/log"
	"go.vocdoni.io/vaas/types"
)

// Builder turns a CSP token into an eligibility proof.
type Builder struct {
	Signer csp.Signer
	// Salted is set when the CSP salts its key with the election ID.
	Salted bool
	// CSPPubKey, if set, is used to verify the proof before returning it.
	CSPPubKey []byte
}

// Build asks the CSP to sign the bundle committing to voter, using the
// signing family the token was issued for. The blinding secret never leaves
// this call.
func (b *Builder) Build(ctx context.Context, token *csp.Token, voter ethcommon.Address) (EligibilityProof, error) {
	if token == nil {
		return nil, fmt.Errorf("%w: missing token", api.ErrConfig)
	}
	if err := csp.CheckToken(token, token.ElectionID, token.Mode); err != nil {
		return nil, err
	}
	bundle := NewBundle(token.ElectionID, voter)
	bundleBytes, err := proto.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal CSP bundle: %w", err)
	}

	var p EligibilityProof
	switch token.Mode {
	case types.AuthBlind:
		p, err = b.buildBlind(ctx, token, bundle, bundleBytes)
	default:
		p, err = b.buildPlain(ctx, token, bundle, bundleBytes)
	}
	if err != nil {
		return nil, err
	}
	if b.CSPPubKey != nil {
		if err := Verify(p, b.CSPPubKey, token.ElectionID); err != nil {
			return nil, err
		}
	}
	log.Debugw("eligibility proof built", "mode", token.Mode.String(),
		"electionId", token.ElectionID.String(), "address", voter.Hex())
	return p, nil
}

func (b *Builder) buildPlain(ctx context.Context, token *csp.Token,
	bundle *models.CAbundle, bundleBytes []byte,
) (EligibilityProof, error) {
	sig, err := b.Signer.SignPlain(ctx, token, bundleBytes)
	if err != nil {
		return nil, err
	}
	return &Plain{
		Signature: sig,
		Address:   ethcommon.BytesToAddress(bundle.Address),
		Bundle:    bundle,
		Salted:    b.Salted,
	}, nil
}

func (b *Builder) buildBlind(ctx context.Context, token *csp.Token,
	bundle *models.CAbundle, bundleBytes []byte,
) (EligibilityProof, error) {
	point, err := blind.NewPointFromBytesUncompressed(token.TokenR)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode blind token: %v", api.ErrAuthRejected, err)
	}
	blinded, secret, err := blind.Blind(BlindMessage(bundleBytes), point)
	if err != nil {
		return nil, fmt.Errorf("cannot blind CSP bundle: %w", err)
	}
	blindSig, err := b.Signer.SignBlind(ctx, token, blinded.Bytes())
	if err != nil {
		return nil, err
	}
	sig := blind.Unblind(new(big.Int).SetBytes(blindSig), secret)
	return &Blind{
		Signature: sig.BytesUncompressed(),
		Address:   ethcommon.BytesToAddress(bundle.Address),
		Bundle:    bundle,
		Salted:    b.Salted,
	}, nil
}
