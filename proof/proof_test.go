package proof_test

import (
	"bytes"
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/proto/build/go/models"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/proof"
	"go.vocdoni.io/vaas/test/testcommon"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/util"
)

func newVoter(t *testing.T) *ethereum.SignKeys {
	k := ethereum.NewSignKeys()
	qt.Assert(t, k.Generate(), qt.IsNil)
	return k
}

func TestBuildAndVerify(t *testing.T) {
	tests := []struct {
		name   string
		mode   types.AuthMode
		salted bool
		want   models.ProofCA_Type
	}{
		{"blind salted", types.AuthBlind, true, models.ProofCA_ECDSA_BLIND_PIDSALTED},
		{"blind", types.AuthBlind, false, models.ProofCA_ECDSA_BLIND},
		{"plain salted", types.AuthPlain, true, models.ProofCA_ECDSA_PIDSALTED},
		{"plain", types.AuthPlain, false, models.ProofCA_ECDSA},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			signer, err := testcommon.NewCSPSigner(test.salted)
			c.Assert(err, qt.IsNil)
			electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
			token, err := signer.Token(electionID, test.mode)
			c.Assert(err, qt.IsNil)
			voter := newVoter(t)

			b := &proof.Builder{Signer: signer, Salted: test.salted, CSPPubKey: signer.PubKey()}
			p, err := b.Build(context.Background(), token, voter.Address())
			c.Assert(err, qt.IsNil)
			c.Assert(p.Mode(), qt.Equals, test.mode)
			c.Assert(p.Voter(), qt.Equals, voter.Address())
			pca := p.ProofCA()
			c.Assert(pca.Type, qt.Equals, test.want)
			c.Assert(pca.Bundle.ProcessId, qt.DeepEquals, []byte(electionID))

			c.Assert(proof.Verify(p, signer.PubKey(), electionID), qt.IsNil)
			c.Assert(proof.VerifyProofCA(pca, signer.PubKey(), electionID, voter.Address()), qt.IsNil)

			// another election
			other := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
			c.Assert(proof.Verify(p, signer.PubKey(), other), qt.ErrorIs, api.ErrProofInvalid)
			// another signer of the ballot
			c.Assert(proof.VerifyProofCA(pca, signer.PubKey(), electionID, newVoter(t).Address()),
				qt.ErrorIs, api.ErrProofInvalid)
			// another CSP
			otherCSP, err := testcommon.NewCSPSigner(test.salted)
			c.Assert(err, qt.IsNil)
			c.Assert(proof.Verify(p, otherCSP.PubKey(), electionID), qt.ErrorIs, api.ErrProofInvalid)

			// tokens are single use
			_, err = b.Build(context.Background(), token, voter.Address())
			c.Assert(err, qt.ErrorIs, api.ErrAuthRejected)
		})
	}
}

func TestBlindSignatureUnlinkable(t *testing.T) {
	c := qt.New(t)
	signer, err := testcommon.NewCSPSigner(true)
	c.Assert(err, qt.IsNil)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	voter := newVoter(t)

	// record what the CSP sees
	spy := &spySigner{CSPSigner: signer}
	b := &proof.Builder{Signer: spy, Salted: true}
	token, err := signer.Token(electionID, types.AuthBlind)
	c.Assert(err, qt.IsNil)
	p, err := b.Build(context.Background(), token, voter.Address())
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Verify(p, signer.PubKey(), electionID), qt.IsNil)

	c.Assert(spy.payload, qt.Not(qt.HasLen), 0)
	c.Assert(spy.signature, qt.Not(qt.HasLen), 0)
	pca := p.ProofCA()
	c.Assert(pca.Signature, qt.Not(qt.DeepEquals), []byte(spy.signature))
	c.Assert(bytes.Contains(spy.payload, voter.Address().Bytes()), qt.IsFalse)
}

func TestTamperedProof(t *testing.T) {
	c := qt.New(t)
	signer, err := testcommon.NewCSPSigner(true)
	c.Assert(err, qt.IsNil)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	token, err := signer.Token(electionID, types.AuthBlind)
	c.Assert(err, qt.IsNil)
	voter := newVoter(t)
	p, err := (&proof.Builder{Signer: signer, Salted: true}).Build(context.Background(), token, voter.Address())
	c.Assert(err, qt.IsNil)

	blindProof := p.(*proof.Blind)
	blindProof.Signature = append(types.HexBytes(nil), blindProof.Signature...)
	blindProof.Signature[len(blindProof.Signature)-1] ^= 0x01
	c.Assert(proof.Verify(blindProof, signer.PubKey(), electionID), qt.ErrorIs, api.ErrProofInvalid)

	_, err = proof.FromProofCA(&models.ProofCA{Type: models.ProofCA_ECDSA})
	c.Assert(err, qt.ErrorIs, api.ErrProofInvalid)
}

func TestBuildWrongToken(t *testing.T) {
	signer, err := testcommon.NewCSPSigner(true)
	qt.Assert(t, err, qt.IsNil)
	b := &proof.Builder{Signer: signer}
	_, err = b.Build(context.Background(), nil, newVoter(t).Address())
	qt.Assert(t, err, qt.ErrorIs, api.ErrConfig)
}
