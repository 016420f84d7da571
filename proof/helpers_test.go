package proof_test

import (
	"context"

	"go.vocdoni.io/vaas/csp"
	"go.vocdoni.io/vaas/test/testcommon"
	"go.vocdoni.io/vaas/types"
)

type spySigner struct {
	*testcommon.CSPSigner
	payload   []byte
	signature types.HexBytes
}

func (s *spySigner) SignBlind(ctx context.Context, token *csp.Token, blinded []byte) (types.HexBytes, error) {
	s.payload = blinded
	sig, err := s.CSPSigner.SignBlind(ctx, token, blinded)
	s.signature = sig
	return sig, err
}
