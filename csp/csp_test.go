package csp_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/crypto/ethereum"
	"go.vocdoni.io/vaas/csp"
	"go.vocdoni.io/vaas/test/testcommon"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/util"
)

func newVoter(t *testing.T) *ethereum.SignKeys {
	k := ethereum.NewSignKeys()
	qt.Assert(t, k.Generate(), qt.IsNil)
	return k
}

func TestRequestToken(t *testing.T) {
	c := qt.New(t)
	fake := testcommon.NewCSP(t, true)
	cl := csp.New(fake.URL, fake.BearerToken)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	auth, err := csp.NewStandardAuth(newVoter(t), electionID)
	c.Assert(err, qt.IsNil)

	token, err := cl.RequestToken(context.Background(), electionID, types.AuthBlind, auth)
	c.Assert(err, qt.IsNil)
	c.Assert(token.Mode, qt.Equals, types.AuthBlind)
	c.Assert(token.ElectionID, qt.DeepEquals, electionID)
	c.Assert(token.TokenR, qt.Not(qt.HasLen), 0)

	sig, err := cl.SignBlind(context.Background(), token, util.RandomBytes(31))
	c.Assert(err, qt.IsNil)
	c.Assert(sig, qt.Not(qt.HasLen), 0)

	// a second use of the same token is refused by the CSP
	_, err = cl.SignBlind(context.Background(), token, util.RandomBytes(31))
	c.Assert(err, qt.ErrorIs, api.ErrAuthRejected)
	c.Assert(err, qt.ErrorMatches, ".*already used.*")
}

func TestOneTokenPerVoter(t *testing.T) {
	c := qt.New(t)
	fake := testcommon.NewCSP(t, false)
	cl := csp.New(fake.URL, fake.BearerToken)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	keys := newVoter(t)
	auth, err := csp.NewStandardAuth(keys, electionID)
	c.Assert(err, qt.IsNil)

	_, err = cl.RequestToken(context.Background(), electionID, types.AuthBlind, auth)
	c.Assert(err, qt.IsNil)
	_, err = cl.RequestToken(context.Background(), electionID, types.AuthBlind, auth)
	c.Assert(err, qt.ErrorIs, api.ErrAuthRejected)
	c.Assert(err, qt.ErrorMatches, ".*already issued.*")

	// other voters and other elections are not affected
	other, err := csp.NewStandardAuth(newVoter(t), electionID)
	c.Assert(err, qt.IsNil)
	_, err = cl.RequestToken(context.Background(), electionID, types.AuthBlind, other)
	c.Assert(err, qt.IsNil)
	otherElection := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	auth, err = csp.NewStandardAuth(keys, otherElection)
	c.Assert(err, qt.IsNil)
	_, err = cl.RequestToken(context.Background(), otherElection, types.AuthBlind, auth)
	c.Assert(err, qt.IsNil)
}

func TestWrongFamilyFailsFast(t *testing.T) {
	c := qt.New(t)
	fake := testcommon.NewCSP(t, false)
	cl := csp.New(fake.URL, fake.BearerToken)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))

	token, err := cl.RequestToken(context.Background(), electionID, types.AuthPlain,
		csp.CustomAuth{VoterID: newVoter(t).VoterID(), Signature: util.RandomBytes(65)})
	c.Assert(err, qt.IsNil)
	sent := fake.Requests()

	_, err = cl.SignBlind(context.Background(), token, util.RandomBytes(32))
	c.Assert(err, qt.ErrorIs, csp.ErrWrongMode)
	c.Assert(err, qt.ErrorIs, api.ErrConfig)

	token.ElectionID = util.RandomBytes(types.ElectionIDLength)
	c.Assert(csp.CheckToken(token, electionID, types.AuthPlain), qt.ErrorIs, csp.ErrWrongElection)

	_, err = cl.SignPlain(context.Background(), nil, []byte("payload"))
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
	c.Assert(fake.Requests(), qt.Equals, sent)
}

func TestAuthRejected(t *testing.T) {
	c := qt.New(t)
	fake := testcommon.NewCSP(t, true)
	fake.Authorize = func(types.HexBytes, []string) error {
		return errors.New("voter not in census")
	}
	cl := csp.New(fake.URL, fake.BearerToken)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))

	_, err := cl.RequestToken(context.Background(), electionID, types.AuthBlind, csp.RawAuth{"secret"})
	c.Assert(err, qt.ErrorIs, api.ErrAuthRejected)
	c.Assert(err, qt.ErrorMatches, ".*voter not in census.*")

	// wrong bearer token
	cl = csp.New(fake.URL, nil)
	_, err = cl.RequestToken(context.Background(), electionID, types.AuthBlind, csp.RawAuth{"secret"})
	c.Assert(err, qt.ErrorIs, api.ErrAuthRejected)

	// malformed local input never reaches the CSP
	sent := fake.Requests()
	_, err = cl.RequestToken(context.Background(), electionID[:3], types.AuthBlind, csp.RawAuth{"x"})
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
	_, err = cl.RequestToken(context.Background(), electionID, types.AuthBlind, nil)
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
	c.Assert(fake.Requests(), qt.Equals, sent)
}

func TestRequestSharedKey(t *testing.T) {
	c := qt.New(t)
	fake := testcommon.NewCSP(t, true)
	cl := csp.New(fake.URL, fake.BearerToken)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	auth := csp.RawAuth{"voter"}

	_, err := cl.RequestSharedKey(context.Background(), electionID, auth)
	c.Assert(err, qt.ErrorIs, api.ErrAuthRejected)

	fake.SetSharedKey(electionID, types.HexBytes{0xca, 0xfe})
	key, err := cl.RequestSharedKey(context.Background(), electionID, auth)
	c.Assert(err, qt.IsNil)
	c.Assert(key, qt.DeepEquals, types.HexBytes{0xca, 0xfe})
}

func TestAuthDataEncoding(t *testing.T) {
	c := qt.New(t)
	voter := newVoter(t)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))

	custom := csp.CustomAuth{VoterID: voter.VoterID(), Signature: types.HexBytes{0x01, 0x02}}
	enc := custom.Encode()
	c.Assert(enc, qt.HasLen, 2)
	c.Assert(enc[0], qt.Equals, "000000000000000000000000"+types.HexBytes(voter.Address().Bytes()).String())
	c.Assert(enc[1], qt.Equals, "0102")

	std, err := csp.NewStandardAuth(voter, electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(std.Encode(), qt.HasLen, 1)
	ok, err := voter.Verify(electionID, std.SignedElectionID)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	_, err = csp.NewStandardAuth(voter, electionID[:10])
	c.Assert(err, qt.ErrorIs, api.ErrConfig)

	c.Assert(csp.RawAuth{"a", "b"}.Encode(), qt.DeepEquals, []string{"a", "b"})
}
