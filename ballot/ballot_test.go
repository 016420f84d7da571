package ballot

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	paillier "github.com/roasbeef/go-go-gadget-paillier"
	"go.vocdoni.io/proto/build/go/models"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/crypto"
	"go.vocdoni.io/vaas/crypto/nacl"
	"go.vocdoni.io/vaas/proof"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/util"
)

func testProof(electionID types.HexBytes) proof.EligibilityProof {
	addr := ethcommon.BytesToAddress(util.RandomBytes(20))
	return &proof.Blind{
		Signature: util.RandomBytes(96),
		Address:   addr,
		Bundle:    proof.NewBundle(electionID, addr),
		Salted:    true,
	}
}

func TestEncodeOpen(t *testing.T) {
	c := qt.New(t)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	p := testProof(electionID)

	env, err := Encode(electionID, p, []int{1, 0}, false, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(env.CensusOrigin, qt.Equals, models.CensusOrigin_OFF_CHAIN_CA)
	c.Assert([]byte(env.ProcessId), qt.DeepEquals, []byte(electionID))
	c.Assert(env.Nonce, qt.HasLen, envelopeNonceSize)
	c.Assert(env.EncryptionKeyIndexes, qt.HasLen, 0)
	c.Assert(env.Proof.GetCa().Type, qt.Equals, models.ProofCA_ECDSA_BLIND_PIDSALTED)
	c.Assert(env.Proof.GetCa().Signature, qt.DeepEquals, p.ProofCA().Signature)

	pkg, err := DecodePackage(env.VotePackage)
	c.Assert(err, qt.IsNil)
	c.Assert(pkg.Votes, qt.DeepEquals, []int{1, 0})
	c.Assert(pkg.Nonce, qt.HasLen, 2*votePackageNonceSize)

	// nonces are fresh on every call
	env2, err := Encode(electionID, p, []int{1, 0}, false, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(env2.Nonce, qt.Not(qt.DeepEquals), env.Nonce)
}

func TestEncodeSealedBox(t *testing.T) {
	c := qt.New(t)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	var privs []crypto.Cipher
	var keys []types.EncryptionPubKey
	for i := 0; i < 3; i++ {
		priv, err := nacl.Generate(rand.Reader)
		c.Assert(err, qt.IsNil)
		privs = append(privs, priv)
		keys = append(keys, types.EncryptionPubKey{Idx: i, Key: priv.Public().(*nacl.PublicKey).String()})
	}
	// published out of order
	shuffled := []types.EncryptionPubKey{keys[2], keys[0], keys[1]}

	env, err := Encode(electionID, testProof(electionID), []int{2}, true, shuffled)
	c.Assert(err, qt.IsNil)
	c.Assert(env.EncryptionKeyIndexes, qt.DeepEquals, []uint32{0, 1, 2})
	c.Assert(json.Valid(env.VotePackage), qt.IsFalse)

	pkg, err := Decrypt(env.VotePackage, privs)
	c.Assert(err, qt.IsNil)
	c.Assert(pkg.Votes, qt.DeepEquals, []int{2})

	// a missing key can not open the chain
	_, err = Decrypt(env.VotePackage, privs[1:])
	c.Assert(err, qt.IsNotNil)
}

func TestEncodeErrors(t *testing.T) {
	c := qt.New(t)
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	p := testProof(electionID)

	_, err := Encode(electionID, p, []int{0}, true, nil)
	c.Assert(err, qt.ErrorIs, api.ErrConfig)

	_, err = Encode(electionID[:4], p, []int{0}, false, nil)
	c.Assert(err, qt.ErrorIs, api.ErrConfig)

	_, err = Encode(electionID, nil, []int{0}, false, nil)
	c.Assert(err, qt.ErrorIs, api.ErrConfig)

	_, err = Encode(electionID, p, []int{0}, true, []types.EncryptionPubKey{{Idx: 0, Key: "zz"}})
	c.Assert(err, qt.ErrorIs, api.ErrConfig)

	priv, err := nacl.Generate(rand.Reader)
	c.Assert(err, qt.IsNil)
	negative := []types.EncryptionPubKey{{Idx: -1, Key: priv.Public().(*nacl.PublicKey).String()}}
	_, err = Encode(electionID, p, []int{0}, true, negative)
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
	_, _, err = SealedBox{}.Encrypt(&VotePackage{Votes: []int{0}}, negative)
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
	_, _, err = Paillier{}.Encrypt(&VotePackage{Votes: []int{0}}, []types.EncryptionPubKey{{Idx: -3, Key: "0b"}})
	c.Assert(err, qt.ErrorIs, api.ErrConfig)

	questions := []types.Question{{Title: "q", Choices: []string{"yes", "no"}}}
	_, err = Encode(electionID, p, []int{2}, false, nil, WithQuestions(questions))
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
	_, err = Encode(electionID, p, []int{1}, false, nil, WithQuestions(questions))
	c.Assert(err, qt.IsNil)
}

func TestValidateChoices(t *testing.T) {
	questions := []types.Question{
		{Choices: []string{"a", "b"}},
		{Choices: []string{"a", "b", "c"}},
	}
	tests := []struct {
		choices []int
		ok      bool
	}{
		{[]int{1, 2}, true},
		{[]int{0, 0}, true},
		{[]int{2, 0}, false},
		{[]int{0}, false},
		{[]int{0, -1}, false},
		{nil, false},
	}
	for _, test := range tests {
		err := ValidateChoices(test.choices, questions)
		if test.ok {
			qt.Check(t, err, qt.IsNil, qt.Commentf("%v", test.choices))
		} else {
			qt.Check(t, err, qt.ErrorIs, api.ErrConfig, qt.Commentf("%v", test.choices))
		}
	}
	qt.Assert(t, ValidateChoices([]int{7, 9}, nil), qt.IsNil)
}

func TestPaillierTally(t *testing.T) {
	c := qt.New(t)
	priv, err := paillier.GenerateKey(rand.Reader, 512)
	c.Assert(err, qt.IsNil)
	keys := []types.EncryptionPubKey{PaillierKey(3, priv)}
	electionID := types.HexBytes(util.RandomBytes(types.ElectionIDLength))
	enc := &Encoder{Encrypter: Paillier{}}

	var ballots [][]byte
	for _, votes := range [][]int{{1, 0, 1}, {1, 1, 0}, {0, 0, 1}} {
		env, err := enc.Encode(electionID, testProof(electionID), votes, true, keys)
		c.Assert(err, qt.IsNil)
		c.Assert(env.EncryptionKeyIndexes, qt.DeepEquals, []uint32{3})
		ballots = append(ballots, env.VotePackage)
	}

	pub, err := PaillierPubKey(keys[0].Key)
	c.Assert(err, qt.IsNil)
	sums, err := Paillier{}.Tally(pub, ballots)
	c.Assert(err, qt.IsNil)
	totals, err := Paillier{}.Decrypt(priv, sums)
	c.Assert(err, qt.IsNil)
	c.Assert(totals, qt.HasLen, 3)
	for i, want := range []int64{2, 1, 2} {
		c.Assert(totals[i].Cmp(big.NewInt(want)), qt.Equals, 0, qt.Commentf("position %d", i))
	}
}
