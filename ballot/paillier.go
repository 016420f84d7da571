package ballot

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	paillier "github.com/roasbeef/go-go-gadget-paillier"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/util"
)

// Paillier encrypts every position of the vote package under the first
// election key, so that ballots can be tallied by adding ciphertexts. It
// suits ballots where each position carries a value to be summed, such as
// approval or score voting.
//
// Paillier keys are published as the hex encoded modulus N.
type Paillier struct{}

// PaillierPackage is an encrypted vote package. Votes are the ciphertexts
// of each position.
type PaillierPackage struct {
	Nonce string           `json:"nonce"`
	Votes []types.HexBytes `json:"votes"`
}

// Encrypt implements Encrypter.
func (Paillier) Encrypt(pkg *VotePackage, keys []types.EncryptionPubKey) ([]byte, []uint32, error) {
	if len(keys) == 0 {
		return nil, nil, fmt.Errorf("%w: no paillier key", api.ErrConfig)
	}
	idx, err := keyIndex(keys[0])
	if err != nil {
		return nil, nil, err
	}
	pub, err := PaillierPubKey(keys[0].Key)
	if err != nil {
		return nil, nil, err
	}
	out := PaillierPackage{Nonce: pkg.Nonce, Votes: make([]types.HexBytes, len(pkg.Votes))}
	for i, v := range pkg.Votes {
		if out.Votes[i], err = paillier.Encrypt(pub, big.NewInt(int64(v)).Bytes()); err != nil {
			return nil, nil, fmt.Errorf("cannot encrypt choice %d: %w", i, err)
		}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, nil, err
	}
	return data, []uint32{idx}, nil
}

// PaillierPubKey decodes a published Paillier key.
func PaillierPubKey(key string) (*paillier.PublicKey, error) {
	nb, err := hex.DecodeString(util.TrimHex(key))
	if err != nil || len(nb) == 0 {
		return nil, fmt.Errorf("%w: malformed paillier key", api.ErrConfig)
	}
	n := new(big.Int).SetBytes(nb)
	return &paillier.PublicKey{
		N:        n,
		G:        new(big.Int).Add(n, big.NewInt(1)),
		NSquared: new(big.Int).Mul(n, n),
	}, nil
}

// PaillierKey returns the published form of the public half of priv.
func PaillierKey(idx int, priv *paillier.PrivateKey) types.EncryptionPubKey {
	return types.EncryptionPubKey{Idx: idx, Key: hex.EncodeToString(priv.N.Bytes())}
}

// Tally adds the ciphertexts (in their encrypted form) of all the ballots,
// position by position.
func (Paillier) Tally(pub *paillier.PublicKey, ballots [][]byte) ([]types.HexBytes, error) {
	var sums []types.HexBytes
	for i, b := range ballots {
		var pkg PaillierPackage
		if err := json.Unmarshal(b, &pkg); err != nil {
			return nil, fmt.Errorf("cannot decode ballot %d: %w", i, err)
		}
		if sums == nil {
			sums = pkg.Votes
			continue
		}
		if len(pkg.Votes) != len(sums) {
			return nil, fmt.Errorf("ballot %d has %d positions, want %d", i, len(pkg.Votes), len(sums))
		}
		for j := range sums {
			sums[j] = paillier.AddCipher(pub, sums[j], pkg.Votes[j])
		}
	}
	return sums, nil
}

// Decrypt decrypts every position of encrypted values, such as a ballot or
// a tally.
func (Paillier) Decrypt(priv *paillier.PrivateKey, values []types.HexBytes) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, c := range values {
		m, err := paillier.Decrypt(priv, c)
		if err != nil {
			return nil, fmt.Errorf("cannot decrypt position %d: %w", i, err)
		}
		out[i] = new(big.Int).SetBytes(m)
	}
	return out, nil
}
