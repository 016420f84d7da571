package ballot

import (
	"encoding/json"
	"fmt"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/crypto"
	"go.vocdoni.io/vaas/crypto/nacl"
	"go.vocdoni.io/vaas/types"
)

// SealedBox chains anonymous nacl boxes over every key, in index order.
// Opening requires every matching private key, in reverse order.
type SealedBox struct{}

// Encrypt implements Encrypter.
func (SealedBox) Encrypt(pkg *VotePackage, keys []types.EncryptionPubKey) ([]byte, []uint32, error) {
	data, err := json.Marshal(pkg)
	if err != nil {
		return nil, nil, err
	}
	indexes := make([]uint32, 0, len(keys))
	for _, k := range keys {
		idx, err := keyIndex(k)
		if err != nil {
			return nil, nil, err
		}
		pub, err := nacl.DecodePublic(k.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: cannot decode encryption key %d: %v", api.ErrConfig, k.Idx, err)
		}
		if data, err = pub.Encrypt(data); err != nil {
			return nil, nil, fmt.Errorf("cannot encrypt vote package with key %d: %w", k.Idx, err)
		}
		indexes = append(indexes, idx)
	}
	return data, indexes, nil
}

// Decrypt opens a SealedBox vote package. privKeys must be given in the
// order of the envelope key indexes.
func Decrypt(data []byte, privKeys []crypto.Cipher) (*VotePackage, error) {
	for i := len(privKeys) - 1; i >= 0; i-- {
		var err error
		if data, err = privKeys[i].Decrypt(data); err != nil {
			return nil, fmt.Errorf("cannot decrypt vote package with key %d: %w", i, err)
		}
	}
	return DecodePackage(data)
}
