// Package saltedkey derives per-election CSP keys. A CSP salts its root key
// with the first SaltSize bytes of the election ID, so a signature issued
// for one election cannot be replayed on another.
package saltedkey

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	blind "github.com/arnaucube/go-blindsecp256k1"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SaltSize is the size (in bytes) of the salt word
const SaltSize = 20

func saltWord(salt []byte) ([SaltSize]byte, error) {
	var w [SaltSize]byte
	if len(salt) < SaltSize {
		return w, fmt.Errorf("provided salt is not large enough (need %d bytes)", SaltSize)
	}
	copy(w[:], salt[:SaltSize])
	return w, nil
}

// SaltBlindPubKey returns the salted blind public key of pubKey applying the salt.
func SaltBlindPubKey(pubKey *blind.PublicKey, salt []byte) (*blind.PublicKey, error) {
	if pubKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	w, err := saltWord(salt)
	if err != nil {
		return nil, err
	}
	x, y := ethcrypto.S256().ScalarBaseMult(w[:])
	s := blind.Point{
		X: x,
		Y: y,
	}
	return (*blind.PublicKey)(pubKey.Point().Add(&s)), nil
}

// SaltECDSAPubKey returns the salted plain public key of pubKey applying the
// salt. pubKey is not modified.
func SaltECDSAPubKey(pubKey *ecdsa.PublicKey, salt []byte) (*ecdsa.PublicKey, error) {
	if pubKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	w, err := saltWord(salt)
	if err != nil {
		return nil, err
	}
	x, y := pubKey.Curve.ScalarBaseMult(w[:])
	salted := &ecdsa.PublicKey{Curve: pubKey.Curve}
	salted.X, salted.Y = pubKey.Curve.Add(pubKey.X, pubKey.Y, x, y)
	return salted, nil
}

// SaltECDSAPrivKey returns the private key matching SaltECDSAPubKey, that is
// d + salt mod N.
func SaltECDSAPrivKey(privKey *ecdsa.PrivateKey, salt []byte) (*ecdsa.PrivateKey, error) {
	if privKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	d, err := saltScalar(privKey.D, salt)
	if err != nil {
		return nil, err
	}
	return ethcrypto.ToECDSA(scalarBytes(d))
}

// SaltBlindPrivKey returns the blind private key matching SaltBlindPubKey.
func SaltBlindPrivKey(privKey *blind.PrivateKey, salt []byte) (*blind.PrivateKey, error) {
	if privKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	d, err := saltScalar(privKey.BigInt(), salt)
	if err != nil {
		return nil, err
	}
	return (*blind.PrivateKey)(d), nil
}

func saltScalar(d *big.Int, salt []byte) (*big.Int, error) {
	w, err := saltWord(salt)
	if err != nil {
		return nil, err
	}
	s := new(big.Int).Add(d, new(big.Int).SetBytes(w[:]))
	return s.Mod(s, ethcrypto.S256().Params().N), nil
}

// scalarBytes left-pads a scalar to 32 bytes, as ToECDSA expects.
func scalarBytes(d *big.Int) []byte {
	b := make([]byte, 32)
	return d.FillBytes(b)
}
