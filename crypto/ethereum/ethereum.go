// Package ethereum provides the secp256k1 operations of the voter: key
// handling, Ethereum-prefixed signatures and the voter identity handle.
package ethereum

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.vocdoni.io/vaas/util"
)

// SignatureLength is the size of an ECDSA signature in bytes (R ‖ S ‖ V).
const SignatureLength = ethcrypto.SignatureLength

// PubKeyLengthBytes is the size of a compressed public key.
const PubKeyLengthBytes = 33

// PubKeyLengthBytesUncompressed is the size of an uncompressed public key.
const PubKeyLengthBytesUncompressed = 65

// VoterIDLength is the size of the CSP-facing voter identity handle.
const VoterIDLength = 32

// SigningPrefix is the prefix added when hashing
const SigningPrefix = "\u0019Ethereum Signed Message:\n"

// SignKeys represents an ECDSA pair of keys for signing.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys creates an empty ECDSA key pair.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// NewSignKeysFromHex imports a private hex key.
func NewSignKeysFromHex(privHex string) (*SignKeys, error) {
	k := NewSignKeys()
	if err := k.AddHexKey(privHex); err != nil {
		return nil, err
	}
	return k, nil
}

// Generate generates new keys
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a private hex key
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the public compressed and private keys as hex strings
func (k *SignKeys) HexString() (string, string) {
	pubHexComp := fmt.Sprintf("%x", ethcrypto.CompressPubkey(&k.Public))
	privHex := fmt.Sprintf("%x", ethcrypto.FromECDSA(&k.Private))
	return pubHexComp, privHex
}

// PublicKey returns the compressed public key
func (k *SignKeys) PublicKey() []byte {
	return ethcrypto.CompressPubkey(&k.Public)
}

// Address returns the SignKeys ethereum address
func (k *SignKeys) Address() ethcommon.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// VoterID returns the identity handle presented to the CSP: twelve
// zero bytes followed by the address.
func (k *SignKeys) VoterID() []byte {
	return VoterIDFromAddress(k.Address())
}

// VoterIDFromAddress builds the CSP voter identity handle of an address.
func VoterIDFromAddress(addr ethcommon.Address) []byte {
	id := make([]byte, VoterIDLength)
	copy(id[VoterIDLength-ethcommon.AddressLength:], addr.Bytes())
	return id
}

// SignEthereum signs a message with the Ethereum prefix. Message is a normal
// string (no HexString nor a Hash).
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, errors.New("no private key available")
	}
	return ethcrypto.Sign(Hash(message), &k.Private)
}

// Verify verifies an Ethereum prefixed signature of message against the
// keys' own public key.
func (k *SignKeys) Verify(message, signature []byte) (bool, error) {
	pub, err := PubKeyFromSignature(message, signature)
	if err != nil {
		return false, err
	}
	return bytes.Equal(pub, k.PublicKey()), nil
}

// DecompressPubKey takes a compressed public key and returns it decompressed.
// If already decompressed, returns the same key.
func DecompressPubKey(pubComp []byte) ([]byte, error) {
	if len(pubComp) > PubKeyLengthBytes {
		return pubComp, nil
	}
	pub, err := ethcrypto.DecompressPubkey(pubComp)
	if err != nil {
		return nil, fmt.Errorf("decompress pubKey %w", err)
	}
	return ethcrypto.FromECDSAPub(pub), nil
}

// UnmarshalPubKey decodes a compressed or uncompressed public key.
func UnmarshalPubKey(pub []byte) (*ecdsa.PublicKey, error) {
	if len(pub) == PubKeyLengthBytes {
		return ethcrypto.DecompressPubkey(pub)
	}
	return ethcrypto.UnmarshalPubkey(pub)
}

// PubKeyFromHex decodes a hex public key, compressed or not.
func PubKeyFromHex(pubHex string) (*ecdsa.PublicKey, error) {
	b, err := hex.DecodeString(util.TrimHex(pubHex))
	if err != nil {
		return nil, err
	}
	return UnmarshalPubKey(b)
}

// PubKeyFromSignature recovers the compressed ECDSA public key that created
// the Ethereum prefixed signature of a message.
func PubKeyFromSignature(message, signature []byte) ([]byte, error) {
	pub, err := recoverPubKey(Hash(message), signature)
	if err != nil {
		return nil, err
	}
	return ethcrypto.CompressPubkey(pub), nil
}

// AddrFromSignature recovers the Ethereum address that created the signature of a message
func AddrFromSignature(message, signature []byte) (ethcommon.Address, error) {
	pub, err := recoverPubKey(Hash(message), signature)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func recoverPubKey(hash, signature []byte) (*ecdsa.PublicKey, error) {
	if len(signature) != SignatureLength {
		return nil, fmt.Errorf("signature length not correct (%d)", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] > 1 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return nil, errors.New("bad recover ID byte")
	}
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return nil, fmt.Errorf("sigToPub %w", err)
	}
	return pub, nil
}

// Hash string data adding Ethereum prefix
func Hash(data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s%d%s", SigningPrefix, len(data), data)
	return HashRaw(buf.Bytes())
}

// HashRaw hashes a string with no prefix
func HashRaw(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}
