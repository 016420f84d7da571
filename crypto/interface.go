// Package crypto contains the key interfaces shared by the ballot
// encryption schemes. Implementations use crypto/rand.Reader as their source
// of secure randomness.
//
// They are meant to encrypt small chunks of bytes, such as a vote package.
package crypto

// PublicKey is the public half of a key pair, in its raw encoding.
type PublicKey interface {
	Bytes() []byte
}

// PrivateKey is the private half of a key pair.
type PrivateKey interface {
	Bytes() []byte
	Public() PublicKey
}

// Cipher represents a public key cryptography algorithm able to encrypt for
// its own public key and decrypt.
type Cipher interface {
	PrivateKey

	Encrypt(message []byte) ([]byte, error)
	Decrypt(cipher []byte) ([]byte, error)
}
