package cryptotest

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/vaas/crypto"
)

var tests = []struct {
	name    string
	message []byte
}{
	{
		name:    "Hello",
		message: []byte("hello world"),
	},
	{
		name:    "Empty",
		message: []byte(""),
	},
	{
		name:    "Accents",
		message: []byte("UTF-8-charsàèìòù"),
	},
	{
		name:    "VotePackage",
		message: []byte(`{"nonce":"0a0b","votes":[1,0,2]}`),
	},
}

func testKeyPair(t *testing.T, keypair crypto.PrivateKey) {
	t.Helper()

	pub := keypair.Public().Bytes()
	priv := keypair.Bytes()

	if len(pub) == 0 || len(priv) == 0 || bytes.Equal(pub, priv) {
		t.Fatalf("invalid keypair: pub=%x priv=%x", pub, priv)
	}
}

// TestGenerateEncryptDecrypt checks that two generated ciphers are distinct
// and that each one only decrypts its own messages.
func TestGenerateEncryptDecrypt(t *testing.T, gen func() (crypto.Cipher, error)) {
	t.Parallel()

	cipher1, err := gen()
	qt.Assert(t, err, qt.IsNil)
	cipher2, err := gen()
	qt.Assert(t, err, qt.IsNil)
	testKeyPair(t, cipher1)
	testKeyPair(t, cipher2)
	qt.Assert(t, cipher1.Bytes(), qt.Not(qt.DeepEquals), cipher2.Bytes())

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encrypted, err := cipher1.Encrypt(test.message)
			qt.Assert(t, err, qt.IsNil)
			qt.Assert(t, bytes.Equal(encrypted, test.message), qt.IsFalse)

			got, err := cipher1.Decrypt(encrypted)
			qt.Assert(t, err, qt.IsNil)
			qt.Assert(t, string(got), qt.Equals, string(test.message))

			_, err = cipher2.Decrypt(encrypted)
			qt.Assert(t, err, qt.IsNotNil)
		})
	}
}
