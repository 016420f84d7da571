package types

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"go.vocdoni.io/vaas/util"
)

// HexBytes is a []byte encoded as a hex JSON string. Decoding accepts an
// optional 0x prefix, which the backend and the CSP both emit.
type HexBytes []byte

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// Equal reports whether b and o hold the same bytes.
func (b HexBytes) Equal(o HexBytes) bool { return bytes.Equal(b, o) }

func (b HexBytes) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, hex.EncodedLen(len(b))+2)
	out = append(out, '"')
	out = hex.AppendEncode(out, b)
	return append(out, '"'), nil
}

// UnmarshalJSON decodes a hex JSON string. A JSON null leaves b untouched.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	src := []byte(util.TrimHex(string(data[1 : len(data)-1])))
	n := hex.DecodedLen(len(src))
	if cap(*b) < n {
		*b = make([]byte, n)
	}
	*b = (*b)[:n]
	_, err := hex.Decode(*b, src)
	return err
}

// HexStringToHexBytes decodes a hex string, with or without 0x prefix.
func HexStringToHexBytes(hexString string) (HexBytes, error) {
	return hex.DecodeString(util.TrimHex(hexString))
}
