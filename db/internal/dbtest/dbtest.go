// Package dbtest holds the conformance tests shared by the db backends.
package dbtest

import (
	"strconv"
	"testing"

	qt "github.com/frankban/quicktest"

	"go.vocdoni.io/vaas/db"
)

// TestWriteTx checks reads inside a write transaction, commit visibility and
// the double commit error.
func TestWriteTx(t *testing.T, database db.Database) {
	wTx := database.WriteTx()

	_, err := wTx.Get([]byte("a"))
	qt.Assert(t, err, qt.ErrorIs, db.ErrKeyNotFound)

	qt.Assert(t, wTx.Set([]byte("a"), []byte("b")), qt.IsNil)

	v, err := wTx.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))

	// not visible outside the transaction before Commit
	_, err = database.Get([]byte("a"))
	qt.Assert(t, err, qt.ErrorIs, db.ErrKeyNotFound)

	qt.Assert(t, wTx.Commit(), qt.IsNil)
	qt.Assert(t, wTx.Commit(), qt.IsNotNil)

	// Discard should not give any problem
	wTx.Discard()

	v, err = database.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))

	useReaderFromWriteTx(t, database.WriteTx())

	wTx = database.WriteTx()
	qt.Assert(t, wTx.Delete([]byte("a")), qt.IsNil)
	qt.Assert(t, wTx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("a"))
	qt.Assert(t, err, qt.ErrorIs, db.ErrKeyNotFound)
}

func useReaderFromWriteTx(t *testing.T, r db.Reader) {
	v, err := r.Get([]byte("a"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, v, qt.DeepEquals, []byte("b"))
	if tx, ok := r.(db.WriteTx); ok {
		tx.Discard()
	}
}

// TestIterate checks prefix filtering, ordering and prefix stripping.
func TestIterate(t *testing.T, d db.Database) {
	prefix0 := []byte("a")
	prefix0NumKeys := 20
	prefix1 := []byte("b")
	prefix1NumKeys := 30

	wTx := d.WriteTx()
	for i := 0; i < prefix0NumKeys; i++ {
		qt.Assert(t, wTx.Set(append(prefix0, []byte(strconv.Itoa(i))...), []byte(strconv.Itoa(i))), qt.IsNil)
	}
	for i := 0; i < prefix1NumKeys; i++ {
		qt.Assert(t, wTx.Set(append(prefix1, []byte(strconv.Itoa(i))...), []byte(strconv.Itoa(i))), qt.IsNil)
	}
	qt.Assert(t, wTx.Commit(), qt.IsNil)

	noPrefixKeysFound := 0
	err := d.Iterate(nil, func(k, v []byte) bool {
		noPrefixKeysFound++
		return true
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, noPrefixKeysFound, qt.Equals, prefix0NumKeys+prefix1NumKeys)

	var prev string
	prefix0KeysFound := 0
	err = d.Iterate(prefix0, func(k, v []byte) bool {
		// keys come without the prefix and in order
		qt.Assert(t, string(k), qt.Equals, string(v))
		qt.Assert(t, string(k) > prev, qt.IsTrue)
		prev = string(k)
		prefix0KeysFound++
		return true
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, prefix0KeysFound, qt.Equals, prefix0NumKeys)

	prefix1KeysFound := 0
	err = d.Iterate(prefix1, func(k, v []byte) bool {
		prefix1KeysFound++
		return prefix1KeysFound < 5
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, prefix1KeysFound, qt.Equals, 5)
}
