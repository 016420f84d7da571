package receipt

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp/cmpopts"

	"go.vocdoni.io/vaas/db"
	"go.vocdoni.io/vaas/db/metadb"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/util"
)

func TestStore(t *testing.T) {
	c := qt.New(t)
	store := NewStore(metadb.NewTest(t))

	now := time.Now().UTC().Truncate(time.Second)
	r1 := &VoteReceipt{
		ElectionID:  util.RandomBytes(types.ElectionIDLength),
		Nullifier:   util.RandomBytes(32),
		Mode:        "blind",
		SubmittedAt: now,
	}
	r2 := &VoteReceipt{
		ElectionID:  util.RandomBytes(types.ElectionIDLength),
		Nullifier:   util.RandomBytes(32),
		Mode:        "signed",
		SubmittedAt: now,
		Registered:  true,
		ExplorerURL: "https://explorer.example/vote/01",
	}
	c.Assert(store.Save(r1), qt.IsNil)
	c.Assert(store.Save(r2), qt.IsNil)

	got, err := store.Get(r1.ElectionID)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.CmpEquals(cmpopts.EquateEmpty()), r1)

	// a later save replaces the receipt
	r1.Registered = true
	r1.LastChecked = now.Add(time.Minute)
	c.Assert(store.Save(r1), qt.IsNil)
	got, err = store.Get(r1.ElectionID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Registered, qt.IsTrue)
	c.Assert(got.LastChecked.Equal(r1.LastChecked), qt.IsTrue)

	list, err := store.List()
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 2)

	c.Assert(store.Delete(r2.ElectionID), qt.IsNil)
	_, err = store.Get(r2.ElectionID)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(store.Save(&VoteReceipt{}), qt.ErrorMatches, "receipt without election ID")
}

func TestStoreSharedDatabase(t *testing.T) {
	database := metadb.NewTest(t)
	wTx := database.WriteTx()
	qt.Assert(t, wTx.Set([]byte("other"), []byte("not a receipt")), qt.IsNil)
	qt.Assert(t, wTx.Commit(), qt.IsNil)

	store := NewStore(database)
	qt.Assert(t, store.Save(&VoteReceipt{ElectionID: []byte{1}}), qt.IsNil)
	list, err := store.List()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, list, qt.HasLen, 1)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(db.TypePebble, dir)
	qt.Assert(t, err, qt.IsNil)
	id := types.HexBytes{0xaa}
	qt.Assert(t, store.Save(&VoteReceipt{ElectionID: id, Nullifier: []byte{0xbb}}), qt.IsNil)
	qt.Assert(t, store.Close(), qt.IsNil)

	store, err = Open(db.TypePebble, dir)
	qt.Assert(t, err, qt.IsNil)
	defer store.Close()
	r, err := store.Get(id)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, r.Nullifier, qt.DeepEquals, types.HexBytes{0xbb})
}
