package metadb

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"go.vocdoni.io/vaas/db"
)

func TestNew(t *testing.T) {
	for _, typ := range []string{db.TypePebble, db.TypeLevelDB} {
		t.Run(typ, func(t *testing.T) {
			database, err := New(typ, t.TempDir())
			qt.Assert(t, err, qt.IsNil)
			wTx := database.WriteTx()
			qt.Assert(t, wTx.Set([]byte("k"), []byte("v")), qt.IsNil)
			qt.Assert(t, wTx.Commit(), qt.IsNil)
			v, err := database.Get([]byte("k"))
			qt.Assert(t, err, qt.IsNil)
			qt.Assert(t, v, qt.DeepEquals, []byte("v"))
			qt.Assert(t, database.Close(), qt.IsNil)
		})
	}
	_, err := New("mongodb", t.TempDir())
	qt.Assert(t, err, qt.ErrorMatches, `invalid dbType: "mongodb".*`)
}
