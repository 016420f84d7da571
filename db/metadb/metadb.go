// Package metadb opens a db.Database by backend name.
package metadb

import (
	"cmp"
	"fmt"
	"os"
	"testing"

	"go.vocdoni.io/vaas/db"
	"go.vocdoni.io/vaas/db/goleveldb"
	"go.vocdoni.io/vaas/db/pebbledb"
)

// New opens a database of type typ at dir.
func New(typ, dir string) (db.Database, error) {
	var database db.Database
	var err error
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		database, err = pebbledb.New(opts)
		if err != nil {
			return nil, err
		}
	case db.TypeLevelDB:
		database, err = goleveldb.New(opts)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid dbType: %q. Available types: %q %q",
			typ, db.TypePebble, db.TypeLevelDB)
	}
	return database, nil
}

// ForTest returns the backend selected by VAAS_DB_TYPE, pebble by default.
func ForTest() (typ string) {
	return cmp.Or(os.Getenv("VAAS_DB_TYPE"), db.TypePebble)
}

// NewTest opens a throwaway database closed on test cleanup.
func NewTest(tb testing.TB) db.Database {
	database, err := New(ForTest(), tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { _ = database.Close() })
	return database
}
