// Package receipt persists the vote receipts of a voter, so confirmation
// polling can be resumed after a timeout or a restart.
package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.vocdoni.io/vaas/db"
	"go.vocdoni.io/vaas/db/metadb"
	"go.vocdoni.io/vaas/db/prefixeddb"
	"go.vocdoni.io/vaas/types"
)

var receiptPrefix = []byte("receipt/")

// ErrNotFound is returned when no receipt is stored for an election.
var ErrNotFound = fmt.Errorf("receipt not found: %w", db.ErrKeyNotFound)

// VoteReceipt is the record of a submitted ballot. It never holds the
// signing token nor any blinding material.
type VoteReceipt struct {
	ElectionID  types.HexBytes `json:"electionId"`
	Nullifier   types.HexBytes `json:"nullifier"`
	Mode        string         `json:"mode"`
	SubmittedAt time.Time      `json:"submittedAt"`
	Registered  bool           `json:"registered"`
	ExplorerURL string         `json:"explorerUrl,omitempty"`
	LastChecked time.Time      `json:"lastChecked,omitempty"`
}

// Store keeps receipts indexed by election ID.
type Store struct {
	db db.Database
}

// NewStore returns a store over database. Keys are namespaced, so the
// database can be shared.
func NewStore(database db.Database) *Store {
	return &Store{db: prefixeddb.NewPrefixedDatabase(database, receiptPrefix)}
}

// Open opens a store of the given backend type at dir.
func Open(typ, dir string) (*Store, error) {
	database, err := metadb.New(typ, dir)
	if err != nil {
		return nil, err
	}
	return NewStore(database), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores r, replacing any previous receipt of the same election.
func (s *Store) Save(r *VoteReceipt) error {
	if len(r.ElectionID) == 0 {
		return fmt.Errorf("receipt without election ID")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(r.ElectionID, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// Get returns the receipt of electionID or ErrNotFound.
func (s *Store) Get(electionID types.HexBytes) (*VoteReceipt, error) {
	data, err := s.db.Get(electionID)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: election %x", ErrNotFound, electionID)
	}
	if err != nil {
		return nil, err
	}
	r := &VoteReceipt{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("cannot decode receipt %x: %w", electionID, err)
	}
	return r, nil
}

// List returns every stored receipt, ordered by election ID.
func (s *Store) List() ([]*VoteReceipt, error) {
	var list []*VoteReceipt
	var decodeErr error
	err := s.db.Iterate(nil, func(key, value []byte) bool {
		r := &VoteReceipt{}
		if decodeErr = json.Unmarshal(value, r); decodeErr != nil {
			decodeErr = fmt.Errorf("cannot decode receipt %x: %w", key, decodeErr)
			return false
		}
		list = append(list, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return list, decodeErr
}

// Delete drops the receipt of electionID, if any.
func (s *Store) Delete(electionID types.HexBytes) error {
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := wTx.Delete(electionID); err != nil {
		return err
	}
	return wTx.Commit()
}
