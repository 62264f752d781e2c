package recipient

import (
	"encoding/json"
	"errors"
	"os"
)

// DB is a directory of locally-deliverable mailboxes, keyed by
// address (local@domain). It is the recipient-side counterpart of the
// teacher's UserDB, persisted the same way: a single JSON file loaded
// and saved whole.
type DB struct {
	Recipients map[string]Recipient
}

// Exists reports whether address is a known local mailbox.
func (db *DB) Exists(address string) bool {
	_, found := db.Recipients[address]
	return found
}

// Get looks up a recipient by address.
func (db *DB) Get(address string) (*Recipient, error) {
	r, found := db.Recipients[address]
	if !found {
		return nil, errors.New("recipient not found: " + address)
	}
	return &r, nil
}

// Add registers a new deliverable recipient.
func (db *DB) Add(r Recipient) error {
	if db.Recipients == nil {
		db.Recipients = make(map[string]Recipient)
	}
	address := r.Address.AsAddress()
	if db.Exists(address) {
		return errors.New("recipient already exists: " + address)
	}
	db.Recipients[address] = r
	return nil
}

// Save writes the directory to file as indented JSON.
func (db *DB) Save(file string) error {
	output, err := json.MarshalIndent(db, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(file, output, 0644)
}

// Load reads a directory previously written by Save.
func Load(file string) (*DB, error) {
	input, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	db := DB{}
	if err := json.Unmarshal(input, &db); err != nil {
		return nil, err
	}

	return &db, nil
}
