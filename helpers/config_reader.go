// Package helpers holds small, domain-free utilities shared across the
// server: today, just a generic JSON config reader/writer. Kept from
// the teacher's helpers package, which had exactly this shape already.
package helpers

import (
	"encoding/json"
	"fmt"
	"os"
)

// DecodeFile decodes the JSON document at fileName into object, which
// must be a pointer. Used by main to load its server configuration
// file without inventing a bespoke format.
func DecodeFile(fileName string, object interface{}) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("helpers: could not open %s: %w", fileName, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(object); err != nil {
		return fmt.Errorf("helpers: could not parse %s: %w", fileName, err)
	}
	return nil
}

// EncodeFile writes object to fileName as indented JSON, overwriting
// whatever was there.
func EncodeFile(fileName string, object interface{}) error {
	data, err := json.MarshalIndent(object, "", "\t")
	if err != nil {
		return fmt.Errorf("helpers: could not encode %s: %w", fileName, err)
	}
	if err := os.WriteFile(fileName, data, 0644); err != nil {
		return fmt.Errorf("helpers: could not write %s: %w", fileName, err)
	}
	return nil
}
