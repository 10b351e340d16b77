// Package id generates store-internal entity identities. These never appear
// in sequence identifiers and survive renumbering unchanged.
package id

import (
	"time"

	fid "github.com/amterp/flexid"
)

var generator *fid.Generator

func init() {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	config := fid.NewConfig().
		WithEpoch(epoch).
		WithTickSize(time.Millisecond).
		WithNumRandomChars(6)

	generator = fid.MustNewGenerator(config)
}

// Generate returns a new unique internal ID.
func Generate() string {
	return generator.MustGenerate()
}
