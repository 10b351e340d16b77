package sequence

import (
	"testing"

	"questionbank/testutil"
)

func TestSequenceDoesNotDependOnStorage(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.StorageImport,
		"allocators read through the Reader interface only")
}
