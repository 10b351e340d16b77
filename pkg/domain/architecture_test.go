package domain

import (
	"testing"

	"questionbank/testutil"
)

// TestDomainStaysOnStandardLibrary keeps the domain layer free of module
// packages and third-party dependencies.
func TestDomainStaysOnStandardLibrary(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.ModuleImport, testutil.ThirdPartyImport),
		"pkg/domain is imported by every layer")
}
