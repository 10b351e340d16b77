package sqlite

import (
	"testing"

	"questionbank/testutil"
)

func TestImportsAreDomainOrPersistence(t *testing.T) {
	allowed := map[string]bool{
		"questionbank/pkg/domain":                          true,
		"questionbank/internal/infra/persistence/memory":   true,
		"questionbank/internal/infra/persistence/sqlstate": true,
	}
	testutil.AssertNoDirectImports(t, ".", func(path string) bool {
		return testutil.ModuleImport(path) && !allowed[path]
	}, "the sqlite backend sits below the service layer")
}
