package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingLogger struct{ msg string }

func (r *recordingLogger) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"module root", ModuleImport, "questionbank", true},
		{"module package", ModuleImport, "questionbank/internal/core", true},
		{"module lookalike", ModuleImport, "questionbanker/x", false},
		{"internal", InternalImportForbidden, "questionbank/internal/sequence", true},
		{"pkg", InternalImportForbidden, "questionbank/pkg/domain", false},
		{"stdlib", ThirdPartyImport, "encoding/json", false},
		{"third party", ThirdPartyImport, "go.uber.org/zap", true},
		{"sqlite driver", StorageImport, "modernc.org/sqlite/lib", true},
		{"pgx", StorageImport, "github.com/jackc/pgx/v5/stdlib", true},
		{"infra", StorageImport, "questionbank/internal/infra/persistence/memory", true},
		{"blob", StorageImport, "questionbank/internal/blob/core", true},
		{"sequence", StorageImport, "questionbank/internal/sequence", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Errorf("%s: predicate(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func TestAnyOf(t *testing.T) {
	pred := AnyOf(ModuleImport, ThirdPartyImport)
	if !pred("questionbank/pkg/domain") || !pred("github.com/google/uuid") || pred("fmt") {
		t.Fatalf("AnyOf did not combine predicates")
	}
	if AnyOf()("anything") {
		t.Fatalf("empty AnyOf must match nothing")
	}
}

func TestDirectImportViolationsIgnoresTestsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "main.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"github.com/google/uuid\"\n)\nfunc X() { fmt.Println(uuid.New()) }\n")
	writeGo(t, dir, "main_test.go", "package tmp\nimport \"go.uber.org/zap\"\nvar _ = zap.L\n")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	writeGo(t, filepath.Join(dir, "sub"), "sub.go", "package sub\nimport \"modernc.org/sqlite\"\n")

	viols, err := directImportViolations(dir, ThirdPartyImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "github.com/google/uuid (in main.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, ModuleImport, "no module imports")
}

func TestDirectImportViolationsErrors(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), ModuleImport); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	dir := t.TempDir()
	writeGo(t, dir, "broken.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, ModuleImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nquestionbank/internal/sequence\n\nmodernc.org/sqlite\n"), nil
	}
	viols, _, err := transitiveDependencyViolations(".", StorageImport)
	if err != nil || len(viols) != 1 || viols[0] != "modernc.org/sqlite" {
		t.Fatalf("unexpected result %v %v", viols, err)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations(".", StorageImport); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure to surface, got %v %q", err, out)
	}
}

func TestFailIfViolations(t *testing.T) {
	var rec recordingLogger
	failIfViolations(&rec, "direct imports", "reason", nil)
	if rec.msg != "" {
		t.Fatalf("no violations must not fail: %q", rec.msg)
	}
	failIfViolations(&rec, "direct imports", "layering", []string{"a", "b"})
	if !strings.Contains(rec.msg, "forbidden direct imports detected (layering)") || !strings.HasSuffix(rec.msg, "a\nb") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}
