package ota

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/goosecore/internal/domain/entity"
)

func newTestApplier(t *testing.T) (*CodeApplier, string) {
	t.Helper()
	root := t.TempDir()
	return NewCodeApplier(root, zap.NewNop()), root
}

func writeFixture(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir fixture dir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestCodeApplier_ValidateChange_RequiresFieldsPerKind(t *testing.T) {
	applier, root := newTestApplier(t)
	writeFixture(t, root, "foo.go", "package foo\n")

	cases := []struct {
		name   string
		change entity.CodeChange
		wantOK bool
	}{
		{"insert missing content", entity.CodeChange{TargetFile: "foo.go", Kind: entity.ChangeInsert}, false},
		{"insert ok", entity.CodeChange{TargetFile: "foo.go", Kind: entity.ChangeInsert, NewContent: "// hi"}, true},
		{"replace missing pattern", entity.CodeChange{TargetFile: "foo.go", Kind: entity.ChangeReplace, NewContent: "x"}, false},
		{"delete missing pattern", entity.CodeChange{TargetFile: "foo.go", Kind: entity.ChangeDelete}, false},
		{"append missing content", entity.CodeChange{TargetFile: "foo.go", Kind: entity.ChangeAppend}, false},
		{"unknown kind", entity.CodeChange{TargetFile: "foo.go", Kind: "bogus"}, false},
		{"missing target file", entity.CodeChange{TargetFile: "missing.go", Kind: entity.ChangeAppend, NewContent: "x"}, false},
	}

	for _, tc := range cases {
		err := applier.ValidateChange(&tc.change)
		if tc.wantOK && err != nil {
			t.Errorf("%s: expected no error, got %v", tc.name, err)
		}
		if !tc.wantOK && err == nil {
			t.Errorf("%s: expected an error, got none", tc.name)
		}
	}
}

func TestCodeApplier_Apply_InsertReplaceDeleteAppend(t *testing.T) {
	applier, root := newTestApplier(t)
	writeFixture(t, root, "foo.go", "package foo\n\nfunc Foo() {}\n")

	result, err := applier.Apply(&entity.CodeChange{ID: "c1", TargetFile: "foo.go", Kind: entity.ChangeReplace, SearchPattern: "func Foo() {}", NewContent: "func Foo() { return }"})
	if err != nil || !result.Success {
		t.Fatalf("replace failed: err=%v result=%+v", err, result)
	}

	content, err := os.ReadFile(filepath.Join(root, "foo.go"))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if !strings.Contains(string(content), "func Foo() { return }") {
		t.Fatalf("expected replaced content, got %q", content)
	}

	result, err = applier.Apply(&entity.CodeChange{ID: "c2", TargetFile: "foo.go", Kind: entity.ChangeAppend, NewContent: "// trailer"})
	if err != nil || !result.Success {
		t.Fatalf("append failed: err=%v result=%+v", err, result)
	}

	result, err = applier.Apply(&entity.CodeChange{ID: "c3", TargetFile: "foo.go", Kind: entity.ChangeDelete, SearchPattern: "// trailer"})
	if err != nil || !result.Success {
		t.Fatalf("delete failed: err=%v result=%+v", err, result)
	}
}

func TestCodeApplier_Apply_InvalidChangeReportsFailureNotError(t *testing.T) {
	applier, _ := newTestApplier(t)

	result, err := applier.Apply(&entity.CodeChange{ID: "c1", TargetFile: "nope.go", Kind: entity.ChangeAppend, NewContent: "x"})
	if err != nil {
		t.Fatalf("expected validation failures to surface in the result, not as an error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure result for missing target file")
	}
	if result.ErrorMessage == nil || *result.ErrorMessage == "" {
		t.Fatalf("expected a non-empty error message")
	}
}

func TestCodeApplier_DryRunSkipsBackupAndWrite(t *testing.T) {
	applier, root := newTestApplier(t)
	writeFixture(t, root, "foo.go", "package foo\n")
	dryApplier := applier.WithDryRun(true)

	result, err := dryApplier.Apply(&entity.CodeChange{ID: "c1", TargetFile: "foo.go", Kind: entity.ChangeAppend, NewContent: "// added"})
	if err != nil || !result.Success {
		t.Fatalf("dry run apply failed: err=%v result=%+v", err, result)
	}
	if result.BackupPath != nil {
		t.Fatalf("expected no backup path in dry run mode")
	}

	content, err := os.ReadFile(filepath.Join(root, "foo.go"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(content), "// added") {
		t.Fatalf("dry run must not write to disk, got %q", content)
	}

	if _, err := os.Stat(dryApplier.BackupDir()); err == nil {
		t.Fatalf("expected no backup directory to be created in dry run mode")
	}
}

func TestCodeApplier_RollbackChange_RestoresOriginalContent(t *testing.T) {
	applier, root := newTestApplier(t)
	writeFixture(t, root, "foo.go", "original content\n")

	result, err := applier.Apply(&entity.CodeChange{ID: "c1", TargetFile: "foo.go", Kind: entity.ChangeAppend, NewContent: "// added"})
	if err != nil || !result.Success {
		t.Fatalf("apply failed: err=%v result=%+v", err, result)
	}

	ok, err := applier.RollbackChange("c1")
	if err != nil || !ok {
		t.Fatalf("rollback failed: ok=%v err=%v", ok, err)
	}

	content, err := os.ReadFile(filepath.Join(root, "foo.go"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "original content\n" {
		t.Fatalf("expected original content restored, got %q", content)
	}
}

func TestCodeApplier_RollbackAll_RestoresInReverseOrder(t *testing.T) {
	applier, root := newTestApplier(t)
	writeFixture(t, root, "a.go", "a original\n")
	writeFixture(t, root, "b.go", "b original\n")

	if _, err := applier.Apply(&entity.CodeChange{ID: "c1", TargetFile: "a.go", Kind: entity.ChangeAppend, NewContent: "// a added"}); err != nil {
		t.Fatalf("apply a: %v", err)
	}
	if _, err := applier.Apply(&entity.CodeChange{ID: "c2", TargetFile: "b.go", Kind: entity.ChangeAppend, NewContent: "// b added"}); err != nil {
		t.Fatalf("apply b: %v", err)
	}

	n, err := applier.RollbackAll()
	if err != nil {
		t.Fatalf("rollback all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 changes rolled back, got %d", n)
	}

	aContent, _ := os.ReadFile(filepath.Join(root, "a.go"))
	bContent, _ := os.ReadFile(filepath.Join(root, "b.go"))
	if string(aContent) != "a original\n" || string(bContent) != "b original\n" {
		t.Fatalf("expected both files restored, got a=%q b=%q", aContent, bContent)
	}
}
