package gtsam

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteDOT(t *testing.T) {
	tree, _ := chainBayesTree(t)
	var buf bytes.Buffer
	if err := tree.WriteDOT(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "digraph BayesTree {") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "x2,x1") {
		t.Fatalf("missing root label:\n%s", out)
	}
	if !strings.Contains(out, "x0 : x1") {
		t.Fatalf("missing child label with separator:\n%s", out)
	}
	if !strings.Contains(out, "->") {
		t.Fatalf("missing edge:\n%s", out)
	}
}

func TestSaveGraph(t *testing.T) {
	tree, _ := chainBayesTree(t)
	path := filepath.Join(t.TempDir(), "tree.dot")
	if err := tree.SaveGraph(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "// Creation date (UTC):") {
		t.Fatal("missing creation comment")
	}
	if !strings.Contains(string(data), "digraph BayesTree {") {
		t.Fatal("missing dot body")
	}
}
