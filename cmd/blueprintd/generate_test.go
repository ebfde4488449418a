package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/blueprintd/internal/artifact"
	"github.com/fyrsmithlabs/blueprintd/internal/pipeline"
)

func TestReadRequirements(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reqs.txt")
	if err := os.WriteFile(path, []byte("  The system must work.  \n"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := readRequirements([]string{path})
	if err != nil {
		t.Fatalf("readRequirements() error = %v", err)
	}
	if got != "The system must work." {
		t.Errorf("readRequirements() = %q, want trimmed content", got)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("   \n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := readRequirements([]string{empty}); err == nil {
		t.Error("empty document should be rejected")
	}
}

func TestDetectMIME(t *testing.T) {
	if got := detectMIME("diagram.png", nil); got != "image/png" {
		t.Errorf("detectMIME(png) = %q", got)
	}
	// No extension: falls back to content sniffing.
	jpegHeader := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}
	if got := detectMIME("upload", jpegHeader); got != "image/jpeg" {
		t.Errorf("detectMIME(sniffed jpeg) = %q", got)
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	result := &pipeline.Result{
		Plan: "# Plan",
		TRD:  "# TRD",
		HLD:  artifact.Diagram{Kind: artifact.DiagramHLD, Mermaid: "flowchart TD\n  A --> B"},
		LLD:  artifact.Diagram{Kind: artifact.DiagramLLD, Mermaid: "flowchart TD\n  C --> D"},
		Backlog: &artifact.Backlog{Items: []*artifact.Item{
			{ID: "E-1", Kind: artifact.KindEpic, Title: "Epic"},
		}},
	}

	if err := writeArtifacts(dir, result); err != nil {
		t.Fatalf("writeArtifacts() error = %v", err)
	}

	for _, name := range []string{"plan.md", "trd.md", "hld.mmd", "lld.mmd", "backlog.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "backlog.json"))
	if err != nil {
		t.Fatal(err)
	}
	var b artifact.Backlog
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("backlog.json does not parse: %v", err)
	}
	if len(b.Items) != 1 || b.Items[0].ID != "E-1" {
		t.Errorf("backlog.json = %+v", b)
	}
}
