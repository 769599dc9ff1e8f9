package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDurationUnmarshalsFromString(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"30s"`), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if d.Duration != 30*time.Second {
		t.Fatalf("got %v want 30s", d.Duration)
	}
}

func TestDurationRejectsNonString(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`30`), &d); err == nil {
		t.Fatalf("expected error for a raw-number duration")
	}
}

func TestSecretPlainValue(t *testing.T) {
	var s Secret
	if err := json.Unmarshal([]byte(`"hunter2"`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s != "hunter2" {
		t.Fatalf("got %q want hunter2", s)
	}
}

func TestSecretReadsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "masa-key-passphrase")
	if err := os.WriteFile(path, []byte("correct-horse-battery-staple\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var s Secret
	encoded, err := json.Marshal("secret:" + path)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := json.Unmarshal(encoded, &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s != "correct-horse-battery-staple" {
		t.Fatalf("got %q, trailing newline should have been trimmed", s)
	}
}

func TestSecretMissingFileErrors(t *testing.T) {
	var s Secret
	if err := json.Unmarshal([]byte(`"secret:/no/such/file"`), &s); err == nil {
		t.Fatalf("expected error for a missing secret file")
	}
}
