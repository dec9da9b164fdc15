package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePreKey_NoKeyfilesUsesPasswordDirectly(t *testing.T) {
	key, err := resolvePreKey("my-password", nil, false)
	if err != nil {
		t.Fatalf("resolvePreKey: %v", err)
	}
	if !bytes.Equal(key, []byte("my-password")) {
		t.Errorf("expected password bytes unchanged, got %q", key)
	}
}

func TestResolvePreKey_WithKeyfileMixesInKey(t *testing.T) {
	dir := t.TempDir()
	keyfilePath := filepath.Join(dir, "usb.key")
	if err := os.WriteFile(keyfilePath, []byte("keyfile contents used to derive a mixing key"), 0o644); err != nil {
		t.Fatal(err)
	}

	withKeyfile, err := resolvePreKey("my-password", []string{keyfilePath}, false)
	if err != nil {
		t.Fatalf("resolvePreKey: %v", err)
	}
	withoutKeyfile, err := resolvePreKey("my-password", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(withKeyfile, withoutKeyfile) {
		t.Error("expected keyfile-mixed pre-key to differ from the bare password")
	}
	if len(withKeyfile) != 32 {
		t.Errorf("expected a 32-byte mixed pre-key, got %d bytes", len(withKeyfile))
	}
}

func TestResolvePreKey_DuplicateUnorderedKeyfilesCancelOut(t *testing.T) {
	dir := t.TempDir()
	keyfilePath := filepath.Join(dir, "dup.key")
	if err := os.WriteFile(keyfilePath, []byte("same file used twice"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := resolvePreKey("pw", []string{keyfilePath, keyfilePath}, false)
	if err == nil {
		t.Error("expected an error when identical keyfiles cancel out under unordered mixing")
	}
}

func TestResolvePreKey_SamePathTwiceOrderedDoesNotCancelOut(t *testing.T) {
	dir := t.TempDir()
	keyfilePath := filepath.Join(dir, "dup.key")
	if err := os.WriteFile(keyfilePath, []byte("same file used twice"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := resolvePreKey("pw", []string{keyfilePath, keyfilePath}, true)
	if err != nil {
		t.Errorf("ordered mode with the same keyfile twice should not cancel out: %v", err)
	}
}

func TestClonePreKey_IndependentBacking(t *testing.T) {
	original := []byte{1, 2, 3, 4}
	clone := clonePreKey(original)

	if !bytes.Equal(clone, original) {
		t.Fatalf("clone mismatch: got %v, want %v", clone, original)
	}

	clone[0] = 0xFF
	if original[0] == 0xFF {
		t.Error("mutating the clone affected the original backing array")
	}
}
