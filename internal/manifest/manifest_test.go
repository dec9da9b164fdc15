package manifest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ocpkg/ocpkg/internal/occipher"
	"github.com/ocpkg/ocpkg/internal/ocerrors"
	"github.com/ocpkg/ocpkg/internal/ocrand"
)

func sampleManifest() *Manifest {
	return &Manifest{
		PayloadItems: []*PayloadItem{
			{
				Identifier:        uuid.New(),
				Type:              "file",
				RelativePath:      "notes.txt",
				ExternalLength:    42,
				CipherCfg:         occipher.CipherConfig{Kind: occipher.CipherKindStream, Name: "XChaCha20", KeySizeBits: 256, IVOrNonce: bytes.Repeat([]byte{1}, 24)},
				AuthenticationCfg: occipher.AuthenticationConfig{Kind: occipher.AuthKindMac, Name: "Keyed-BLAKE2b-512", KeySizeBits: 512},
			},
		},
		PayloadCfg: PayloadConfig{
			Scheme: SchemeSimple,
			PRNGCfg: ocrand.PRNGConfig{
				Name:  "XChaCha20-CSPRNG",
				Key:   bytes.Repeat([]byte{2}, 32),
				Nonce: bytes.Repeat([]byte{3}, 24),
			},
		},
	}
}

func sampleCryptoConfig() *CryptoConfig {
	return &CryptoConfig{
		Scheme:            SchemeSymmetric,
		CipherCfg:         occipher.CipherConfig{Kind: occipher.CipherKindStream, Name: "XChaCha20", KeySizeBits: 256, IVOrNonce: bytes.Repeat([]byte{4}, 24)},
		AuthenticationCfg: occipher.AuthenticationConfig{Kind: occipher.AuthKindMac, Name: "Keyed-BLAKE2b-512", KeySizeBits: 512},
		KDFCfg:            occipher.KeyDerivationConfig{Name: occipher.KDFScrypt, Salt: bytes.Repeat([]byte{5}, 16), ScryptCfg: &occipher.ScryptConfig{IterPower: 5, R: 1, P: 1}},
		KeyConfirmationCfg: occipher.AuthenticationConfig{
			Kind: occipher.AuthKindDigest, Name: "Keccak-256",
			Salt: bytes.Repeat([]byte{6}, 16), Nonce: bytes.Repeat([]byte{7}, 16),
		},
		KeyConfirmationExpectedOutput: bytes.Repeat([]byte{8}, 32),
	}
}

func TestEncryptDecryptManifest_RoundTrip(t *testing.T) {
	m := sampleManifest()
	cryptoCfg := sampleCryptoConfig()
	cipherKey := bytes.Repeat([]byte{9}, 32)
	macKey := bytes.Repeat([]byte{10}, 64)

	ciphertext, obfuscatedLen, tag, err := EncryptManifest(m, cryptoCfg, cipherKey, macKey)
	if err != nil {
		t.Fatalf("EncryptManifest: %v", err)
	}

	gotLen, err := DeobfuscateLengthPrefix(obfuscatedLen, macKey)
	if err != nil {
		t.Fatalf("DeobfuscateLengthPrefix: %v", err)
	}
	if int(gotLen) != len(ciphertext) {
		t.Errorf("obfuscated length mismatch: got %d, want %d", gotLen, len(ciphertext))
	}

	got, err := DecryptManifest(ciphertext, cryptoCfg, cipherKey, macKey, tag)
	if err != nil {
		t.Fatalf("DecryptManifest: %v", err)
	}

	if len(got.PayloadItems) != 1 {
		t.Fatalf("expected 1 payload item, got %d", len(got.PayloadItems))
	}
	if got.PayloadItems[0].RelativePath != "notes.txt" {
		t.Errorf("relative path mismatch: got %q", got.PayloadItems[0].RelativePath)
	}
	if got.PayloadItems[0].Identifier != m.PayloadItems[0].Identifier {
		t.Error("identifier mismatch after round trip")
	}
	if got.PayloadCfg.Scheme != SchemeSimple {
		t.Errorf("payload scheme mismatch: got %q", got.PayloadCfg.Scheme)
	}
}

func TestDecryptManifest_TamperedCiphertextFailsAuth(t *testing.T) {
	m := sampleManifest()
	cryptoCfg := sampleCryptoConfig()
	cipherKey := bytes.Repeat([]byte{11}, 32)
	macKey := bytes.Repeat([]byte{12}, 64)

	ciphertext, _, tag, err := EncryptManifest(m, cryptoCfg, cipherKey, macKey)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext[0] ^= 0xFF

	_, err = DecryptManifest(ciphertext, cryptoCfg, cipherKey, macKey, tag)
	if !errors.Is(err, ocerrors.ErrAuth) {
		t.Errorf("expected ErrAuth for tampered manifest ciphertext, got %v", err)
	}
}

func TestDecryptManifest_WrongKeyFailsAuth(t *testing.T) {
	m := sampleManifest()
	cryptoCfg := sampleCryptoConfig()
	cipherKey := bytes.Repeat([]byte{13}, 32)
	macKey := bytes.Repeat([]byte{14}, 64)

	ciphertext, _, tag, err := EncryptManifest(m, cryptoCfg, cipherKey, macKey)
	if err != nil {
		t.Fatal(err)
	}

	wrongMacKey := bytes.Repeat([]byte{15}, 64)
	_, err = DecryptManifest(ciphertext, cryptoCfg, cipherKey, wrongMacKey, tag)
	if !errors.Is(err, ocerrors.ErrAuth) {
		t.Errorf("expected ErrAuth for wrong MAC key, got %v", err)
	}
}

func TestFixedWidthLength_MarshalRoundTrip(t *testing.T) {
	values := []FixedWidthLength{0, 1, 42, 1 << 40}
	for _, v := range values {
		data, err := v.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON(%d): %v", v, err)
		}
		var got FixedWidthLength
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON(%q): %v", data, err)
		}
		if got != v {
			t.Errorf("round trip mismatch: got %d, want %d", got, v)
		}
	}
}

func TestFixedWidthLength_ConstantWidth(t *testing.T) {
	small, err := FixedWidthLength(1).MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	large, err := FixedWidthLength(1 << 60).MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if len(small) != len(large) {
		t.Errorf("expected constant marshaled width, got %d vs %d", len(small), len(large))
	}
}

func TestManifestValidate_RejectsDuplicateIdentifiers(t *testing.T) {
	m := sampleManifest()
	dup := *m.PayloadItems[0]
	m.PayloadItems = append(m.PayloadItems, &dup)

	if err := m.Validate(nil); err == nil {
		t.Error("expected an error for duplicate item identifiers")
	}
}

func TestPayloadItem_ValidatePathRejectsTraversal(t *testing.T) {
	item := &PayloadItem{Type: "file", RelativePath: "../etc/passwd"}
	if err := item.ValidatePath(nil); err == nil {
		t.Error("expected an error for a path-traversal relative path")
	}

	exempt := &PayloadItem{Type: "key-action", RelativePath: "../whatever"}
	if err := exempt.ValidatePath(map[string]bool{"key-action": true}); err != nil {
		t.Errorf("expected non-filesystem type to be exempt, got %v", err)
	}
}

func TestPayloadConfigValidate_FrameshiftBounds(t *testing.T) {
	cfg := &PayloadConfig{Scheme: SchemeFrameshift, FrameshiftCfg: &FrameshiftConfig{Min: 16, Max: 16}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid bounds to pass, got %v", err)
	}

	bad := &PayloadConfig{Scheme: SchemeFrameshift, FrameshiftCfg: &FrameshiftConfig{Min: 4, Max: 16}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for min below 8")
	}
}
