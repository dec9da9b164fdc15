package occipher

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

func xchacha20Cfg(nonce []byte) *CipherConfig {
	return &CipherConfig{Kind: CipherKindStream, Name: "XChaCha20", KeySizeBits: 256, IVOrNonce: nonce}
}

func blake2bAuthCfg() *AuthenticationConfig {
	return &AuthenticationConfig{Kind: AuthKindMac, Name: "Keyed-BLAKE2b-512", KeySizeBits: 512}
}

func TestEtM_RoundTrip(t *testing.T) {
	nonce := bytes.Repeat([]byte{0x01}, 24)
	cipherCfg := xchacha20Cfg(nonce)
	authCfg := blake2bAuthCfg()
	cipherKey := bytes.Repeat([]byte{0x02}, 32)
	macKey := bytes.Repeat([]byte{0x03}, 64)
	meta := []byte("meta")

	enc, err := NewEncryptor(cipherCfg, authCfg, cipherKey, macKey)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ct1, err := enc.Encrypt(plaintext[:20])
	if err != nil {
		t.Fatal(err)
	}
	ct2, err := enc.Encrypt(plaintext[20:])
	if err != nil {
		t.Fatal(err)
	}
	finalCt, tag, err := enc.FinalizeEncrypt(meta)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext := append(append(append([]byte{}, ct1...), ct2...), finalCt...)

	dec, err := NewDecryptor(cipherCfg, authCfg, cipherKey, macKey)
	if err != nil {
		t.Fatalf("NewDecryptor: %v", err)
	}
	pt1, err := dec.Decrypt(ciphertext[:15])
	if err != nil {
		t.Fatal(err)
	}
	pt2, err := dec.Decrypt(ciphertext[15:])
	if err != nil {
		t.Fatal(err)
	}
	finalPt, err := dec.FinalizeDecrypt(meta, tag)
	if err != nil {
		t.Fatalf("FinalizeDecrypt: %v", err)
	}
	got := append(append(append([]byte{}, pt1...), pt2...), finalPt...)

	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestEtM_TamperedCiphertextFailsAuth(t *testing.T) {
	nonce := bytes.Repeat([]byte{0x04}, 24)
	cipherCfg := xchacha20Cfg(nonce)
	authCfg := blake2bAuthCfg()
	cipherKey := bytes.Repeat([]byte{0x05}, 32)
	macKey := bytes.Repeat([]byte{0x06}, 64)

	enc, err := NewEncryptor(cipherCfg, authCfg, cipherKey, macKey)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("authenticate this data please")
	ct, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	finalCt, tag, err := enc.FinalizeEncrypt(nil)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext := append(append([]byte{}, ct...), finalCt...)
	ciphertext[0] ^= 0xFF

	dec, err := NewDecryptor(cipherCfg, authCfg, cipherKey, macKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Decrypt(ciphertext); err != nil {
		t.Fatal(err)
	}
	if _, err := dec.FinalizeDecrypt(nil, tag); !errors.Is(err, ocerrors.ErrAuth) {
		t.Errorf("expected ErrAuth for tampered ciphertext, got %v", err)
	}
}

func TestEtM_WrongTagFailsAuth(t *testing.T) {
	nonce := bytes.Repeat([]byte{0x07}, 24)
	cipherCfg := xchacha20Cfg(nonce)
	authCfg := blake2bAuthCfg()
	cipherKey := bytes.Repeat([]byte{0x08}, 32)
	macKey := bytes.Repeat([]byte{0x09}, 64)

	enc, err := NewEncryptor(cipherCfg, authCfg, cipherKey, macKey)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := enc.Encrypt([]byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	_ = ct
	_, _, err = enc.FinalizeEncrypt(nil)
	if err != nil {
		t.Fatal(err)
	}

	dec, err := NewDecryptor(cipherCfg, authCfg, cipherKey, macKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Decrypt(ct); err != nil {
		t.Fatal(err)
	}
	wrongTag := bytes.Repeat([]byte{0xAA}, 64)
	if _, err := dec.FinalizeDecrypt(nil, wrongTag); !errors.Is(err, ocerrors.ErrAuth) {
		t.Errorf("expected ErrAuth for wrong tag, got %v", err)
	}
}

func TestStretch_DeterministicAndZeroesPreKey(t *testing.T) {
	cfg := &KeyDerivationConfig{
		Name:      KDFScrypt,
		Salt:      []byte("fixed-salt-16byt"),
		ScryptCfg: &ScryptConfig{IterPower: 5, R: 1, P: 1},
	}

	preKey1 := []byte("a shared pre-key")
	cipherKey1, macKey1, err := Stretch(preKey1, 32, 64, cfg)
	if err != nil {
		t.Fatalf("Stretch: %v", err)
	}

	for i, b := range preKey1 {
		if b != 0 {
			t.Fatalf("preKey byte %d not zeroed: %x", i, b)
		}
	}

	preKey2 := []byte("a shared pre-key")
	cipherKey2, macKey2, err := Stretch(preKey2, 32, 64, cfg)
	if err != nil {
		t.Fatalf("Stretch (second call): %v", err)
	}

	if !bytes.Equal(cipherKey1, cipherKey2) {
		t.Error("expected identical cipher keys for identical pre-key/salt/cost")
	}
	if !bytes.Equal(macKey1, macKey2) {
		t.Error("expected identical MAC keys for identical pre-key/salt/cost")
	}
}

func TestStretch_DifferentSaltDifferentKeys(t *testing.T) {
	cfgA := &KeyDerivationConfig{Name: KDFScrypt, Salt: []byte("salt-aaaaaaaaaaa"), ScryptCfg: &ScryptConfig{IterPower: 5, R: 1, P: 1}}
	cfgB := &KeyDerivationConfig{Name: KDFScrypt, Salt: []byte("salt-bbbbbbbbbbb"), ScryptCfg: &ScryptConfig{IterPower: 5, R: 1, P: 1}}

	keyA, _, err := Stretch([]byte("same pre-key material"), 32, 32, cfgA)
	if err != nil {
		t.Fatal(err)
	}
	keyB, _, err := Stretch([]byte("same pre-key material"), 32, 32, cfgB)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(keyA, keyB) {
		t.Error("expected different salts to produce different keys")
	}
}

func TestExpectedOutputAndMatchCandidate(t *testing.T) {
	cfg := &AuthenticationConfig{Kind: AuthKindDigest, Name: "Keccak-256", Salt: []byte("salt1234salt1234"), Nonce: []byte("nonce123nonce123")}

	correctKey := []byte("the correct pre-key")
	expected, err := ExpectedOutput(cfg, correctKey)
	if err != nil {
		t.Fatalf("ExpectedOutput: %v", err)
	}

	candidates := [][]byte{
		[]byte("wrong-key-one"),
		[]byte("wrong-key-two"),
		correctKey,
	}
	matched, ok, err := MatchCandidate(cfg, candidates, expected)
	if err != nil {
		t.Fatalf("MatchCandidate: %v", err)
	}
	if !ok {
		t.Fatal("expected a match among candidates")
	}
	if !bytes.Equal(matched, correctKey) {
		t.Errorf("matched wrong candidate: got %q", matched)
	}

	_, ok, err = MatchCandidate(cfg, [][]byte{[]byte("nope"), []byte("still nope")}, expected)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no match among incorrect candidates")
	}
}

func TestScryptTierForEntropy(t *testing.T) {
	weak := ScryptTierForEntropy("password")
	if weak != DefaultScryptStrong {
		t.Errorf("expected DefaultScryptStrong for a weak passphrase, got %+v", weak)
	}

	strong := ScryptTierForEntropy("")
	if strong != DefaultScryptStrong {
		t.Errorf("expected DefaultScryptStrong for empty (treated as raw key material), got %+v", strong)
	}
}

func TestCipherConfigValidate(t *testing.T) {
	good := xchacha20Cfg(bytes.Repeat([]byte{0}, 24))
	if err := good.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	badNonce := xchacha20Cfg(bytes.Repeat([]byte{0}, 12))
	if err := badNonce.Validate(); err == nil {
		t.Error("expected error for wrong nonce length")
	}

	unknown := &CipherConfig{Kind: CipherKindStream, Name: "NotACipher", KeySizeBits: 256, IVOrNonce: bytes.Repeat([]byte{0}, 24)}
	if err := unknown.Validate(); err == nil {
		t.Error("expected error for unknown cipher name")
	}
}
