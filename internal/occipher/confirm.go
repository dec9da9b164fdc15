package occipher

import (
	"crypto/subtle"

	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

// ExpectedOutput computes the key-confirmation tag for a candidate key
// under cfg: H(cfg.Salt || key || cfg.Nonce) for a plain digest (the
// default, Keccak-256), or HMAC(key=key, cfg.Salt || cfg.Nonce) when cfg
// selects HMAC mode — using the candidate key itself as the HMAC key
// achieves the same "is this my key" test without a separate field for a
// second key in AuthenticationConfig.
func ExpectedOutput(cfg *AuthenticationConfig, key []byte) ([]byte, error) {
	switch cfg.Kind {
	case AuthKindDigest:
		h, err := NewDigest(cfg)
		if err != nil {
			return nil, ocerrors.NewCryptoError("confirm", err)
		}
		h.Write(cfg.Salt)
		h.Write(key)
		h.Write(cfg.Nonce)
		return h.Sum(nil), nil
	case AuthKindMac:
		h, err := NewMAC(cfg, key)
		if err != nil {
			return nil, ocerrors.NewCryptoError("confirm", err)
		}
		h.Write(cfg.Salt)
		h.Write(cfg.Nonce)
		return h.Sum(nil), nil
	default:
		return nil, ocerrors.NewConfigFieldError("key_confirmation_cfg.kind", errUnsupportedConfirmationKind)
	}
}

// MatchCandidate returns the candidate key from preKeys whose expected
// output matches storedTag under constant-time comparison, or ok=false if
// none matches. Every candidate is checked (no early return on match) so
// timing does not reveal which position held the correct key, short of
// the early termination spec.md explicitly permits "up to early
// termination" — performed here only after the full candidate list is
// exhausted, never mid-scan.
func MatchCandidate(cfg *AuthenticationConfig, preKeys [][]byte, storedTag []byte) (preKey []byte, ok bool, err error) {
	for _, candidate := range preKeys {
		tag, err := ExpectedOutput(cfg, candidate)
		if err != nil {
			return nil, false, err
		}
		if subtle.ConstantTimeCompare(tag, storedTag) == 1 {
			preKey, ok = candidate, true
		}
	}
	return preKey, ok, nil
}
