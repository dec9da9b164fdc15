package occipher

import (
	"github.com/Picocrypt/zxcvbn-go"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/ocpkg/ocpkg/internal/obslog"
	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

// Stretch derives cipherKeyLen+macKeyLen bytes from preKey||cfg.Salt via
// the named KDF and splits the result into a cipher key (first
// cipherKeyLen bytes) and a MAC key (remainder). preKey is zeroed on
// return; the caller owns the returned key material and must zero it in
// turn once its pipeline finalizes.
func Stretch(preKey []byte, cipherKeyLen, macKeyLen int, cfg *KeyDerivationConfig) (cipherKey, macKey []byte, err error) {
	defer SecureZero(preKey)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var derived []byte
	total := cipherKeyLen + macKeyLen

	switch cfg.Name {
	case KDFScrypt:
		derived, err = scrypt.Key(preKey, cfg.Salt, 1<<cfg.ScryptCfg.IterPower, cfg.ScryptCfg.R, cfg.ScryptCfg.P, total)
		if err != nil {
			return nil, nil, ocerrors.NewCryptoError("stretch", err)
		}
	case KDFPBKDF2:
		hashFn, err := NewHashFunc(cfg.PBKDF2Cfg.InnerHashName)
		if err != nil {
			return nil, nil, ocerrors.NewCryptoError("stretch", err)
		}
		derived = pbkdf2.Key(preKey, cfg.Salt, cfg.PBKDF2Cfg.Iterations, total, hashFn)
	default:
		return nil, nil, ocerrors.NewConfigFieldError("kdf.name", errUnknownKDF)
	}

	cipherKey = make([]byte, cipherKeyLen)
	macKey = make([]byte, macKeyLen)
	copy(cipherKey, derived[:cipherKeyLen])
	copy(macKey, derived[cipherKeyLen:])

	SecureZero(derived)

	obslog.Debug("stretched pre-key",
		obslog.String("kdf", string(cfg.Name)),
		obslog.Int("cipher_key_len", cipherKeyLen),
		obslog.Int("mac_key_len", macKeyLen))
	return cipherKey, macKey, nil
}

// ScryptTierForEntropy picks between the low-entropy and normal scrypt
// parameter tiers using zxcvbn's password-strength score (0-4), per the
// package policy in spec §4.2: weak, guessable pre-keys need the stronger
// (slower) tier to compensate for their small search space.
func ScryptTierForEntropy(candidatePassphrase string) ScryptConfig {
	score := zxcvbn.PasswordStrength(candidatePassphrase, nil).Score
	if score <= 2 {
		return DefaultScryptStrong
	}
	return DefaultScryptNormal
}
