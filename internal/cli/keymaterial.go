package cli

import (
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/ocpkg/ocpkg/internal/keyfile"
)

// resolvePreKey turns a password and an optional set of keyfiles into the
// raw pre-key bytes handed to the manifest/item KDFs. With no keyfiles the
// password's own bytes are used directly, exactly as before keyfiles
// existed. With keyfiles, the password is hashed down to 32 bytes and
// XORed with the keyfiles' combined key (keyfile.Process), so every
// keyfile and the password are each necessary and none alone suffices.
func resolvePreKey(password string, keyfilePaths []string, orderedKeyfiles bool) ([]byte, error) {
	if len(keyfilePaths) == 0 {
		return []byte(password), nil
	}

	kf, err := keyfile.Process(keyfilePaths, orderedKeyfiles, nil)
	if err != nil {
		return nil, fmt.Errorf("processing keyfiles: %w", err)
	}
	defer kf.Close()

	if keyfile.IsDuplicateKeyfileKey(kf.Key) {
		return nil, fmt.Errorf("keyfiles cancel out to zero (duplicate keyfiles under unordered mode); use --keyfile-ordered or distinct keyfiles")
	}

	passwordHash := sha3.Sum256([]byte(password))
	return keyfile.XORWithKey(passwordHash[:], kf.Key), nil
}

// clonePreKey returns a fresh copy of key. occipher.Stretch zeroes its
// preKey argument in place, and the same resolved pre-key is handed out
// to the manifest and to every item, so each consumer needs its own copy.
func clonePreKey(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	return out
}
