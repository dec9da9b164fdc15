package occipher

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

// UM1Curve is the named curve used for UM1-hybrid key establishment.
// Elliptic-curve arithmetic itself is an external collaborator per
// spec.md §1 ("out of scope"); this package only drives stdlib crypto/ecdh,
// since no ecosystem UM1/ECDH package appears anywhere in the corpus (see
// DESIGN.md).
var UM1Curve = ecdh.P256()

// UM1GenerateEphemeral produces a one-shot ephemeral key pair and the
// sender-side UM1 shared secret: the two ECDH terms
// ECDH(ephemeral_priv, recipient_pub) and ECDH(sender_static_priv,
// recipient_pub) are concatenated and expanded via HKDF-SHA3-256 into
// preKeyLen bytes of pre-key material, mirroring the teacher's
// NewHKDFStream subkey-expansion pattern (internal/crypto/kdf.go).
func UM1GenerateEphemeral(senderStatic *ecdh.PrivateKey, recipientPub *ecdh.PublicKey, preKeyLen int) (ephemeralPub *ecdh.PublicKey, preKey []byte, err error) {
	ephemeral, err := UM1Curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, ocerrors.NewCryptoError("um1", err)
	}

	s1, err := ephemeral.ECDH(recipientPub)
	if err != nil {
		return nil, nil, ocerrors.NewCryptoError("um1", err)
	}
	s2, err := senderStatic.ECDH(recipientPub)
	if err != nil {
		return nil, nil, ocerrors.NewCryptoError("um1", err)
	}

	preKey, err = um1Expand(s1, s2, preKeyLen)
	if err != nil {
		return nil, nil, err
	}
	return ephemeral.PublicKey(), preKey, nil
}

// UM1DeriveShared reconstructs the UM1 shared pre-key on the recipient
// side from its own static private key, the sender's static public key,
// and the ephemeral public key carried in the manifest header.
func UM1DeriveShared(recipientPriv *ecdh.PrivateKey, senderStaticPub, ephemeralPub *ecdh.PublicKey, preKeyLen int) ([]byte, error) {
	s1, err := recipientPriv.ECDH(ephemeralPub)
	if err != nil {
		return nil, ocerrors.NewCryptoError("um1", err)
	}
	s2, err := recipientPriv.ECDH(senderStaticPub)
	if err != nil {
		return nil, ocerrors.NewCryptoError("um1", err)
	}
	return um1Expand(s1, s2, preKeyLen)
}

// UM1MatchCandidates tries the Cartesian product of candidate sender
// public keys and recipient private keys against the stored key
// confirmation tag, per spec §4.3 ("matching is tried over the Cartesian
// product of provided sender/recipient key lists, with early termination
// on match"). Unlike MatchCandidate's symmetric case, early termination is
// appropriate here since a match involves an expensive ECDH+HKDF per
// candidate pair rather than a cheap hash.
func UM1MatchCandidates(confirmCfg *AuthenticationConfig, senderPubs []*ecdh.PublicKey, recipientPrivs []*ecdh.PrivateKey, ephemeralPub *ecdh.PublicKey, preKeyLen int, storedTag []byte) (preKey []byte, ok bool, err error) {
	for _, recipientPriv := range recipientPrivs {
		for _, senderPub := range senderPubs {
			candidate, err := UM1DeriveShared(recipientPriv, senderPub, ephemeralPub, preKeyLen)
			if err != nil {
				return nil, false, err
			}
			tag, err := ExpectedOutput(confirmCfg, candidate)
			if err != nil {
				return nil, false, err
			}
			if subtle.ConstantTimeCompare(tag, storedTag) == 1 {
				return candidate, true, nil
			}
			SecureZero(candidate)
		}
	}
	return nil, false, nil
}

func um1Expand(s1, s2 []byte, preKeyLen int) ([]byte, error) {
	combined := append(append([]byte{}, s1...), s2...)
	defer SecureZero(combined)

	reader := hkdf.New(sha3.New256, combined, nil, []byte("ocpkg-um1-hybrid"))
	preKey := make([]byte, preKeyLen)
	if _, err := io.ReadFull(reader, preKey); err != nil {
		return nil, ocerrors.NewCryptoError("um1", err)
	}
	return preKey, nil
}
