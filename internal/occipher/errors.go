package occipher

import "errors"

var (
	errAlreadyFinalized    = errors.New("occipher: already finalized")
	errTruncatedCiphertext = errors.New("occipher: ciphertext truncated before final block")
	errBadPadding          = errors.New("occipher: invalid PKCS7 padding")
	errUnknownKDF          = errors.New("occipher: unknown KDF")
	errUnsupportedConfirmationKind = errors.New("occipher: key confirmation kind must be Mac or Digest")
	errPoly1305KeySize             = errors.New("occipher: Poly1305 requires a 32-byte key")
)
