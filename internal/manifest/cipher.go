package manifest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ocpkg/ocpkg/internal/occipher"
)

// EncryptManifest is C5: the same Encrypt-then-MAC construction as C1
// (occipher.EtM), specialised for the manifest. The MAC's metadata clause
// is the serialised scheme_config with AuthenticationVerifiedOutput
// blanked (spec §4.5: "MAC covers ciphertext || u32_LE(len) ||
// serialised(manifest_crypto_cfg_without_auth_tag)").
func EncryptManifest(m *Manifest, cryptoCfg *CryptoConfig, cipherKey, macKey []byte) (ciphertext, obfuscatedLenPrefix, tag []byte, err error) {
	plaintext, err := EncodeManifest(m)
	if err != nil {
		return nil, nil, nil, err
	}

	etm, err := occipher.NewEncryptor(&cryptoCfg.CipherCfg, &cryptoCfg.AuthenticationCfg, cipherKey, macKey)
	if err != nil {
		return nil, nil, nil, err
	}

	head, err := etm.Encrypt(plaintext)
	if err != nil {
		return nil, nil, nil, err
	}

	meta, err := configWithoutAuthTag(cryptoCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	tail, tag, err := etm.FinalizeEncrypt(meta)
	if err != nil {
		return nil, nil, nil, err
	}

	ciphertext = append(head, tail...)
	obfuscatedLenPrefix = obfuscateLengthPrefix(uint32(len(ciphertext)), macKey)
	return ciphertext, obfuscatedLenPrefix, tag, nil
}

// DecryptManifest is C5's reader-side dual: it decrypts the manifest
// ciphertext and verifies the manifest's MAC tag. It does not handle the
// length prefix; the reader reverses that obfuscation beforehand (see
// DeobfuscateLengthPrefix) to know how many ciphertext bytes to pass in.
func DecryptManifest(ciphertext []byte, cryptoCfg *CryptoConfig, cipherKey, macKey, expectedTag []byte) (*Manifest, error) {
	etm, err := occipher.NewDecryptor(&cryptoCfg.CipherCfg, &cryptoCfg.AuthenticationCfg, cipherKey, macKey)
	if err != nil {
		return nil, err
	}

	head, err := etm.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}

	meta, err := configWithoutAuthTag(cryptoCfg)
	if err != nil {
		return nil, err
	}
	tail, err := etm.FinalizeDecrypt(meta, expectedTag)
	if err != nil {
		return nil, err
	}

	plaintext := append(head, tail...)
	return DecodeManifest(plaintext)
}

// obfuscateLengthPrefix XORs the little-endian manifest-ciphertext length
// with the first 4 bytes of the MAC key (spec §4.5): a light obfuscation
// of the manifest's size on the wire, not a confidentiality mechanism.
func obfuscateLengthPrefix(length uint32, macKey []byte) []byte {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], length)
	out := make([]byte, 4)
	for i := range out {
		out[i] = raw[i] ^ macKey[i]
	}
	return out
}

// DeobfuscateLengthPrefix reverses obfuscateLengthPrefix, used by the
// reader before it knows manifest_ct_len.
func DeobfuscateLengthPrefix(obfuscated, macKey []byte) (uint32, error) {
	if len(obfuscated) != 4 || len(macKey) < 4 {
		return 0, fmt.Errorf("manifest: malformed length prefix")
	}
	var raw [4]byte
	for i := range raw {
		raw[i] = obfuscated[i] ^ macKey[i]
	}
	return binary.LittleEndian.Uint32(raw[:]), nil
}

// configWithoutAuthTag serialises cryptoCfg with AuthenticationVerifiedOutput
// blanked, for use as the EtM metadata clause on both encrypt and decrypt
// (it must be byte-identical on both sides since it's fed into the MAC).
func configWithoutAuthTag(cryptoCfg *CryptoConfig) ([]byte, error) {
	clone := *cryptoCfg
	clone.AuthenticationVerifiedOutput = nil
	return json.Marshal(&clone)
}
