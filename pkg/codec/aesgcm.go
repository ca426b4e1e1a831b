package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const aesGCMCodecID = "aes-gcm"

func init() {
	Register(aesGCMCodecID, newAESGCM)
}

// aesGCM is the alternate codec: stdlib AES-256-GCM. Ciphertext layout
// differs structurally from the SIV codec (GCM tag placement, no SIV
// derivation step), so the two are never mistakable for one another.
type aesGCM struct{}

func newAESGCM() Codec { return aesGCM{} }

func (aesGCM) ID() string { return aesGCMCodecID }

func deriveGCMKey(password []byte) [32]byte {
	return sha256.Sum256(password)
}

// compressNonce maps the block's 16-byte nonce down to GCM's 96-bit nonce
// via a cryptographic hash, per spec §6.
func compressNonce(nonce []byte) []byte {
	sum := blake2b.Sum256(nonce)
	return sum[:12]
}

func newGCM(password []byte) (cipher.AEAD, error) {
	key := deriveGCMKey(password)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: aes-gcm: %w", err)
	}
	return cipher.NewGCM(block)
}

func (aesGCM) Seal(password, nonce, plaintext []byte) ([]byte, error) {
	compressed, err := compress(plaintext)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(password)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, compressNonce(nonce), compressed, nil), nil
}

func (aesGCM) Open(password, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(password)
	if err != nil {
		return nil, err
	}
	compressed, err := aead.Open(nil, compressNonce(nonce), ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", IntegrityError, err)
	}
	return decompress(compressed)
}
