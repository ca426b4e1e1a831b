// Package codec implements the block encryption layer: compress-then-seal
// on the way out, open-then-decompress on the way in.
package codec

import "errors"

// DefaultCodecID is the codec used when no explicit --codec flag is given.
// The codec id is not recorded in the bucket.
const DefaultCodecID = "aes-siv"

// IntegrityError is returned when an AEAD fails to authenticate a ciphertext,
// whether from corruption, truncation, or a foreign ciphertext substituted
// for the real one.
var IntegrityError = errors.New("codec: integrity check failed")

// Codec seals and opens block bodies under a password-derived key. An
// implementation owns its own key derivation and nonce handling; callers
// never see cipher-specific nonce sizes.
type Codec interface {
	// ID returns the stable identifier this codec is registered under
	// (informational only; the wire format carries no codec tag,
	// per spec — the bucket-wide codec choice is an operator decision).
	ID() string

	// Seal compresses plaintext and authenticates-and-encrypts it under a key
	// derived from password, using nonce to make the seal unique. nonce is
	// always the 16 raw bytes backing the block's 32-hex-character nonce;
	// implementations reduce it to their own cipher's native nonce size.
	Seal(password, nonce, plaintext []byte) ([]byte, error)

	// Open is Seal's inverse. It returns IntegrityError (wrapped) when
	// authentication fails.
	Open(password, nonce, ciphertext []byte) ([]byte, error)
}

// Constructor builds a fresh Codec instance. Codecs are stateless with
// respect to any single password; the constructor exists so the registry can
// hand back independent values without shared mutable state.
type Constructor func() Codec

var registry = map[string]Constructor{}

// Register adds a codec implementation to the registry. Called from each
// implementation's init().
func Register(id string, ctor Constructor) {
	registry[id] = ctor
}

// Get resolves a codec by its stable identifier.
func Get(id string) (Codec, error) {
	ctor, ok := registry[id]
	if !ok {
		return nil, errUnknownCodec(id)
	}
	return ctor(), nil
}

type errUnknownCodec string

func (e errUnknownCodec) Error() string {
	return "codec: unknown codec id " + string(e)
}

// Block owns the three fields spec'd for the codec layer: the raw password,
// the per-block nonce, and the buffer being transformed in place.
type Block struct {
	Password []byte
	Nonce    []byte
	Buffer   []byte
}

// Encrypt seals Buffer under Password/Nonce using codec, replacing Buffer
// with the ciphertext.
func (b *Block) Encrypt(c Codec) error {
	out, err := c.Seal(b.Password, b.Nonce, b.Buffer)
	if err != nil {
		return err
	}
	b.Buffer = out
	return nil
}

// Decrypt opens Buffer under Password/Nonce using codec, replacing Buffer
// with the plaintext. Returns IntegrityError on authentication failure.
func (b *Block) Decrypt(c Codec) error {
	out, err := c.Open(b.Password, b.Nonce, b.Buffer)
	if err != nil {
		return err
	}
	b.Buffer = out
	return nil
}
