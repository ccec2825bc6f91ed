package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations is the default PBKDF2-HMAC-SHA256 iteration count
// used when deriving a key from a password.
const DefaultKDFIterations = 10000

// Algorithm identifies a supported symmetric encryption algorithm.
type Algorithm string

// Aes256 is the only supported algorithm.
const Aes256 Algorithm = "aes-256-cbc"

// EncryptionOptions selects an algorithm plus a key, with an optional
// password to derive the key from instead.
type EncryptionOptions struct {
	Algorithm Algorithm
	Key       []byte

	// Password, when Key is empty, is run through PBKDF2-HMAC-SHA256 with
	// Salt and Iterations to derive a 32-byte key.
	Password   string
	Salt       []byte
	Iterations int
}

// ResolveKey returns the 32-byte AES-256 key for opts, deriving it from
// Password via PBKDF2 if Key isn't set directly.
func ResolveKey(opts EncryptionOptions) ([]byte, error) {
	if len(opts.Key) == 32 {
		return opts.Key, nil
	}
	if len(opts.Key) > 0 {
		return nil, fmt.Errorf("codec: %w: encryption key must be 32 bytes for AES-256, got %d", ErrEncryption, len(opts.Key))
	}
	if opts.Password == "" {
		return nil, fmt.Errorf("codec: %w: no key or password supplied", ErrEncryption)
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	salt := opts.Salt
	if len(salt) == 0 {
		// A deterministic salt derived from the password keeps key
		// derivation reproducible across processes when the caller hasn't
		// supplied one explicitly; callers needing per-record salts should
		// set Salt themselves.
		sum := sha256.Sum256([]byte("cachekit-default-salt:" + opts.Password))
		salt = sum[:16]
	}
	return pbkdf2.Key([]byte(opts.Password), salt, iterations, 32, sha256.New), nil
}

// Encrypt AES-256-CBC encrypts plaintext under key, padding with PKCS#7.
//
// A fixed all-zero IV keeps compatibility with data persisted by the
// legacy on-disk format. It leaks equality of plaintexts; switching to
// per-record random IVs would require migrating already-stored items.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: %w: %v", ErrEncryption, err)
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv := make([]byte, block.BlockSize())

	out := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: %w: %v", ErrEncryption, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("codec: %w: ciphertext is not a multiple of the block size", ErrEncryption)
	}
	iv := make([]byte, block.BlockSize())

	out := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(out, ciphertext)

	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("codec: %w: empty padded data", ErrEncryption)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("codec: %w: invalid padding", ErrEncryption)
	}
	return data[:len(data)-padLen], nil
}
