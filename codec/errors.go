package codec

import "errors"

var (
	// ErrCodec is the sentinel wrapped by every compression/decompression
	// failure returned from this package.
	ErrCodec = errors.New("codec error")

	// ErrEncryption is the sentinel wrapped by every encryption/decryption
	// failure returned from this package.
	ErrEncryption = errors.New("encryption error")
)
