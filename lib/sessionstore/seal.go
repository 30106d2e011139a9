package sessionstore

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var sealMagic = []byte("lmss1")

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

func deriveKey(passphrase string, salt []byte) (*[keySize]byte, error) {
	derived, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, err
	}
	var key [keySize]byte
	copy(key[:], derived)
	return &key, nil
}

// seal encrypts a blob as magic | salt | nonce | secretbox.
func seal(passphrase string, blob []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	_, err := io.ReadFull(rand.Reader, salt)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	_, err = io.ReadFull(rand.Reader, nonce[:])
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealMagic)+saltSize+nonceSize+len(blob)+secretbox.Overhead)
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, blob, &nonce, key), nil
}

func isSealed(contents []byte) bool {
	return bytes.HasPrefix(contents, sealMagic)
}

func open(passphrase string, contents []byte) ([]byte, error) {
	rest := contents[len(sealMagic):]
	if len(rest) < saltSize+nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: sealed session is truncated", ErrWrongPassphrase)
	}
	salt := rest[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], rest[saltSize:saltSize+nonceSize])
	box := rest[saltSize+nonceSize:]

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	blob, ok := secretbox.Open(nil, box, &nonce, key)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	return blob, nil
}

// sealBlob seals a blob when a passphrase is set and returns it untouched
// otherwise.
func sealBlob(passphrase string, blob []byte) ([]byte, error) {
	if passphrase == "" {
		return blob, nil
	}
	return seal(passphrase, blob)
}

// openBlob reverses sealBlob. Unsealed contents pass through, sealed ones
// need the passphrase they were sealed with.
func openBlob(passphrase string, contents []byte) ([]byte, error) {
	if !isSealed(contents) {
		return contents, nil
	}
	if passphrase == "" {
		return nil, ErrWrongPassphrase
	}
	return open(passphrase, contents)
}
