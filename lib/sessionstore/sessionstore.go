package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrInvalidName is returned for names that could escape the store,
	// like ones containing path separators.
	ErrInvalidName = errors.New("invalid session name")
	// ErrWrongPassphrase is returned when a sealed session cannot be opened.
	ErrWrongPassphrase = errors.New("wrong passphrase for sealed session")
)

// SessionStore persists session dumps under a name.
type SessionStore interface {
	Save(ctx context.Context, name string, blob []byte) error
	// Load returns ErrNotFound when nothing was saved under `name`.
	Load(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]*$`)

func checkName(name string) error {
	if len(name) > 128 || !validName.MatchString(name) {
		return fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	return nil
}
