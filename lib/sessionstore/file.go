package sessionstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	devenv "snulms/dev/env"
)

// FileStore keeps every session in its own file. When a passphrase is set
// the files are sealed with a key derived from it.
type FileStore struct {
	dir        string
	passphrase string
}

// NewFileStore creates `dir` if needed, it may start with <dev_state>.
func NewFileStore(dir, passphrase string) (*FileStore, error) {
	dir, err := devenv.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, passphrase: passphrase}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".session")
}

func (s *FileStore) Save(ctx context.Context, name string, blob []byte) error {
	err := checkName(name)
	if err != nil {
		return err
	}
	contents, err := sealBlob(s.passphrase, blob)
	if err != nil {
		return err
	}

	// write then rename so a crash never leaves half a session behind
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(contents)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(name))
}

func (s *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	err := checkName(name)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return openBlob(s.passphrase, contents)
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	err := checkName(name)
	if err != nil {
		return err
	}
	err = os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
