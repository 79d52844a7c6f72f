package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	dataDirName       = "user_data"
	derivativeDirName = "thumbnails"
)

// ErrIO marks failures of the underlying filesystem.
var ErrIO = errors.New("storage io failure")

// Sandbox is a user's isolated area under the storage root.
type Sandbox struct {
	UserDir       string
	DataDir       string
	DerivativeDir string
}

// ContentPath returns the on-disk location of a content object.
func (b *Sandbox) ContentPath(key string) string {
	return filepath.Join(b.DataDir, filepath.Base(key))
}

// DerivativePath returns the on-disk location of a derivative artifact.
func (b *Sandbox) DerivativePath(ref string) string {
	return filepath.Join(b.DerivativeDir, filepath.Base(ref))
}

// DerivativeName is the artifact name of a file's preview.
func DerivativeName(fileID uint64) string {
	return strconv.FormatUint(fileID, 10) + ".jpg"
}

// LocalStore keeps every user's content under one root directory.
type LocalStore struct {
	root string
}

// Local is the process-wide content store.
var Local *LocalStore

// InitLocal points the content store at root, creating it if needed.
func InitLocal(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: create storage root: %v", ErrIO, err)
	}
	Local = NewLocalStore(root)
	return nil
}

// NewLocalStore returns a store rooted at root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Root returns the storage root.
func (s *LocalStore) Root() string {
	return s.root
}

// SandboxFor computes the sandbox paths of a user without touching the disk.
func (s *LocalStore) SandboxFor(userID uint64) *Sandbox {
	userDir := filepath.Join(s.root, strconv.FormatUint(userID, 10))
	return &Sandbox{
		UserDir:       userDir,
		DataDir:       filepath.Join(userDir, dataDirName),
		DerivativeDir: filepath.Join(userDir, derivativeDirName),
	}
}

// EnsureSandbox creates the user's data and derivative areas if absent.
// Safe to call concurrently and repeatedly.
func (s *LocalStore) EnsureSandbox(userID uint64) (*Sandbox, error) {
	sb := s.SandboxFor(userID)
	for _, dir := range []string{sb.DataDir, sb.DerivativeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: ensure sandbox %d: %v", ErrIO, userID, err)
		}
	}
	return sb, nil
}

// RemoveSandbox deletes a user's whole area.
func (s *LocalStore) RemoveSandbox(userID uint64) error {
	if err := os.RemoveAll(s.SandboxFor(userID).UserDir); err != nil {
		return fmt.Errorf("%w: remove sandbox %d: %v", ErrIO, userID, err)
	}
	return nil
}
