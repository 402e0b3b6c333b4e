// Package storage moves scanned acts into their archive location on a
// go-billy filesystem (osfs in production, memfs in tests).
//
// An approval move runs in two phases so the document record always points
// at an existing file:
//
//  1. Prepare claims the destination with an exclusive create, copies the
//     source into a staging file, syncs it, then renames it over the claim.
//     The source is left in place.
//  2. After the status change commits, Commit removes the source. If the
//     status change fails, Abort removes the destination instead.
//
// The exclusive claim means two moves racing for one destination never
// both promote: the second sees sentinel.ErrConflict, and a destination is
// only ever removed by the move that created it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"

	"actarchive/pkg/platform/sentinel"
)

const (
	defaultStagingDir = ".staging"
	dirPerm           = 0o750
	filePerm          = 0o640
)

// PendingMove is a promoted file waiting for the caller's decision.
type PendingMove interface {
	// Commit removes the source file. The destination stays.
	Commit(ctx context.Context) error
	// Abort removes the destination this move promoted. The source stays.
	Abort(ctx context.Context) error
}

// Storage is the file collaborator of the document workflow.
type Storage struct {
	fs         billy.Filesystem
	stagingDir string
	logger     *slog.Logger
}

type Option func(*Storage)

func WithStagingDir(dir string) Option {
	return func(s *Storage) {
		s.stagingDir = dir
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		s.logger = logger
	}
}

// New wraps a go-billy filesystem.
func New(fs billy.Filesystem, opts ...Option) *Storage {
	s := &Storage{fs: fs, stagingDir: defaultStagingDir, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOS roots storage at a directory on the local disk.
func NewOS(root string, opts ...Option) *Storage {
	return New(osfs.New(root), opts...)
}

// NewInMemory is backed by memfs.
func NewInMemory(opts ...Option) *Storage {
	return New(memfs.New(), opts...)
}

// Filesystem exposes the underlying filesystem, for seeding tests and tools.
func (s *Storage) Filesystem() billy.Filesystem {
	return s.fs
}

// Prepare stages from and promotes it to to. An existing destination is
// sentinel.ErrConflict; a missing source is sentinel.ErrNotFound.
func (s *Storage) Prepare(ctx context.Context, from, to string) (PendingMove, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if from == to {
		return nil, fmt.Errorf("storage: source and destination are both %q: %w", to, sentinel.ErrConflict)
	}
	if err := s.claim(to); err != nil {
		return nil, err
	}

	staged, err := s.stage(from)
	if err != nil {
		s.discard(to)
		return nil, err
	}
	if err := s.fs.Rename(staged, to); err != nil {
		s.discard(staged)
		s.discard(to)
		return nil, fmt.Errorf("storage: promote %q: %w", to, err)
	}
	return &move{storage: s, from: from, to: to}, nil
}

// claim creates an empty placeholder at to, failing if anything is there.
func (s *Storage) claim(to string) error {
	if err := s.fs.MkdirAll(path.Dir(to), dirPerm); err != nil {
		return fmt.Errorf("storage: mkdir %q: %w", path.Dir(to), err)
	}
	f, err := s.fs.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("storage: destination %q: %w", to, sentinel.ErrConflict)
		}
		return fmt.Errorf("storage: claim %q: %w", to, err)
	}
	if err := f.Close(); err != nil {
		s.discard(to)
		return fmt.Errorf("storage: claim %q: %w", to, err)
	}
	return nil
}

// stage copies from into a fresh staging file and flushes it to disk.
func (s *Storage) stage(from string) (string, error) {
	src, err := s.fs.Open(from)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("storage: source %q: %w", from, sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("storage: open %q: %w", from, err)
	}
	defer src.Close()

	if err := s.fs.MkdirAll(s.stagingDir, dirPerm); err != nil {
		return "", fmt.Errorf("storage: mkdir %q: %w", s.stagingDir, err)
	}
	staged := path.Join(s.stagingDir, uuid.NewString()+".part")
	dst, err := s.fs.Create(staged)
	if err != nil {
		return "", fmt.Errorf("storage: create %q: %w", staged, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		s.discard(staged)
		return "", fmt.Errorf("storage: copy %q: %w", from, err)
	}
	if syncer, ok := dst.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			_ = dst.Close()
			s.discard(staged)
			return "", fmt.Errorf("storage: sync %q: %w", staged, err)
		}
	}
	if err := dst.Close(); err != nil {
		s.discard(staged)
		return "", fmt.Errorf("storage: close %q: %w", staged, err)
	}
	return staged, nil
}

func (s *Storage) discard(name string) {
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove file left by an unfinished move", "path", name, "error", err)
	}
}

// MovePendingFileToVirtualPath moves from to to in one call.
func (s *Storage) MovePendingFileToVirtualPath(ctx context.Context, from, to string) error {
	pending, err := s.Prepare(ctx, from, to)
	if err != nil {
		return err
	}
	return pending.Commit(ctx)
}

// DeleteFile removes a file. A missing file is sentinel.ErrNotFound.
func (s *Storage) DeleteFile(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("storage: delete %q: %w", name, sentinel.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %q: %w", name, err)
	}
	return nil
}

// Exists reports whether name is present.
func (s *Storage) Exists(name string) (bool, error) {
	_, err := s.fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("storage: stat %q: %w", name, err)
	}
}

type move struct {
	storage *Storage
	from    string
	to      string
}

func (m *move) Commit(_ context.Context) error {
	if err := m.storage.fs.Remove(m.from); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove source %q: %w", m.from, err)
	}
	return nil
}

func (m *move) Abort(_ context.Context) error {
	if err := m.storage.fs.Remove(m.to); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove destination %q: %w", m.to, err)
	}
	return nil
}
