package compat

import (
	"bytes"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/oy3o/protostream/config"
)

// Store keeps the lock file on a filesystem.
type Store struct {
	fs     afero.Fs
	path   string
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for lock events.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a store for the lock at path. An empty path uses the
// default lock file name.
func NewStore(fs afero.Fs, path string, opts ...Option) *Store {
	if path == "" {
		path = config.Default().LockFile.String
	}
	s := &Store{fs: fs, path: path, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromOptions returns a store for the lock file named in o.
func NewStoreFromOptions(fs afero.Fs, o config.Options, opts ...Option) *Store {
	return NewStore(fs, o.LockFile.String, opts...)
}

func (s *Store) Path() string { return s.path }

// Load reads the lock. ok is false when no lock exists yet.
func (s *Store) Load() (l Lock, ok bool, err error) {
	f, err := s.fs.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Lock{}, false, nil
	}
	if err != nil {
		return Lock{}, false, err
	}
	defer f.Close()
	l, err = ReadLock(f)
	if err != nil {
		return Lock{}, false, err
	}
	return l, true, nil
}

// Save replaces the lock with l.
func (s *Store) Save(l Lock) error {
	var buf bytes.Buffer
	if err := WriteLock(&buf, l); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}

// Commit makes next the new baseline. Without a lock it is written as is;
// otherwise it must pass Check against the current lock, and the lock is
// left untouched when it does not.
func (s *Store) Commit(next Lock) error {
	prev, ok, err := s.Load()
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Info().Str("lock", s.path).Int("files", len(next.Definitions)).Msg("initializing schema lock")
		return s.Save(next)
	}
	if err := Compare(prev, next); err != nil {
		var ce *CompatibilityError
		if errors.As(err, &ce) {
			for _, v := range ce.Violations {
				s.logger.Warn().Str("rule", string(v.Rule)).Str("type", v.Type).Str("field", v.Field).Int32("number", v.Number).Msg(v.Msg)
			}
		}
		return err
	}
	s.logger.Debug().Str("lock", s.path).Msg("schema lock updated")
	return s.Save(next)
}
