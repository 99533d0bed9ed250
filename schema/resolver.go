package schema

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/oy3o/protostream/descriptor"
)

// Source is the text of one schema file.
type Source struct {
	Name string
	Text string
}

// Resolver parses a batch of files and links them into a pool in a second
// pass, so files of one batch may import each other in any order.
type Resolver struct {
	pool   *descriptor.Pool
	opts   []Option
	logger zerolog.Logger
}

// NewResolver returns a resolver that registers into pool.
func NewResolver(pool *descriptor.Pool, opts ...Option) *Resolver {
	return &Resolver{pool: pool, opts: opts, logger: newOptions(opts).logger}
}

// Pool returns the pool files are registered with.
func (r *Resolver) Pool() *descriptor.Pool { return r.pool }

// Resolve parses every source and registers them as one batch. Nothing is
// registered when any file fails.
func (r *Resolver) Resolve(sources ...Source) ([]*descriptor.FileDescriptor, error) {
	files, err := r.ParseAll(sources...)
	if err != nil {
		return nil, err
	}
	return files, r.Register(files...)
}

// ParseAll parses every source without registering anything.
func (r *Resolver) ParseAll(sources ...Source) ([]*descriptor.FileDescriptor, error) {
	files := make([]*descriptor.FileDescriptor, 0, len(sources))
	for _, src := range sources {
		f, err := Parse(src.Name, src.Text, r.opts...)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Register links files into the pool as one batch.
func (r *Resolver) Register(files ...*descriptor.FileDescriptor) error {
	if err := r.pool.Register(files...); err != nil {
		r.logger.Warn().Err(err).Int("files", len(files)).Msg("schema batch rejected")
		return err
	}
	for _, f := range files {
		r.logger.Debug().Str("file", f.Name).Str("package", f.Package).Msg("schema registered")
	}
	return nil
}

// Load reads the named files from fs, follows their imports through fs and
// registers everything read as one batch. Imports already in the pool are
// not read again; imports missing from both are reported as unresolved.
func (r *Resolver) Load(fs afero.Fs, names ...string) ([]*descriptor.FileDescriptor, error) {
	files, err := r.Collect(fs, names...)
	if err != nil {
		return nil, err
	}
	return files, r.Register(files...)
}

// Collect reads and parses the named files and the imports reachable from
// them, skipping files the pool already holds. Nothing is registered.
func (r *Resolver) Collect(fs afero.Fs, names ...string) ([]*descriptor.FileDescriptor, error) {
	var files []*descriptor.FileDescriptor
	seen := make(map[string]bool, len(names))
	roots := make(map[string]bool, len(names))
	for _, name := range names {
		roots[name] = true
	}
	queue := append([]string(nil), names...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := r.pool.File(name); ok {
			continue
		}

		data, err := afero.ReadFile(fs, name)
		if errors.Is(err, os.ErrNotExist) && !roots[name] {
			r.logger.Debug().Str("file", name).Msg("import not found on filesystem")
			continue
		}
		if err != nil {
			return nil, err
		}
		f, err := Parse(name, string(data), r.opts...)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		queue = append(queue, f.Imports()...)
	}
	return files, nil
}
