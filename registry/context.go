// Package registry binds schema types to marshallers and drives encoding and
// decoding through them: plain messages, the self-describing wrapped form,
// dynamic messages, containers and the canonical JSON projection.
package registry

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream"
	"github.com/oy3o/protostream/annotation"
	"github.com/oy3o/protostream/config"
	"github.com/oy3o/protostream/descriptor"
	"github.com/oy3o/protostream/schema"
)

// Option configures a Context.
type Option func(*Context)

// WithOptions sets the tunables of the context.
func WithOptions(o config.Options) Option {
	return func(c *Context) { c.opts = config.Default().Apply(o) }
}

// WithLogger sets the logger used for registration events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithAnnotations sets the annotation configuration used to parse schemas.
func WithAnnotations(cfg *annotation.Config) Option {
	return func(c *Context) { c.annotations = cfg }
}

// Context owns a descriptor pool and the marshallers bound to its types.
//
// Registration is expected to finish before values are encoded. Encoding
// and decoding are safe for concurrent use.
type Context struct {
	opts        config.Options
	logger      zerolog.Logger
	annotations *annotation.Config

	pool     *descriptor.Pool
	resolver *schema.Resolver

	mu     sync.RWMutex
	byName map[string]Marshaller
	byID   map[int64]string

	byType    *xsync.Map[reflect.Type, Marshaller]
	delegates *xsync.Map[string, *delegate]
}

// delegate is the per-type state used while encoding and decoding, built on
// first use and dropped whenever registration changes.
type delegate struct {
	name   string
	id     null.Int
	msg    *descriptor.Descriptor
	enum   *descriptor.EnumDescriptor
	m      Marshaller
	fields []*descriptor.FieldDescriptor // message fields by number
}

// NewContext returns a context whose pool already holds the wrapping schema.
func NewContext(opts ...Option) *Context {
	c := &Context{
		opts:      config.Default(),
		logger:    zerolog.Nop(),
		pool:      descriptor.NewPool(),
		byName:    make(map[string]Marshaller),
		byID:      make(map[int64]string),
		byType:    xsync.NewMap[reflect.Type, Marshaller](),
		delegates: xsync.NewMap[string, *delegate](),
	}
	for _, opt := range opts {
		opt(c)
	}
	schemaOpts := []schema.Option{schema.WithLogger(c.logger)}
	if c.annotations != nil {
		schemaOpts = append(schemaOpts, schema.WithAnnotations(c.annotations))
	}
	c.resolver = schema.NewResolver(c.pool, schemaOpts...)
	if err := c.RegisterSchema(WrappingFile, wrappingSchema); err != nil {
		panic(err)
	}
	return c
}

// Pool returns the descriptors known to the context.
func (c *Context) Pool() *descriptor.Pool { return c.pool }

// Options returns the effective tunables.
func (c *Context) Options() config.Options { return c.opts }

// RegisterSchema parses one schema file and registers it.
func (c *Context) RegisterSchema(fileName, src string) error {
	return c.RegisterSchemas(schema.Source{Name: fileName, Text: src})
}

// RegisterSchemas parses and registers files as one batch. Files of the
// batch may import each other; nothing is registered when any of them fails.
func (c *Context) RegisterSchemas(sources ...schema.Source) error {
	files, err := c.resolver.ParseAll(sources...)
	if err != nil {
		return err
	}
	return c.RegisterFiles(files...)
}

// LoadSchemas reads the named files, and the imports reachable from them,
// from fs and registers them as one batch.
func (c *Context) LoadSchemas(fs afero.Fs, names ...string) error {
	files, err := c.resolver.Collect(fs, names...)
	if err != nil {
		return err
	}
	return c.RegisterFiles(files...)
}

// RegisterFiles registers already built descriptors. Type ids must be unique
// across the context.
func (c *Context) RegisterFiles(files ...*descriptor.FileDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make(map[int64]string)
	var err error
	for _, f := range files {
		f.Walk(func(t descriptor.Type) {
			id := t.ID()
			if !id.Valid || err != nil {
				return
			}
			if prev, ok := c.byID[id.Int64]; ok {
				err = registrationErr(t.TypeName(), ErrDuplicateTypeID, "type id %d is already used by %s", id.Int64, prev)
				return
			}
			if prev, ok := ids[id.Int64]; ok {
				err = registrationErr(t.TypeName(), ErrDuplicateTypeID, "type id %d is already used by %s", id.Int64, prev)
				return
			}
			ids[id.Int64] = t.TypeName()
		})
		if err != nil {
			return err
		}
	}
	if err := c.resolver.Register(files...); err != nil {
		return err
	}
	for id, name := range ids {
		c.byID[id] = name
	}
	c.delegates.Clear()
	return nil
}

// RegisterMarshaller binds m to its schema type and Go type.
func (c *Context) RegisterMarshaller(m Marshaller) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := m.TypeName()
	t, ok := c.pool.FindType(name)
	if !ok {
		return registrationErr(name, ErrUnknownType, "no message or enum with this name is registered")
	}
	_, isMsg := t.(*descriptor.Descriptor)
	switch mm := m.(type) {
	case enumMarshaller:
		if isMsg {
			return registrationErr(name, ErrKindMismatch, "enum marshaller %s for a message", mm.GoType())
		}
	case messageMarshaller:
		if !isMsg {
			return registrationErr(name, ErrKindMismatch, "message marshaller %s for an enum", mm.GoType())
		}
	case containerMarshaller:
		if !isMsg {
			return registrationErr(name, ErrKindMismatch, "container marshaller %s for an enum", mm.GoType())
		}
		if !isContainer(mm.GoType()) {
			return registrationErr(name, ErrKindMismatch, "%s implements no container interface", mm.GoType())
		}
	default:
		return registrationErr(name, ErrKindMismatch, "unsupported marshaller %T", m)
	}

	if prev, ok := c.byName[name]; ok {
		return registrationErr(name, ErrDuplicateMarshaller, "already handled by %s", prev.GoType())
	}
	_, dynamic := m.(*dynamicMarshaller)
	if !dynamic {
		if prev, ok := c.byType.Load(m.GoType()); ok {
			return registrationErr(name, ErrDuplicateMarshaller, "Go type %s is already marshalled as %s", m.GoType(), prev.TypeName())
		}
		c.byType.Store(m.GoType(), m)
	}
	c.byName[name] = m
	c.delegates.Delete(name)
	c.logger.Debug().Str("type", name).Str("go_type", m.GoType().String()).Msg("marshaller registered")
	return nil
}

// Marshaller returns the marshaller bound to a type name.
func (c *Context) Marshaller(typeName string) (Marshaller, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byName[typeName]
	return m, ok
}

// TypeNameByID returns the type that declared @TypeId(id).
func (c *Context) TypeNameByID(id int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.byID[id]
	return name, ok
}

// CanMarshall reports whether v can be written with ToWrappedBytes.
func (c *Context) CanMarshall(v any) bool {
	if isWrappedScalar(v) {
		return true
	}
	_, ok := c.marshallerFor(v)
	return ok
}

// CanMarshallName reports whether the named type has a marshaller.
func (c *Context) CanMarshallName(typeName string) bool {
	_, ok := c.Marshaller(typeName)
	return ok
}

// marshallerFor finds the marshaller for a Go value. A *DynamicMessage
// dispatches on its descriptor, everything else on its Go type.
func (c *Context) marshallerFor(v any) (Marshaller, bool) {
	if dm, ok := v.(*DynamicMessage); ok && dm != nil {
		m, ok := c.Marshaller(dm.desc.FullName)
		if _, dynamic := m.(*dynamicMarshaller); ok && dynamic {
			return m, true
		}
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return c.byType.Load(reflect.TypeOf(v))
}

func (c *Context) delegate(name string) (*delegate, error) {
	if d, ok := c.delegates.Load(name); ok {
		return d, nil
	}
	t, ok := c.pool.FindType(name)
	if !ok {
		return nil, registrationErr(name, ErrUnknownType, "no message or enum with this name is registered")
	}
	d := &delegate{name: name, id: t.ID()}
	d.m, _ = c.Marshaller(name)
	switch t := t.(type) {
	case *descriptor.Descriptor:
		d.msg = t
		d.fields = slices.Clone(t.Fields)
		slices.SortFunc(d.fields, func(a, b *descriptor.FieldDescriptor) int { return int(a.Number - b.Number) })
	case *descriptor.EnumDescriptor:
		d.enum = t
	}
	d, _ = c.delegates.LoadOrStore(name, d)
	return d, nil
}

func (c *Context) maxDepth() int   { return int(c.opts.MaxNestedDepth.Int64) }
func (c *Context) bufferSize() int { return int(c.opts.BufferSize.Int64) }

func (c *Context) newReader(r *protostream.Reader, dynamicOnly bool) *ProtoReader {
	return &ProtoReader{ctx: c, r: r.WithMaxDepth(c.maxDepth()), dynamicOnly: dynamicOnly}
}

// WriteTo writes the fields of message v to w, without any wrapping.
func (c *Context) WriteTo(w io.Writer, v any) error {
	m, ok := c.marshallerFor(v)
	if !ok {
		return registrationErr("", ErrNoMarshaller, "no marshaller for %T", v)
	}
	mm, ok := m.(messageMarshaller)
	if !ok {
		return registrationErr(m.TypeName(), ErrKindMismatch, "%T is not a message", v)
	}
	pw, err := protostream.NewWriterSize(w, c.bufferSize())
	if err != nil {
		return err
	}
	out := &ProtoWriter{ctx: c, w: pw}
	if err := mm.writeMessage(out, v); err != nil {
		return err
	}
	_, err = pw.Result()
	return err
}

// ReadFrom reads one message of the named type from r until end of input.
func (c *Context) ReadFrom(r io.Reader, typeName string) (any, error) {
	d, err := c.delegate(typeName)
	if err != nil {
		return nil, err
	}
	mm, ok := d.m.(messageMarshaller)
	if !ok {
		return nil, registrationErr(typeName, ErrNoMarshaller, "no message marshaller registered")
	}
	pr, err := protostream.NewReaderSize(r, c.bufferSize())
	if err != nil {
		return nil, err
	}
	in := c.newReader(pr, false)
	v, err := mm.readMessage(in)
	if err == nil {
		err = pr.Err()
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ToBytes encodes message v without wrapping.
func (c *Context) ToBytes(v any) ([]byte, error) {
	buf := protostream.GetBuffer()
	defer protostream.PutBuffer(buf)
	if err := c.WriteTo(buf, v); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// FromBytes decodes a message of the named type.
func (c *Context) FromBytes(b []byte, typeName string) (any, error) {
	return c.ReadFrom(protostream.NewBytesReader(b), typeName)
}

// ToWrappedBytes encodes v as a self-describing WrappedMessage. v may be nil,
// a supported scalar, a time.Time, or a value with a registered marshaller.
func (c *Context) ToWrappedBytes(v any) ([]byte, error) {
	return c.encode(func(w *ProtoWriter) error { return w.writeWrapped(v) })
}

// encode runs fn over a pooled buffer and returns a copy of what it wrote.
func (c *Context) encode(fn func(*ProtoWriter) error) ([]byte, error) {
	buf := protostream.GetBuffer()
	defer protostream.PutBuffer(buf)
	pw, err := protostream.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	if err := fn(&ProtoWriter{ctx: c, w: pw}); err != nil {
		return nil, err
	}
	if _, err := pw.Result(); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

// FromWrappedBytes decodes a WrappedMessage back into the value it carries.
func (c *Context) FromWrappedBytes(b []byte) (any, error) {
	in := c.newReader(protostream.NewBytesDecoder(b), false)
	v, err := in.readWrapped()
	if err == nil {
		err = in.r.Err()
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Marshal encodes a message with the marshaller registered for T.
func Marshal[T any](c *Context, v T) ([]byte, error) {
	return c.ToBytes(v)
}

// Unmarshal decodes a message with the marshaller registered for T.
func Unmarshal[T any](c *Context, b []byte) (T, error) {
	var zero T
	m, ok := c.byType.Load(reflect.TypeFor[T]())
	if !ok {
		return zero, registrationErr("", ErrNoMarshaller, "no marshaller for %s", reflect.TypeFor[T]())
	}
	v, err := c.FromBytes(b, m.TypeName())
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, registrationErr(m.TypeName(), ErrKindMismatch, "decoded %T, want %s", v, reflect.TypeFor[T]())
	}
	return t, nil
}

// isWrappedScalar reports whether v is carried by a WrappedMessage scalar
// field rather than a marshaller.
func isWrappedScalar(v any) bool {
	switch v.(type) {
	case nil, string, []byte, bool, float32, float64, time.Time,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

var errEmptyWrapper = errors.New("protostream: wrapped message carries no value")
