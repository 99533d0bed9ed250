package schema

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v3"

	"github.com/oy3o/protostream/annotation"
	"github.com/oy3o/protostream/descriptor"
)

// Option configures parsing and building.
type Option func(*options)

type options struct {
	annotations *annotation.Config
	logger      zerolog.Logger
}

// WithAnnotations sets the annotation configuration used to check doc
// comment annotations. The default knows only @TypeId.
func WithAnnotations(cfg *annotation.Config) Option {
	return func(o *options) { o.annotations = cfg }
}

// WithLogger sets the logger for parse diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

var builtinAnnotations = sync.OnceValue(func() *annotation.Config {
	cfg, err := annotation.NewConfigBuilder().Build()
	if err != nil {
		panic(err)
	}
	return cfg
})

func newOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.annotations == nil {
		o.annotations = builtinAnnotations()
	}
	return o
}

// finish processes doc comment annotations on every element of f and then
// validates it. It is shared by Parse and FileBuilder.Build.
func finish(f *descriptor.FileDescriptor, cfg *annotation.Config) error {
	anns, err := annotate(cfg, f.Documentation, annotation.TargetFile)
	if err != nil {
		return fmt.Errorf("file %s: %w", f.Name, err)
	}
	f.Annotations = anns
	for _, e := range f.Enums {
		if err := annotateEnum(cfg, e); err != nil {
			return err
		}
	}
	for _, m := range f.Messages {
		if err := annotateMessage(cfg, m); err != nil {
			return err
		}
	}
	return descriptor.Validate(f)
}

func annotate(cfg *annotation.Config, doc string, target annotation.Target) ([]*annotation.Annotation, error) {
	if doc == "" {
		return nil, nil
	}
	anns, err := annotation.Parse(doc)
	if err != nil || len(anns) == 0 {
		return nil, err
	}
	return cfg.Process(anns, target)
}

func annotateMessage(cfg *annotation.Config, d *descriptor.Descriptor) error {
	anns, err := annotate(cfg, d.Documentation, annotation.TargetMessage)
	if err != nil {
		return fmt.Errorf("message %s: %w", d.FullName, err)
	}
	d.Annotations = anns
	if err := applyTypeID(anns, &d.TypeID, d.FullName); err != nil {
		return err
	}
	for _, fd := range d.Fields {
		if fd.Annotations, err = annotate(cfg, fd.Documentation, annotation.TargetField); err != nil {
			return fmt.Errorf("field %s.%s: %w", d.FullName, fd.Name, err)
		}
	}
	for _, o := range d.Oneofs {
		if _, err := annotate(cfg, o.Documentation, annotation.TargetOneof); err != nil {
			return fmt.Errorf("oneof %s.%s: %w", d.FullName, o.Name, err)
		}
	}
	for _, e := range d.NestedEnums {
		if err := annotateEnum(cfg, e); err != nil {
			return err
		}
	}
	for _, m := range d.NestedMessages {
		if err := annotateMessage(cfg, m); err != nil {
			return err
		}
	}
	return nil
}

func annotateEnum(cfg *annotation.Config, e *descriptor.EnumDescriptor) error {
	anns, err := annotate(cfg, e.Documentation, annotation.TargetEnum)
	if err != nil {
		return fmt.Errorf("enum %s: %w", e.FullName, err)
	}
	e.Annotations = anns
	if err := applyTypeID(anns, &e.TypeID, e.FullName); err != nil {
		return err
	}
	for _, v := range e.Values {
		if v.Annotations, err = annotate(cfg, v.Documentation, annotation.TargetEnumValue); err != nil {
			return fmt.Errorf("enum value %s.%s: %w", e.FullName, v.Name, err)
		}
	}
	return nil
}

// applyTypeID copies @TypeId into id. An id set through the builder must
// agree with the annotation.
func applyTypeID(anns []*annotation.Annotation, id *null.Int, owner string) error {
	a, ok := annotation.Find(anns, annotation.TypeIDAnnotation)
	if !ok {
		return nil
	}
	v, ok := a.Int("value")
	if !ok || v < 0 {
		return &annotation.UsageError{Annotation: a.Name, Offset: a.Offset, Err: annotation.ErrInvalidAnnotation, Msg: fmt.Sprintf("%s needs a non-negative integer value", owner)}
	}
	if id.Valid && id.Int64 != v {
		return &annotation.UsageError{Annotation: a.Name, Offset: a.Offset, Err: annotation.ErrInvalidAnnotation, Msg: fmt.Sprintf("%s has type id %d and @TypeId(%d)", owner, id.Int64, v)}
	}
	*id = null.IntFrom(v)
	return nil
}
