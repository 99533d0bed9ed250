package registry

import (
	"iter"
	"reflect"
)

// Marshaller is what a Context dispatches to. Obtain one from ForMessage,
// ForEnum, ForContainer or Dynamic.
type Marshaller interface {
	// TypeName is the fully qualified schema type the marshaller handles.
	TypeName() string
	// GoType is the type of the values it accepts and produces.
	GoType() reflect.Type
}

// MessageMarshaller encodes values of T as the fields of a schema message.
type MessageMarshaller[T any] interface {
	TypeName() string
	Write(w *ProtoWriter, v T) error
	Read(r *ProtoReader) (T, error)
}

// EnumMarshaller maps values of T to the numbers of a schema enum.
type EnumMarshaller[T any] interface {
	TypeName() string
	Encode(v T) int32
	// Decode returns false for numbers with no matching value.
	Decode(n int32) (T, bool)
}

// ContainerMarshaller creates containers of type C. C must implement
// IndexedContainer, AppendableContainer or MapContainer; the registry fills
// and drains it through that interface only.
type ContainerMarshaller[C any] interface {
	TypeName() string
	New(size int) C
}

// IndexedContainer is a random-access sequence of a known size.
type IndexedContainer interface {
	NumElements() int
	Element(i int) any
	SetElement(i int, v any)
}

// AppendableContainer is a sequence that can only be iterated and appended
// to.
type AppendableContainer interface {
	NumElements() int
	All() iter.Seq[any]
	Append(v any)
}

// MapContainer is a collection of key/value entries.
type MapContainer interface {
	NumElements() int
	Entries() iter.Seq2[any, any]
	Put(k, v any)
}

type messageMarshaller interface {
	Marshaller
	writeMessage(w *ProtoWriter, v any) error
	readMessage(r *ProtoReader) (any, error)
}

type enumMarshaller interface {
	Marshaller
	encode(v any) (int32, bool)
	decode(n int32) (any, bool)
}

type containerMarshaller interface {
	Marshaller
	newContainer(size int) any
}

// ForMessage adapts a typed message marshaller for registration.
func ForMessage[T any](m MessageMarshaller[T]) Marshaller {
	return &messageAdapter[T]{m: m, typ: reflect.TypeFor[T]()}
}

type messageAdapter[T any] struct {
	m   MessageMarshaller[T]
	typ reflect.Type
}

func (a *messageAdapter[T]) TypeName() string     { return a.m.TypeName() }
func (a *messageAdapter[T]) GoType() reflect.Type { return a.typ }

func (a *messageAdapter[T]) writeMessage(w *ProtoWriter, v any) error {
	t, ok := v.(T)
	if !ok {
		return valueErr("write message", 0, "%T is not %s", v, a.typ)
	}
	return a.m.Write(w, t)
}

func (a *messageAdapter[T]) readMessage(r *ProtoReader) (any, error) {
	return a.m.Read(r)
}

// ForEnum adapts a typed enum marshaller for registration.
func ForEnum[T any](m EnumMarshaller[T]) Marshaller {
	return &enumAdapter[T]{m: m, typ: reflect.TypeFor[T]()}
}

type enumAdapter[T any] struct {
	m   EnumMarshaller[T]
	typ reflect.Type
}

func (a *enumAdapter[T]) TypeName() string     { return a.m.TypeName() }
func (a *enumAdapter[T]) GoType() reflect.Type { return a.typ }

func (a *enumAdapter[T]) encode(v any) (int32, bool) {
	t, ok := v.(T)
	if !ok {
		return 0, false
	}
	return a.m.Encode(t), true
}

func (a *enumAdapter[T]) decode(n int32) (any, bool) { return a.m.Decode(n) }

// ForContainer adapts a container marshaller for registration.
func ForContainer[C any](m ContainerMarshaller[C]) Marshaller {
	return &containerAdapter[C]{m: m, typ: reflect.TypeFor[C]()}
}

type containerAdapter[C any] struct {
	m   ContainerMarshaller[C]
	typ reflect.Type
}

func (a *containerAdapter[C]) TypeName() string          { return a.m.TypeName() }
func (a *containerAdapter[C]) GoType() reflect.Type      { return a.typ }
func (a *containerAdapter[C]) newContainer(size int) any { return a.m.New(size) }

var (
	indexedType    = reflect.TypeFor[IndexedContainer]()
	appendableType = reflect.TypeFor[AppendableContainer]()
	mapType        = reflect.TypeFor[MapContainer]()
)

// isContainer reports whether values of t can be driven as a container.
func isContainer(t reflect.Type) bool {
	return t.Implements(indexedType) || t.Implements(appendableType) || t.Implements(mapType)
}

// Dynamic returns a marshaller that encodes and decodes *DynamicMessage
// values of the named message type by walking its descriptor.
func Dynamic(typeName string) Marshaller {
	return &dynamicMarshaller{name: typeName}
}

type dynamicMarshaller struct {
	name string
}

func (d *dynamicMarshaller) TypeName() string     { return d.name }
func (d *dynamicMarshaller) GoType() reflect.Type { return reflect.TypeFor[*DynamicMessage]() }

func (d *dynamicMarshaller) writeMessage(w *ProtoWriter, v any) error {
	m, ok := v.(*DynamicMessage)
	if !ok || m == nil {
		return valueErr("write message", 0, "%T is not a *DynamicMessage", v)
	}
	if m.desc.FullName != d.name {
		return valueErr("write message", 0, "message %s given to marshaller of %s", m.desc.FullName, d.name)
	}
	return w.writeDynamic(m)
}

func (d *dynamicMarshaller) readMessage(r *ProtoReader) (any, error) {
	dg, err := r.ctx.delegate(d.name)
	if err != nil {
		return nil, err
	}
	m, err := r.readDynamic(dg)
	if err != nil {
		return nil, err
	}
	return m, nil
}
