package descriptor

import (
	"fmt"
	"sort"
)

// Namespace answers which type a fully qualified name refers to.
type Namespace interface {
	Get(name string) (Type, bool)
}

// CompositeNamespace searches its members in order and stops at the first hit.
type CompositeNamespace []Namespace

func (c CompositeNamespace) Get(name string) (Type, bool) {
	for _, ns := range c {
		if t, ok := ns.Get(name); ok {
			return t, true
		}
	}
	return nil, false
}

// LocalNamespace holds the types declared directly in one file.
type LocalNamespace struct {
	types map[string]Type
}

func (l *LocalNamespace) Get(name string) (Type, bool) {
	t, ok := l.types[name]
	return t, ok
}

// Len returns the number of local types.
func (l *LocalNamespace) Len() int { return len(l.types) }

// ExportedNamespace is what files importing the owner can see: its local
// types and, transitively, those of its public imports. Private imports
// never show up here.
type ExportedNamespace struct {
	file    *FileDescriptor
	members CompositeNamespace
}

// Get panics when the owning file has not been resolved: what a file
// exports depends on which of its imports were found.
func (e *ExportedNamespace) Get(name string) (Type, bool) {
	if !e.file.resolved {
		panic(fmt.Sprintf("protostream: exported namespace of %s used before the file was resolved", e.file.Name))
	}
	return e.members.Get(name)
}

// FileNamespace is the view from inside one file: its local types, then the
// exported types of its imports, public imports first.
type FileNamespace struct {
	file     *FileDescriptor
	local    *LocalNamespace
	imported CompositeNamespace
	exported *ExportedNamespace
}

func newFileNamespace(f *FileDescriptor) *FileNamespace {
	ns := &FileNamespace{file: f, local: &LocalNamespace{types: make(map[string]Type)}}
	ns.exported = &ExportedNamespace{file: f}
	return ns
}

// Local returns the file's own types.
func (n *FileNamespace) Local() *LocalNamespace { return n.local }

// Imported returns the types visible through imports.
func (n *FileNamespace) Imported() Namespace { return n.imported }

// Exported returns the view seen by importers of the file.
func (n *FileNamespace) Exported() *ExportedNamespace { return n.exported }

// Get looks a name up locally, then among the imports.
func (n *FileNamespace) Get(name string) (Type, bool) {
	if t, ok := n.local.Get(name); ok {
		return t, true
	}
	return n.imported.Get(name)
}

// Put adds a local definition. A name that is already visible from this file
// is a duplicate.
func (n *FileNamespace) Put(name string, t Type) error {
	existing, ok := n.Get(name)
	if !ok {
		n.local.types[name] = t
		return nil
	}
	return duplicateError(name, existing.File(), n.file)
}

func duplicateError(name string, a, b *FileDescriptor) error {
	if a == b || a.Name == b.Name {
		return schemaErr("", ErrDuplicateDefinition, "duplicate definition of %s in file %s", name, a.Name)
	}
	files := []string{a.Name, b.Name}
	sort.Strings(files)
	return schemaErr("", ErrDuplicateDefinition, "duplicate definition of %s in %s and %s", name, files[0], files[1])
}
