package descriptor

import (
	"slices"
	"strings"
)

// Pool owns every file registered with it. Messages and enums live in a
// single arena; field references to them are stored as arena indices so
// files that import each other do not form pointer cycles.
//
// Registration is not safe for concurrent use. Lookups are, once
// registration has finished.
type Pool struct {
	files  map[string]*FileDescriptor
	order  []*FileDescriptor
	types  []Type
	byName map[string]int
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{
		files:  make(map[string]*FileDescriptor),
		byName: make(map[string]int),
	}
}

// File returns a registered file by name.
func (p *Pool) File(name string) (*FileDescriptor, bool) {
	f, ok := p.files[name]
	return f, ok
}

// Files returns the registered files in registration order.
func (p *Pool) Files() []*FileDescriptor { return slices.Clone(p.order) }

// Len returns the number of registered messages and enums.
func (p *Pool) Len() int { return len(p.types) }

// Types returns every registered message and enum in arena order.
func (p *Pool) Types() []Type { return slices.Clone(p.types) }

// FindType looks up a message or enum by fully qualified name. A leading dot
// is accepted.
func (p *Pool) FindType(name string) (Type, bool) {
	i, ok := p.byName[strings.TrimPrefix(name, ".")]
	if !ok {
		return nil, false
	}
	return p.types[i], true
}

// FindMessage looks up a message by fully qualified name.
func (p *Pool) FindMessage(name string) (*Descriptor, bool) {
	t, _ := p.FindType(name)
	d, ok := t.(*Descriptor)
	return d, ok
}

// FindEnum looks up an enum by fully qualified name.
func (p *Pool) FindEnum(name string) (*EnumDescriptor, bool) {
	t, _ := p.FindType(name)
	e, ok := t.(*EnumDescriptor)
	return e, ok
}

func (p *Pool) typeAt(i int) Type {
	if i < 0 || i >= len(p.types) {
		return nil
	}
	return p.types[i]
}

// Register adds a batch of files. Imports may point at files of the same
// batch, in any order, or at files registered earlier. Type references are
// linked in a second pass once every file of the batch is known. If any file
// fails, nothing of the batch is kept.
func (p *Pool) Register(files ...*FileDescriptor) (err error) {
	batch := make(map[string]*FileDescriptor, len(files))
	for _, f := range files {
		if _, dup := p.files[f.Name]; dup || batch[f.Name] != nil {
			return schemaErr(f.Name, ErrDuplicateFile, "file %s is already registered", f.Name)
		}
		if f.pool != nil {
			return schemaErr(f.Name, ErrDuplicateFile, "file %s belongs to another pool", f.Name)
		}
		batch[f.Name] = f
	}

	mark := len(p.types)
	defer func() {
		if err != nil {
			p.rollback(files, mark)
		}
	}()

	for _, f := range files {
		if err := Validate(f); err != nil {
			return err
		}
		f.pool = p
		f.ns = newFileNamespace(f)
		for _, e := range f.Enums {
			e.link(f, nil, f.Package)
		}
		for _, m := range f.Messages {
			m.link(f, nil, f.Package)
		}
	}

	lookup := func(name string) *FileDescriptor {
		if f, ok := batch[name]; ok {
			return f
		}
		return p.files[name]
	}
	for _, f := range files {
		if err := checkImports(f, lookup); err != nil {
			return err
		}
	}
	// Every import of the batch is known now, so every file can be marked
	// resolved before any namespace is consulted.
	for _, f := range files {
		f.ns.exported.members = exportedMembers(f, lookup)
		for _, name := range f.Imports() {
			f.ns.imported = append(f.ns.imported, lookup(name).ns.exported)
		}
		f.resolved = true
	}

	for _, f := range files {
		if err := putLocals(f); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := p.addTypes(f); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := p.linkFile(f); err != nil {
			return err
		}
	}

	for _, f := range files {
		p.files[f.Name] = f
		p.order = append(p.order, f)
	}
	return nil
}

func (p *Pool) rollback(files []*FileDescriptor, mark int) {
	for i := mark; i < len(p.types); i++ {
		name := p.types[i].TypeName()
		if p.byName[name] == i {
			delete(p.byName, name)
		}
	}
	p.types = p.types[:mark]
	for _, f := range files {
		if f.pool == p {
			f.pool, f.ns, f.resolved = nil, nil, false
		}
	}
}

// checkImports walks the transitive import closure of f.
func checkImports(f *FileDescriptor, lookup func(string) *FileDescriptor) error {
	seen := map[string]bool{f.Name: true}
	stack := []*FileDescriptor{f}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, name := range cur.Imports() {
			if seen[name] {
				continue
			}
			seen[name] = true
			imp := lookup(name)
			if imp == nil {
				if cur == f {
					return schemaErr(f.Name, ErrUnresolvedImport, "import %q not found", name)
				}
				return schemaErr(f.Name, ErrUnresolvedImport, "import %q of %s not found", name, cur.Name)
			}
			if !imp.resolved {
				stack = append(stack, imp)
			}
		}
	}
	return nil
}

// exportedMembers flattens the local namespaces of f and of its public
// imports, transitively. Public import cycles are cut by the seen set.
func exportedMembers(f *FileDescriptor, lookup func(string) *FileDescriptor) CompositeNamespace {
	var out CompositeNamespace
	seen := make(map[string]bool)
	var visit func(*FileDescriptor)
	visit = func(cur *FileDescriptor) {
		if cur == nil || seen[cur.Name] {
			return
		}
		seen[cur.Name] = true
		out = append(out, cur.ns.local)
		for _, name := range cur.PublicImports {
			visit(lookup(name))
		}
	}
	visit(f)
	return out
}

func putLocals(f *FileDescriptor) error {
	var err error
	f.Walk(func(t Type) {
		if err == nil {
			err = f.ns.Put(t.TypeName(), t)
		}
	})
	return err
}

func (p *Pool) addTypes(f *FileDescriptor) error {
	var err error
	f.Walk(func(t Type) {
		if err != nil {
			return
		}
		if i, dup := p.byName[t.TypeName()]; dup {
			err = duplicateError(t.TypeName(), p.types[i].File(), f)
			return
		}
		t.setArenaIndex(len(p.types))
		p.byName[t.TypeName()] = len(p.types)
		p.types = append(p.types, t)
	})
	return err
}
