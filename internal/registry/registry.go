package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

type MissingEntryError struct {
	Id uint32
}

func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("Missing registration with id=%d", e.Id)
}

// Entry is one declared data layout. Ids are dense, start at zero and are
// never reused for the lifetime of a connection.
type Entry struct {
	Mut sync.RWMutex

	Id       uint32
	Identity string
	Layout   *wire.Layout

	// Declared is set once every field has been sent to the host. DeclareErr
	// holds the failure from the one attempt that was made.
	Declared   bool
	DeclareErr error
}

func (e *Entry) DeclarationState() (bool, error) {
	e.Mut.RLock()
	defer e.Mut.RUnlock()
	return e.Declared, e.DeclareErr
}

type Table struct {
	mut_entries sync.RWMutex
	entries     []*Entry
	byIdentity  map[string]uint32
}

func CreateTable() *Table {
	return &Table{
		mut_entries: sync.RWMutex{},
		entries:     make([]*Entry, 0),
		byIdentity:  make(map[string]uint32),
	}
}

// Identity namespaces a Go type under a program name, so two programs
// sharing a process never collide on a layout.
func Identity(programName string, t reflect.Type) string {
	name := t.String()
	if t.PkgPath() != "" && t.Name() != "" {
		name = t.PkgPath() + "." + t.Name()
	}
	return programName + "::" + name
}

// Register returns the entry for identity, creating it with the next free id
// when it was never seen. created reports whether this call made the entry.
// Re-registering an identity with a different layout is a LayoutMismatch.
func (table *Table) Register(identity string, layout *wire.Layout) (entry *Entry, created bool, err error) {
	table.mut_entries.Lock()
	defer table.mut_entries.Unlock()

	if id, has := table.byIdentity[identity]; has {
		existing := table.entries[id]
		if layout != nil && existing.Layout != nil && existing.Layout.Fingerprint != layout.Fingerprint {
			return nil, false, &errors.LayoutMismatch{
				Identity: identity,
				Expected: existing.Layout.Fingerprint,
				Actual:   layout.Fingerprint,
			}
		}
		return existing, false, nil
	}

	entry = &Entry{
		Mut:      sync.RWMutex{},
		Id:       uint32(len(table.entries)),
		Identity: identity,
		Layout:   layout,
	}
	table.entries = append(table.entries, entry)
	table.byIdentity[identity] = entry.Id

	return entry, true, nil
}

func (table *Table) Lookup(identity string) (uint32, bool) {
	table.mut_entries.RLock()
	defer table.mut_entries.RUnlock()

	id, has := table.byIdentity[identity]
	return id, has
}

func (table *Table) Entry(id uint32) (*Entry, error) {
	table.mut_entries.RLock()
	defer table.mut_entries.RUnlock()

	if int(id) >= len(table.entries) {
		return nil, &MissingEntryError{Id: id}
	}
	return table.entries[id], nil
}

func (table *Table) Len() int {
	table.mut_entries.RLock()
	defer table.mut_entries.RUnlock()

	return len(table.entries)
}

func (table *Table) MarkDeclared(id uint32, declareErr error) error {
	entry, err := table.Entry(id)
	if err != nil {
		return err
	}

	entry.Mut.Lock()
	defer entry.Mut.Unlock()

	entry.Declared = declareErr == nil
	entry.DeclareErr = declareErr
	return nil
}

// Identities lists every registered identity in id order.
func (table *Table) Identities() []string {
	table.mut_entries.RLock()
	defer table.mut_entries.RUnlock()

	out := make([]string, 0, len(table.entries))
	for _, e := range table.entries {
		out = append(out, e.Identity)
	}
	return out
}
