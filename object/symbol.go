// Package object implements the engine's object model: the Structure
// (hidden class) transition system, Objects built on top of it, and the
// process-wide symbol table property names intern into (spec §3/§4.4).
package object

import "sync"

// SymbolID is an interned property-name identifier. Lookups compare
// SymbolIDs, never string contents.
type SymbolID uint32

// SymbolTable interns strings to process-wide SymbolIDs.
type SymbolTable struct {
	mu    sync.RWMutex
	ids   map[string]SymbolID
	names []string
}

// NewSymbolTable constructs an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{ids: make(map[string]SymbolID)}
}

// Intern returns the SymbolID for name, assigning a new one on first
// observation. The same name always yields the same id for the life of
// the table.
func (t *SymbolTable) Intern(name string) SymbolID {
	t.mu.RLock()
	if id, ok := t.ids[name]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[name]; ok {
		return id
	}
	id := SymbolID(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = id
	return id
}

// Name returns the string a previously interned id was assigned for.
func (t *SymbolTable) Name(id SymbolID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.names[id]
}

// Symbols is the process-wide symbol table spec §3 describes ("strings
// used as property names are interned into a process-wide symbol
// table"). Every Structure and Object in the process shares it,
// guarded by the reader-writer lock above, matching spec §5's "the
// symbol table is process-wide and guarded by a reader-writer lock."
var Symbols = NewSymbolTable()
