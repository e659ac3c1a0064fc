package mc

import "fmt"

// Symbol is a defined label. Value is an offset into Section, or an
// absolute address when Section is empty.
type Symbol struct {
	Name    string
	Section string
	Value   uint64
	Global  bool
}

// SymbolTable holds the defined symbols in definition order
type SymbolTable struct {
	byName map[string]*Symbol
	order  []*Symbol
}

// NewSymbolTable creates an empty symbol table
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]*Symbol)}
}

// Define adds a symbol. Defining a name twice is an error.
func (st *SymbolTable) Define(sym Symbol) error {
	if sym.Name == "" {
		return fmt.Errorf("symbol without a name")
	}
	if _, exists := st.byName[sym.Name]; exists {
		return fmt.Errorf("symbol %q is already defined", sym.Name)
	}
	s := sym
	st.byName[sym.Name] = &s
	st.order = append(st.order, &s)
	return nil
}

// Lookup returns the symbol with the given name
func (st *SymbolTable) Lookup(name string) (*Symbol, bool) {
	s, ok := st.byName[name]
	return s, ok
}

// Symbols returns all symbols in definition order
func (st *SymbolTable) Symbols() []*Symbol {
	return st.order
}

// Names returns all symbol names in definition order
func (st *SymbolTable) Names() []string {
	names := make([]string, len(st.order))
	for i, s := range st.order {
		names[i] = s.Name
	}
	return names
}

// Len returns the number of symbols
func (st *SymbolTable) Len() int {
	return len(st.order)
}
