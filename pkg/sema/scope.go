package sema

import "github.com/mstar-lang/malic/pkg/ast"

// StorageClass is where a VariableEntity lives.
type StorageClass int

const (
	Global StorageClass = iota
	Local
	Param
	Member
)

// VariableEntity is the front end's view of one declared variable. Later
// pipeline stages attach allocation info (stack offset, assigned register)
// by keying off this entity rather than mutating it, keeping the symbol
// table read-only once the front end is done.
type VariableEntity struct {
	Name    string
	Type    Type
	Storage StorageClass
	// Index is the parameter index (Param) or member's declaration index
	// within its class (Member); unused for Global/Local.
	Index int
}

// FunctionEntity is the front end's view of one declared function or
// method.
type FunctionEntity struct {
	Name       string
	Recv       string // owning class name, "" for free functions
	Params     []*VariableEntity
	ReturnType Type
	Locals     []*VariableEntity
	Body       []ast.Stmt

	// Builtin is true for a runtime-library function exposed directly to
	// M* source; Symbol is its linker name when it
	// differs from Name.
	Builtin bool
	Symbol  string
}

// registerBuiltins seeds the free-function table with the runtime-library
// helpers M* source may call without a declaration.
func registerBuiltins(into map[string]*FunctionEntity) {
	def := func(name, symbol string, ret Type, params ...Type) {
		fe := &FunctionEntity{Name: name, ReturnType: ret, Builtin: true, Symbol: symbol}
		for i, pt := range params {
			fe.Params = append(fe.Params, &VariableEntity{Name: "_", Type: pt, Storage: Param, Index: i})
		}
		into[name] = fe
	}
	def("printInt", "__printInt", VoidType{}, IntType{})
	def("printlnInt", "__printlnInt", VoidType{}, IntType{})
	def("getString", "getString", StringType{})
	def("getInt", "getInt", IntType{})
	def("toString", "toString", StringType{}, IntType{})
}

// ClassEntity is the front end's view of one declared class: ordered
// members (declaration order fixes byte offsets) and methods.
type ClassEntity struct {
	Name    string
	Extends string
	Members []*VariableEntity
	Methods map[string]*FunctionEntity
}

// lookupMember resolves a field name against className's declaration and
// its superclass chain.
func (c *Checker) lookupMember(className, field string) (*VariableEntity, bool) {
	for _, ce := range c.classChain(className) {
		for _, m := range ce.Members {
			if m.Name == field {
				return m, true
			}
		}
	}
	return nil, false
}

// MemberOffset returns the byte offset of a member within an instance, or
// -1 if not found. Walks the superclass chain so inherited members occupy
// the same offsets as they do in the superclass.
func (c *Checker) MemberOffset(className, field string) int {
	chain := c.classChain(className) // chain[0] == className, last == root ancestor
	offset := 0
	for i := len(chain) - 1; i >= 0; i-- {
		for _, m := range chain[i].Members {
			if m.Name == field {
				return offset
			}
			offset += 8
		}
	}
	return -1
}

func (c *Checker) classChain(name string) []*ClassEntity {
	return classChain(c.classes, name)
}

func classChain(classes map[string]*ClassEntity, name string) []*ClassEntity {
	var chain []*ClassEntity
	for name != "" {
		ce, ok := classes[name]
		if !ok {
			break
		}
		chain = append(chain, ce)
		name = ce.Extends
	}
	return chain
}

// MemberOffset returns the byte offset of field within an instance of
// className, walking the superclass chain so inherited members keep the
// offsets they were assigned in their declaring class. Returns -1 if the
// class or field is unknown.
func (r *Result) MemberOffset(className, field string) int {
	chain := classChain(r.Classes, className)
	offset := 0
	for i := len(chain) - 1; i >= 0; i-- {
		for _, m := range chain[i].Members {
			if m.Name == field {
				return offset
			}
			offset += 8
		}
	}
	return -1
}

// ResolveMethod finds the class in className's superclass chain that
// declares method name, returning that class's name (the symbol owner)
// and its FunctionEntity.
func (r *Result) ResolveMethod(className, name string) (owner string, fe *FunctionEntity, ok bool) {
	for _, ce := range classChain(r.Classes, className) {
		if m, found := ce.Methods[name]; found {
			return ce.Name, m, true
		}
	}
	return "", nil, false
}

// SizeOf returns the byte size of one instance of className (its own
// members plus every inherited member).
func (r *Result) SizeOf(className string) int {
	n := 0
	for _, ce := range classChain(r.Classes, className) {
		n += len(ce.Members)
	}
	return n * 8
}

// Scope maps a name to the entity it refers to, with a parent pointer
// forming a tree. Lookups walk up to the root.
type Scope struct {
	parent *Scope
	vars   map[string]*VariableEntity
}

// NewScope creates a child scope of parent (nil for the root/global scope).
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, vars: make(map[string]*VariableEntity)}
}

// Declare adds a variable to this scope. Returns false if the name is
// already declared directly in this scope (duplicate declaration).
func (s *Scope) Declare(v *VariableEntity) bool {
	if _, exists := s.vars[v.Name]; exists {
		return false
	}
	s.vars[v.Name] = v
	return true
}

// Lookup finds a variable by name, searching this scope and its ancestors.
func (s *Scope) Lookup(name string) (*VariableEntity, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}
