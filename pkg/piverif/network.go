package piverif

// This file defines the core's own input contract for a resolved
// Applied-Pi model -- the Network and Process types spec.md section 6
// names as "read by the core". internal/pilang's lexer/parser/resolver
// populate these types from literal source text; pkg/piverif never
// imports internal/pilang, keeping the dependency one-directional.

// TermKind discriminates pre-translation syntactic terms. Unlike
// Message, a Term's Variable-vs-Name classification is a property of
// where it was parsed (a binding position vs. a reference position), not
// yet resolved against any symbol table.
type TermKind int

const (
	TermVariable TermKind = iota
	TermName
	TermTuple
	TermFunc
)

// Term is a syntactic term as written in the source: a variable
// occurring in a binding position, a bare name reference, a tuple, or a
// function application. TermToMessage resolves a Term to a Message given
// the current local bindings.
type Term struct {
	Kind    TermKind
	Name    string
	Members []Term // TermTuple
	Args    []Term // TermFunc
}

// NewTermVariable returns a Term in a binding position.
func NewTermVariable(name string) Term { return Term{Kind: TermVariable, Name: name} }

// NewTermName returns a Term referencing a name.
func NewTermName(name string) Term { return Term{Kind: TermName, Name: name} }

// NewTermTuple returns a Term tupling members.
func NewTermTuple(members ...Term) Term { return Term{Kind: TermTuple, Members: members} }

// NewTermFunc returns a Term applying a function to args.
func NewTermFunc(name string, args ...Term) Term { return Term{Kind: TermFunc, Name: name, Args: args} }

// PiType names a declared Applied-Pi base type (channel, bitstring, key, ...).
type PiType struct {
	Name string
}

// FreeDeclaration is a `free n: T [private].` declaration.
type FreeDeclaration struct {
	Name    string
	Type    string
	Private bool
}

// Constant is a `const c: T.` declaration.
type Constant struct {
	Name string
	Type string
}

// Constructor is a `fun f(T1,...): T [private].` declaration.
type Constructor struct {
	Name       string
	ParamTypes []string
	ResultType string
	Private    bool
}

// Destructor is a `reduc forall ...; f(pattern) = rhs.` declaration.
// Pattern is always a TermFunc whose Args are the destructor's operand
// patterns; Result is the term produced when Pattern's arguments are all
// known.
type Destructor struct {
	Vars    []string
	Pattern Term
	Result  Term
}

// Table is a `table t(T1,...).` declaration, lowered to a synthetic
// state cell keyed by the table's name.
type Table struct {
	Name       string
	ParamTypes []string
}

// WhenClause restricts a Query to hold only when a named cell equals a
// value: `query attacker(M) when cell = value.`
type WhenClause struct {
	Cell  string
	Value Term
}

// Query is a `query attacker(M) [when ...].` declaration.
type Query struct {
	Target Term
	When   *WhenClause
}

// Process is the resolved (macro-free) process tree. Concrete variants
// implement isProcess.
type Process interface {
	isProcess()
}

// NilProcess is the empty process (end of a sequence).
type NilProcess struct{}

func (NilProcess) isProcess() {}

// NewRestriction is `new n: T; Next`.
type NewRestriction struct {
	Name string
	Type string
	Next Process
}

func (*NewRestriction) isProcess() {}

// InProcess is `in(channel, pattern); Next`.
type InProcess struct {
	Channel Term
	Pattern Term
	Next    Process
}

func (*InProcess) isProcess() {}

// OutProcess is `out(channel, message); Next`.
type OutProcess struct {
	Channel Term
	Message Term
	Next    Process
}

func (*OutProcess) isProcess() {}

// LetProcess is `let pattern = value in Then [else Else]`.
type LetProcess struct {
	Pattern Term
	Value   Term
	Then    Process
	Else    Process
}

func (*LetProcess) isProcess() {}

// IfProcess is `if left = right then Then else Else` (equality comparison only).
type IfProcess struct {
	Left  Term
	Right Term
	Then  Process
	Else  Process
}

func (*IfProcess) isProcess() {}

// MutateProcess is `mutate(cell, value); Next`.
type MutateProcess struct {
	Cell  string
	Value Term
	Next  Process
}

func (*MutateProcess) isProcess() {}

// InsertProcess is `insert t(args); Next`.
type InsertProcess struct {
	Table string
	Args  []Term
	Next  Process
}

func (*InsertProcess) isProcess() {}

// GetProcess is `get t(patterns) in Then`.
type GetProcess struct {
	Table    string
	Patterns []Term
	Then     Process
}

func (*GetProcess) isProcess() {}

// EventProcess is `event e(args); Next`.
type EventProcess struct {
	Name string
	Args []Term
	Next Process
}

func (*EventProcess) isProcess() {}

// ReplicateProcess is `! Body`.
type ReplicateProcess struct {
	Body Process
}

func (*ReplicateProcess) isProcess() {}

// ParallelProcess is `P | Q | ...`.
type ParallelProcess struct {
	Branches []Process
}

func (*ParallelProcess) isProcess() {}

// GroupProcess is a parenthesized sub-process, kept distinct from its
// Body only for source traceability.
type GroupProcess struct {
	Body Process
}

func (*GroupProcess) isProcess() {}

// CallProcess is a macro invocation `name(args)`. A fully-resolved
// Network's Main process never contains a CallProcess -- the resolver
// inlines every call during macro expansion.
type CallProcess struct {
	Name string
	Args []Term
}

func (*CallProcess) isProcess() {}

// MacroDef is a `let name(params) = Body.` top-level macro definition.
type MacroDef struct {
	Name   string
	Params []string
	Body   Process
}

// Network is the parsed (pre-resolution) Applied-Pi model: the typed
// declarations plus a main process that may still contain macro calls.
//
// Nonces is populated by Resolve once Main's macro calls are inlined and
// hygienically renamed: it holds the final, post-rename name of every
// `new`-bound restriction Main actually contains, so that a Query (or
// WhenClause) referencing one of those names by the same final spelling
// resolves to the matching Nonce rather than falling through to an
// unbound Variable. It is empty on a freshly parsed, unresolved Network.
type Network struct {
	Types        map[string]PiType
	Frees        map[string]FreeDeclaration
	Consts       map[string]Constant
	Constructors map[string]Constructor
	Destructors  []Destructor
	Tables       map[string]Table
	Macros       map[string]MacroDef
	Queries      []Query
	Main         Process
	Nonces       map[string]struct{}
}

// NewNetwork returns an empty Network ready for population by a parser.
func NewNetwork() *Network {
	return &Network{
		Types:        map[string]PiType{},
		Frees:        map[string]FreeDeclaration{},
		Consts:       map[string]Constant{},
		Constructors: map[string]Constructor{},
		Tables:       map[string]Table{},
		Macros:       map[string]MacroDef{},
		Main:         NilProcess{},
		Nonces:       map[string]struct{}{},
	}
}

// ResolvedNetwork is a Network whose Main process has had every
// CallProcess inlined (with hygienic renaming). Its terms are not
// type-checked. It is the type pkg/piverif.Translate consumes.
type ResolvedNetwork struct {
	*Network
}

// TermToMessage resolves t to a Message given the bindings currently in
// scope (locals): a binding-position Term already bound in locals
// resolves to its bound Message; otherwise it falls back to the
// network's symbol tables (Frees/Consts resolve to Name, Nonces to
// Nonce), and finally to a fresh Variable -- matching spec.md's
// "inputs/lets as Variable, names/nonces as Name/Nonce" rule.
func (rn *ResolvedNetwork) TermToMessage(t Term, locals map[string]Message) Message {
	switch t.Kind {
	case TermVariable:
		if m, ok := locals[t.Name]; ok {
			return m
		}
		return NewVariable(t.Name)
	case TermName:
		if m, ok := locals[t.Name]; ok {
			return m
		}
		if _, ok := rn.Frees[t.Name]; ok {
			return NewName(t.Name)
		}
		if _, ok := rn.Consts[t.Name]; ok {
			return NewName(t.Name)
		}
		if _, ok := rn.Nonces[t.Name]; ok {
			return NewNonce(t.Name)
		}
		return NewVariable(t.Name)
	case TermTuple:
		members := make([]Message, len(t.Members))
		for i, m := range t.Members {
			members[i] = rn.TermToMessage(m, locals)
		}
		return NewTuple(members...)
	case TermFunc:
		args := make([]Message, len(t.Args))
		for i, a := range t.Args {
			args[i] = rn.TermToMessage(a, locals)
		}
		return NewFunction(t.Name, args...)
	default:
		return NewVariable(t.Name)
	}
}

// TermVariables returns the names of every TermVariable occurring in t.
func TermVariables(t Term) []string {
	switch t.Kind {
	case TermVariable:
		return []string{t.Name}
	case TermTuple:
		out := []string{}
		for _, m := range t.Members {
			out = append(out, TermVariables(m)...)
		}
		return out
	case TermFunc:
		out := []string{}
		for _, a := range t.Args {
			out = append(out, TermVariables(a)...)
		}
		return out
	default:
		return nil
	}
}
