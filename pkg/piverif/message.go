// Package piverif implements the stateful Horn-clause verification engine:
// the translation of a resolved Applied-Pi process into Stateful Horn
// Clauses, symbolic nession elaboration, and the backward-search query
// resolver that derives an attack witness under a Dolev-Yao attacker
// extended with mutable state cells.
package piverif

import (
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates the five Message variants. Message is a tagged sum:
// every operation dispatches on Kind and recurses into children.
type Kind int

const (
	// KindVariable is a placeholder, unifiable with any term subject to a Guard.
	KindVariable Kind = iota
	// KindName is a public or known constant/atom.
	KindName
	// KindNonce is a freshly generated secret atom.
	KindNonce
	// KindFunction is a constructor application; arity is fixed by the
	// constructor's declaration.
	KindFunction
	// KindTuple is an ordered product of two or more members.
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "Variable"
	case KindName:
		return "Name"
	case KindNonce:
		return "Nonce"
	case KindFunction:
		return "Function"
	case KindTuple:
		return "Tuple"
	default:
		return "Unknown"
	}
}

// Message is an algebraic term. Variables are leaves; every term has a
// finite maximum depth; two terms are equal iff they agree in variant,
// name (if any), and recursively in children. Messages are immutable
// after construction.
type Message struct {
	kind    Kind
	name    string    // Variable/Name/Nonce identifier, or Function's functor name
	args    []Message // Function arguments (len == declared arity)
	members []Message // Tuple members (len >= 2)
}

// NewVariable returns a Variable leaf named name.
func NewVariable(name string) Message {
	return Message{kind: KindVariable, name: name}
}

// NewName returns a Name leaf.
func NewName(name string) Message {
	return Message{kind: KindName, name: name}
}

// NewNonce returns a Nonce leaf.
func NewNonce(name string) Message {
	return Message{kind: KindNonce, name: name}
}

// NewFunction returns a Function application. args is copied defensively.
func NewFunction(name string, args ...Message) Message {
	cp := make([]Message, len(args))
	copy(cp, args)
	return Message{kind: KindFunction, name: name, args: cp}
}

// NewTuple returns a Tuple of members. Panics if fewer than two members
// are given, matching the invariant that a Tuple has members[n>=2].
func NewTuple(members ...Message) Message {
	if len(members) < 2 {
		panic("piverif: NewTuple requires at least two members")
	}
	cp := make([]Message, len(members))
	copy(cp, members)
	return Message{kind: KindTuple, members: cp}
}

// Kind returns the message's variant tag.
func (m Message) Kind() Kind { return m.kind }

// Name returns the identifier for Variable/Name/Nonce, or the functor
// name for Function. It is meaningless for Tuple.
func (m Message) Name() string { return m.name }

// Args returns a Function's arguments, or nil for any other variant.
func (m Message) Args() []Message { return m.args }

// Members returns a Tuple's members, or nil for any other variant.
func (m Message) Members() []Message { return m.members }

// IsVariable reports whether m is a Variable leaf.
func (m Message) IsVariable() bool { return m.kind == KindVariable }

// children returns the ordered sub-terms of m, used by the structural
// recursions (Equal, Substitute, Variables, Depth) so they never need a
// type switch of their own.
func (m Message) children() []Message {
	switch m.kind {
	case KindFunction:
		return m.args
	case KindTuple:
		return m.members
	default:
		return nil
	}
}

// Equal reports strict structural equality: same variant, same name (for
// Variable/Name/Nonce/Function), same arity, and recursively equal
// children.
func (m Message) Equal(other Message) bool {
	if m.kind != other.kind {
		return false
	}
	switch m.kind {
	case KindVariable, KindName, KindNonce:
		return m.name == other.name
	case KindFunction:
		if m.name != other.name || len(m.args) != len(other.args) {
			return false
		}
		for i := range m.args {
			if !m.args[i].Equal(other.args[i]) {
				return false
			}
		}
		return true
	case KindTuple:
		if len(m.members) != len(other.members) {
			return false
		}
		for i := range m.members {
			if !m.members[i].Equal(other.members[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Depth returns the maximum nesting depth of m; a leaf has depth 1.
func (m Message) Depth() int {
	kids := m.children()
	if len(kids) == 0 {
		return 1
	}
	max := 0
	for _, k := range kids {
		if d := k.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Variables returns the set of variable-leaf names occurring in m, as a
// sorted slice so callers get deterministic iteration order (the teacher
// corpus favors ordered containers for reproducible test output over
// map-iteration order).
func (m Message) Variables() []string {
	set := map[string]struct{}{}
	m.collectVariables(set)
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (m Message) collectVariables(set map[string]struct{}) {
	if m.kind == KindVariable {
		set[m.name] = struct{}{}
		return
	}
	for _, k := range m.children() {
		k.collectVariables(set)
	}
}

// String renders m in a compact, deterministic, debug-friendly form.
func (m Message) String() string {
	switch m.kind {
	case KindVariable:
		return m.name
	case KindName:
		return m.name
	case KindNonce:
		return "~" + m.name
	case KindFunction:
		parts := make([]string, len(m.args))
		for i, a := range m.args {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s(%s)", m.name, strings.Join(parts, ","))
	case KindTuple:
		parts := make([]string, len(m.members))
		for i, a := range m.members {
			parts[i] = a.String()
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return "<invalid message>"
	}
}

// Substitute performs a capture-free, simultaneous replacement of every
// Variable leaf present as a key in sm. A leaf not present in sm is
// returned unchanged; an empty SigmaMap is the identity.
func (m Message) Substitute(sm SigmaMap) Message {
	if sm.Len() == 0 {
		return m
	}
	if m.kind == KindVariable {
		if repl, ok := sm.Lookup(m.name); ok {
			return repl
		}
		return m
	}
	kids := m.children()
	if len(kids) == 0 {
		return m
	}
	newKids := make([]Message, len(kids))
	changed := false
	for i, k := range kids {
		nk := k.Substitute(sm)
		newKids[i] = nk
		if !nk.Equal(k) {
			changed = true
		}
	}
	if !changed {
		return m
	}
	if m.kind == KindFunction {
		return Message{kind: KindFunction, name: m.name, args: newKids}
	}
	return Message{kind: KindTuple, members: newKids}
}
