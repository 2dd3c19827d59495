package pilang

import (
	"fmt"

	"github.com/gitrdm/piverif/pkg/piverif"
)

// Resolve inlines every CallProcess in net.Main (and transitively inside
// expanded macro bodies) against net.Macros, producing a
// ResolvedNetwork whose Main contains no CallProcess. Each distinct
// macro invocation is alpha-renamed with a per-macro-name "@n" suffix
// (n starting at 1) applied to every name that invocation's body
// restricts with `new`, so that two invocations of the same macro never
// share a nonce identity -- including the first invocation, so a
// single-use macro's restricted names still carry a traceable "@1"
// witness suffix.
func Resolve(net *piverif.Network) (*piverif.ResolvedNetwork, error) {
	r := &resolver{net: net, counters: map[string]int{}, renamed: map[string]string{}}
	main, err := r.expand(net.Main, map[string]piverif.Term{}, 0)
	if err != nil {
		return nil, err
	}
	resolved := &piverif.Network{
		Types:        net.Types,
		Frees:        net.Frees,
		Consts:       net.Consts,
		Constructors: net.Constructors,
		Destructors:  net.Destructors,
		Tables:       net.Tables,
		Macros:       net.Macros,
		Queries:      renameQueries(net.Queries, r.renamed),
		Main:         main,
		Nonces:       collectRestrictionNames(main),
	}
	return &piverif.ResolvedNetwork{Network: resolved}, nil
}

// collectRestrictionNames walks a fully-expanded (macro-free) Process
// tree and returns the set of every `new`-bound name it declares, under
// its final, post-rename spelling. Translate's NewRestriction case emits
// facts about exactly these names (as Nonce messages), so this is the
// set a Query/WhenClause referencing a restricted name by its final
// spelling must be checked against.
func collectRestrictionNames(p piverif.Process) map[string]struct{} {
	out := map[string]struct{}{}
	collectRestrictionNamesInto(p, out)
	return out
}

func collectRestrictionNamesInto(p piverif.Process, out map[string]struct{}) {
	switch node := p.(type) {
	case piverif.NilProcess:
	case *piverif.NewRestriction:
		out[node.Name] = struct{}{}
		collectRestrictionNamesInto(node.Next, out)
	case *piverif.InProcess:
		collectRestrictionNamesInto(node.Next, out)
	case *piverif.OutProcess:
		collectRestrictionNamesInto(node.Next, out)
	case *piverif.LetProcess:
		collectRestrictionNamesInto(node.Then, out)
		if node.Else != nil {
			collectRestrictionNamesInto(node.Else, out)
		}
	case *piverif.IfProcess:
		collectRestrictionNamesInto(node.Then, out)
		if node.Else != nil {
			collectRestrictionNamesInto(node.Else, out)
		}
	case *piverif.MutateProcess:
		collectRestrictionNamesInto(node.Next, out)
	case *piverif.InsertProcess:
		collectRestrictionNamesInto(node.Next, out)
	case *piverif.GetProcess:
		collectRestrictionNamesInto(node.Then, out)
	case *piverif.EventProcess:
		collectRestrictionNamesInto(node.Next, out)
	case *piverif.ReplicateProcess:
		collectRestrictionNamesInto(node.Body, out)
	case *piverif.ParallelProcess:
		for _, b := range node.Branches {
			collectRestrictionNamesInto(b, out)
		}
	case *piverif.GroupProcess:
		collectRestrictionNamesInto(node.Body, out)
	}
}

type resolver struct {
	net      *piverif.Network
	counters map[string]int
	// renamed accumulates every original-name -> suffixed-name mapping
	// produced by alphaRenameRestrictions across every macro invocation
	// expanded during this Resolve call, so that Query.Target/
	// WhenClause.Value -- which reference a macro's restricted names by
	// their bare, pre-expansion spelling -- can be rewritten to match
	// the names Main actually carries after expansion.
	renamed map[string]string
}

const maxExpansionDepth = 64

// expand recursively inlines CallProcess nodes. subst maps a macro's
// formal parameter names to the actual Terms supplied at its call site,
// applied to every Term the macro body mentions.
func (r *resolver) expand(p piverif.Process, subst map[string]piverif.Term, depth int) (piverif.Process, error) {
	if depth > maxExpansionDepth {
		return nil, fmt.Errorf("macro expansion exceeded depth %d; recursive let-definition?", maxExpansionDepth)
	}

	switch node := p.(type) {
	case piverif.NilProcess:
		return node, nil

	case *piverif.NewRestriction:
		next, err := r.expand(node.Next, subst, depth)
		if err != nil {
			return nil, err
		}
		return &piverif.NewRestriction{Name: node.Name, Type: node.Type, Next: next}, nil

	case *piverif.InProcess:
		next, err := r.expand(node.Next, subst, depth)
		if err != nil {
			return nil, err
		}
		return &piverif.InProcess{
			Channel: substituteTerm(node.Channel, subst),
			Pattern: node.Pattern,
			Next:    next,
		}, nil

	case *piverif.OutProcess:
		next, err := r.expand(node.Next, subst, depth)
		if err != nil {
			return nil, err
		}
		return &piverif.OutProcess{
			Channel: substituteTerm(node.Channel, subst),
			Message: substituteTerm(node.Message, subst),
			Next:    next,
		}, nil

	case *piverif.LetProcess:
		then, err := r.expand(node.Then, subst, depth)
		if err != nil {
			return nil, err
		}
		var elseProc piverif.Process
		if node.Else != nil {
			elseProc, err = r.expand(node.Else, subst, depth)
			if err != nil {
				return nil, err
			}
		}
		return &piverif.LetProcess{
			Pattern: node.Pattern,
			Value:   substituteTerm(node.Value, subst),
			Then:    then,
			Else:    elseProc,
		}, nil

	case *piverif.IfProcess:
		then, err := r.expand(node.Then, subst, depth)
		if err != nil {
			return nil, err
		}
		var elseProc piverif.Process
		if node.Else != nil {
			elseProc, err = r.expand(node.Else, subst, depth)
			if err != nil {
				return nil, err
			}
		}
		return &piverif.IfProcess{
			Left:  substituteTerm(node.Left, subst),
			Right: substituteTerm(node.Right, subst),
			Then:  then,
			Else:  elseProc,
		}, nil

	case *piverif.MutateProcess:
		next, err := r.expand(node.Next, subst, depth)
		if err != nil {
			return nil, err
		}
		return &piverif.MutateProcess{Cell: node.Cell, Value: substituteTerm(node.Value, subst), Next: next}, nil

	case *piverif.InsertProcess:
		next, err := r.expand(node.Next, subst, depth)
		if err != nil {
			return nil, err
		}
		args := make([]piverif.Term, len(node.Args))
		for i, a := range node.Args {
			args[i] = substituteTerm(a, subst)
		}
		return &piverif.InsertProcess{Table: node.Table, Args: args, Next: next}, nil

	case *piverif.GetProcess:
		then, err := r.expand(node.Then, subst, depth)
		if err != nil {
			return nil, err
		}
		return &piverif.GetProcess{Table: node.Table, Patterns: node.Patterns, Then: then}, nil

	case *piverif.EventProcess:
		next, err := r.expand(node.Next, subst, depth)
		if err != nil {
			return nil, err
		}
		args := make([]piverif.Term, len(node.Args))
		for i, a := range node.Args {
			args[i] = substituteTerm(a, subst)
		}
		return &piverif.EventProcess{Name: node.Name, Args: args, Next: next}, nil

	case *piverif.ReplicateProcess:
		body, err := r.expand(node.Body, subst, depth)
		if err != nil {
			return nil, err
		}
		return &piverif.ReplicateProcess{Body: body}, nil

	case *piverif.ParallelProcess:
		branches := make([]piverif.Process, len(node.Branches))
		for i, b := range node.Branches {
			expanded, err := r.expand(b, subst, depth)
			if err != nil {
				return nil, err
			}
			branches[i] = expanded
		}
		return &piverif.ParallelProcess{Branches: branches}, nil

	case *piverif.GroupProcess:
		body, err := r.expand(node.Body, subst, depth)
		if err != nil {
			return nil, err
		}
		return &piverif.GroupProcess{Body: body}, nil

	case *piverif.CallProcess:
		macro, ok := r.net.Macros[node.Name]
		if !ok {
			return nil, fmt.Errorf("call to undeclared process %q", node.Name)
		}
		if len(macro.Params) != len(node.Args) {
			return nil, fmt.Errorf("call to %q supplies %d arguments, expected %d", node.Name, len(node.Args), len(macro.Params))
		}

		r.counters[node.Name]++
		invocation := r.counters[node.Name]
		suffix := fmt.Sprintf("@%d", invocation)

		callSubst := make(map[string]piverif.Term, len(macro.Params))
		for i, param := range macro.Params {
			callSubst[param] = substituteTerm(node.Args[i], subst)
		}

		renamed := alphaRenameRestrictions(macro.Body, suffix, r.renamed)
		return r.expand(renamed, callSubst, depth+1)

	default:
		return nil, fmt.Errorf("unknown process node in macro expansion")
	}
}

// substituteTerm replaces every TermVariable/TermName in t whose name
// appears in subst with the supplied actual Term; table/tuple/func
// structure is rebuilt recursively.
func substituteTerm(t piverif.Term, subst map[string]piverif.Term) piverif.Term {
	switch t.Kind {
	case piverif.TermVariable, piverif.TermName:
		if repl, ok := subst[t.Name]; ok {
			return repl
		}
		return t
	case piverif.TermTuple:
		members := make([]piverif.Term, len(t.Members))
		for i, m := range t.Members {
			members[i] = substituteTerm(m, subst)
		}
		return piverif.NewTermTuple(members...)
	case piverif.TermFunc:
		args := make([]piverif.Term, len(t.Args))
		for i, a := range t.Args {
			args[i] = substituteTerm(a, subst)
		}
		return piverif.NewTermFunc(t.Name, args...)
	default:
		return t
	}
}

// alphaRenameRestrictions rewrites every name a `new` binds within body
// (and every reference to it) by appending suffix, so distinct
// invocations of the same macro never alias nonce identities. Every
// mapping it produces is also merged into global, so that a Query
// referencing one of these names by its original spelling can later be
// rewritten to match.
func alphaRenameRestrictions(body piverif.Process, suffix string, global map[string]string) piverif.Process {
	renamed := map[string]string{}
	out := renameProcess(body, suffix, renamed)
	for k, v := range renamed {
		global[k] = v
	}
	return out
}

// renameQueries rewrites every Query's Target (and WhenClause.Value, if
// present) against renamed, the accumulated original-name ->
// suffixed-name mapping every macro invocation produced. A query that
// names a macro's `new`-bound restriction by its bare, pre-expansion
// name must resolve to the same suffixed identity Main actually carries
// after expansion, or the query target falls back to an unbound
// Variable and never matches anything the protocol actually produces.
func renameQueries(queries []piverif.Query, renamed map[string]string) []piverif.Query {
	out := make([]piverif.Query, len(queries))
	for i, q := range queries {
		out[i] = piverif.Query{
			Target: renameTerm(q.Target, renamed),
		}
		if q.When != nil {
			out[i].When = &piverif.WhenClause{
				Cell:  q.When.Cell,
				Value: renameTerm(q.When.Value, renamed),
			}
		}
	}
	return out
}

func renameProcess(p piverif.Process, suffix string, renamed map[string]string) piverif.Process {
	switch node := p.(type) {
	case piverif.NilProcess:
		return node
	case *piverif.NewRestriction:
		newName := node.Name + suffix
		renamed[node.Name] = newName
		return &piverif.NewRestriction{Name: newName, Type: node.Type, Next: renameProcess(node.Next, suffix, renamed)}
	case *piverif.InProcess:
		return &piverif.InProcess{
			Channel: renameTerm(node.Channel, renamed),
			Pattern: node.Pattern,
			Next:    renameProcess(node.Next, suffix, renamed),
		}
	case *piverif.OutProcess:
		return &piverif.OutProcess{
			Channel: renameTerm(node.Channel, renamed),
			Message: renameTerm(node.Message, renamed),
			Next:    renameProcess(node.Next, suffix, renamed),
		}
	case *piverif.LetProcess:
		var elseProc piverif.Process
		if node.Else != nil {
			elseProc = renameProcess(node.Else, suffix, renamed)
		}
		return &piverif.LetProcess{
			Pattern: node.Pattern,
			Value:   renameTerm(node.Value, renamed),
			Then:    renameProcess(node.Then, suffix, renamed),
			Else:    elseProc,
		}
	case *piverif.IfProcess:
		var elseProc piverif.Process
		if node.Else != nil {
			elseProc = renameProcess(node.Else, suffix, renamed)
		}
		return &piverif.IfProcess{
			Left:  renameTerm(node.Left, renamed),
			Right: renameTerm(node.Right, renamed),
			Then:  renameProcess(node.Then, suffix, renamed),
			Else:  elseProc,
		}
	case *piverif.MutateProcess:
		return &piverif.MutateProcess{Cell: node.Cell, Value: renameTerm(node.Value, renamed), Next: renameProcess(node.Next, suffix, renamed)}
	case *piverif.InsertProcess:
		args := make([]piverif.Term, len(node.Args))
		for i, a := range node.Args {
			args[i] = renameTerm(a, renamed)
		}
		return &piverif.InsertProcess{Table: node.Table, Args: args, Next: renameProcess(node.Next, suffix, renamed)}
	case *piverif.GetProcess:
		return &piverif.GetProcess{Table: node.Table, Patterns: node.Patterns, Then: renameProcess(node.Then, suffix, renamed)}
	case *piverif.EventProcess:
		args := make([]piverif.Term, len(node.Args))
		for i, a := range node.Args {
			args[i] = renameTerm(a, renamed)
		}
		return &piverif.EventProcess{Name: node.Name, Args: args, Next: renameProcess(node.Next, suffix, renamed)}
	case *piverif.ReplicateProcess:
		return &piverif.ReplicateProcess{Body: renameProcess(node.Body, suffix, renamed)}
	case *piverif.ParallelProcess:
		branches := make([]piverif.Process, len(node.Branches))
		for i, b := range node.Branches {
			branches[i] = renameProcess(b, suffix, renamed)
		}
		return &piverif.ParallelProcess{Branches: branches}
	case *piverif.GroupProcess:
		return &piverif.GroupProcess{Body: renameProcess(node.Body, suffix, renamed)}
	case *piverif.CallProcess:
		args := make([]piverif.Term, len(node.Args))
		for i, a := range node.Args {
			args[i] = renameTerm(a, renamed)
		}
		return &piverif.CallProcess{Name: node.Name, Args: args}
	default:
		return p
	}
}

func renameTerm(t piverif.Term, renamed map[string]string) piverif.Term {
	switch t.Kind {
	case piverif.TermVariable:
		if n, ok := renamed[t.Name]; ok {
			return piverif.NewTermVariable(n)
		}
		return t
	case piverif.TermName:
		if n, ok := renamed[t.Name]; ok {
			return piverif.NewTermName(n)
		}
		return t
	case piverif.TermTuple:
		members := make([]piverif.Term, len(t.Members))
		for i, m := range t.Members {
			members[i] = renameTerm(m, renamed)
		}
		return piverif.NewTermTuple(members...)
	case piverif.TermFunc:
		args := make([]piverif.Term, len(t.Args))
		for i, a := range t.Args {
			args[i] = renameTerm(a, renamed)
		}
		return piverif.NewTermFunc(t.Name, args...)
	default:
		return t
	}
}
