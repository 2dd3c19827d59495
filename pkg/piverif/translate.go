package piverif

import "fmt"

// Translation is the output of translating a ResolvedNetwork: the
// StateConsistentRule and StateTransferringRule sets a NessionManager
// elaborates, and the initial cell states any nession built from it must
// start from.
type Translation struct {
	SCRs          []*StateConsistentRule
	STRs          []*StateTransferringRule
	InitialStates []State
}

// translator walks a resolved process tree, emitting one rule per
// syntactic send/receive/mutate/destructor/constructor site, per
// spec.md section 4.4. Channel communication is modeled two ways: a
// channel statically known public (a non-private free name, or a
// variable -- values received over a public channel are themselves
// attacker-observable) directly produces a Know fact on output. A
// restricted channel (the Nonce a `new c: channel` introduces, or an
// explicitly private free name) is instead modeled as a synthetic state
// cell: writes and reads rendezvous through the cell but never directly
// enter the attacker's knowledge, so a message that only ever crosses a
// still-private channel cannot leak regardless of process interleaving
// -- this is what the FalseAttackAvoidance scenario requires.
type translator struct {
	rn       *ResolvedNetwork
	scrs     []*StateConsistentRule
	strs     []*StateTransferringRule
	nextID   int64
	cellKeys map[string]struct{}
}

// Translate runs the section-4.4 translation over rn, producing every
// rule the Network's declarations and main process induce.
func Translate(rn *ResolvedNetwork) (*Translation, error) {
	tr := &translator{rn: rn, cellKeys: map[string]struct{}{}}
	tr.emitFreesAndConsts()
	tr.emitConstructors()
	tr.emitDestructors()

	if err := tr.translateProcess(rn.Main, nil, EmptyGuard(), NewSnapshotTree(), map[string]Message{}); err != nil {
		return nil, err
	}

	initial := make([]State, 0, len(tr.cellKeys))
	for key := range tr.cellKeys {
		initial = append(initial, NewState(key, NewName("empty")))
	}

	return &Translation{SCRs: tr.scrs, STRs: tr.strs, InitialStates: initial}, nil
}

func (tr *translator) nextTag() int64 {
	tr.nextID++
	return tr.nextID
}

func (tr *translator) emitFreesAndConsts() {
	for _, f := range tr.rn.Frees {
		if f.Private {
			continue
		}
		tr.scrs = append(tr.scrs, NewSCR(tr.nextTag(), nil, KnowEvent(NewName(f.Name)), EmptyGuard(), NewSnapshotTree()))
	}
	for _, c := range tr.rn.Consts {
		tr.scrs = append(tr.scrs, NewSCR(tr.nextTag(), nil, KnowEvent(NewName(c.Name)), EmptyGuard(), NewSnapshotTree()))
	}
}

func (tr *translator) emitConstructors() {
	for _, c := range tr.rn.Constructors {
		premises := make([]Event, len(c.ParamTypes))
		args := make([]Message, len(c.ParamTypes))
		seen := map[string]int{}
		for i, t := range c.ParamTypes {
			seen[t]++
			name := fmt.Sprintf("%s_%d", t, seen[t])
			v := NewVariable(name)
			premises[i] = KnowEvent(v)
			args[i] = v
		}
		result := KnowEvent(NewFunction(c.Name, args...))
		tr.scrs = append(tr.scrs, NewSCR(tr.nextTag(), premises, result, EmptyGuard(), NewSnapshotTree()))
	}
}

func (tr *translator) emitDestructors() {
	for _, d := range tr.rn.Destructors {
		locals := map[string]Message{}
		for _, v := range d.Vars {
			locals[v] = NewVariable(v)
		}
		patMsg := tr.rn.TermToMessage(d.Pattern, locals)
		premises := make([]Event, len(patMsg.Args()))
		for i, a := range patMsg.Args() {
			premises[i] = KnowEvent(a)
		}
		result := KnowEvent(tr.rn.TermToMessage(d.Result, locals))
		tr.scrs = append(tr.scrs, NewSCR(tr.nextTag(), premises, result, EmptyGuard(), NewSnapshotTree()))
	}
}

// isPublicChannel reports whether msg should be treated as an
// attacker-observable channel: a non-private free name, or any
// variable (a value the attacker itself supplied or could have
// observed). A Nonce (a restricted `new ...: channel`) is never public.
func (tr *translator) isPublicChannel(msg Message) bool {
	switch msg.Kind() {
	case KindVariable:
		return true
	case KindName:
		if f, ok := tr.rn.Frees[msg.Name()]; ok {
			return !f.Private
		}
		return true
	default:
		return false
	}
}

func cellKeyForChannel(msg Message) string {
	return "chan$" + msg.String()
}

func cellKeyForTable(name string) string {
	return "table$" + name
}

func wildcardSnapshot(cellKey string) Snapshot {
	return NewSnapshot(NewState(cellKey, NewVariable(cellKey+"$prev")))
}

func copyLocals(locals map[string]Message) map[string]Message {
	out := make(map[string]Message, len(locals))
	for k, v := range locals {
		out[k] = v
	}
	return out
}

// bindPatternViaCell resolves pattern against a fresh-variable
// environment, records the (cellKey -> pattern shape) requirement as a
// Snapshot, and returns the locals extended with every pattern variable
// bound to its own fresh Variable so later terms referencing it resolve
// consistently.
func (tr *translator) bindPatternViaCell(cellKey string, pattern Term, locals map[string]Message, snaps SnapshotTree) (map[string]Message, SnapshotTree) {
	extended := copyLocals(locals)
	for _, v := range TermVariables(pattern) {
		if _, already := extended[v]; !already {
			extended[v] = NewVariable(v)
		}
	}
	patMsg := tr.rn.TermToMessage(pattern, extended)
	tr.cellKeys[cellKey] = struct{}{}
	return extended, snaps.With(NewSnapshot(NewState(cellKey, patMsg)))
}

// translateProcess recursively walks p, emitting one SCR per reachable
// output on a public channel, one STR per reachable output on a
// restricted channel/table/mutate site, and threading locals/premises/
// guard/snaps along each straight-line continuation.
func (tr *translator) translateProcess(p Process, premises []Event, guard Guard, snaps SnapshotTree, locals map[string]Message) error {
	switch node := p.(type) {
	case NilProcess:
		return nil

	case *NewRestriction:
		next := copyLocals(locals)
		next[node.Name] = NewNonce(node.Name)
		nextPremises := append(append([]Event{}, premises...), NewEvent(New, NewNonce(node.Name)))
		return tr.translateProcess(node.Next, nextPremises, guard, snaps, next)

	case *InProcess:
		chMsg := tr.rn.TermToMessage(node.Channel, locals)
		if tr.isPublicChannel(chMsg) {
			next := copyLocals(locals)
			for _, v := range TermVariables(node.Pattern) {
				next[v] = NewVariable(v)
			}
			patMsg := tr.rn.TermToMessage(node.Pattern, next)
			nextPremises := append(append([]Event{}, premises...), KnowEvent(patMsg))
			return tr.translateProcess(node.Next, nextPremises, guard, snaps, next)
		}
		cellKey := cellKeyForChannel(chMsg)
		next, nextSnaps := tr.bindPatternViaCell(cellKey, node.Pattern, locals, snaps)
		return tr.translateProcess(node.Next, premises, guard, nextSnaps, next)

	case *OutProcess:
		chMsg := tr.rn.TermToMessage(node.Channel, locals)
		msgMsg := tr.rn.TermToMessage(node.Message, locals)
		if tr.isPublicChannel(chMsg) {
			tr.scrs = append(tr.scrs, NewSCR(tr.nextTag(), premises, KnowEvent(msgMsg), guard, snaps))
		} else {
			cellKey := cellKeyForChannel(chMsg)
			tr.cellKeys[cellKey] = struct{}{}
			tr.strs = append(tr.strs, NewSTR(premises, []Transformation{{
				AfterPoint: wildcardSnapshot(cellKey),
				NewValue:   NewState(cellKey, msgMsg),
			}}, guard, snaps))
		}
		return tr.translateProcess(node.Next, premises, guard, snaps, locals)

	case *LetProcess:
		return tr.translateLet(node, premises, guard, snaps, locals)

	case *IfProcess:
		return tr.translateIf(node, premises, guard, snaps, locals)

	case *MutateProcess:
		valMsg := tr.rn.TermToMessage(node.Value, locals)
		tr.cellKeys[node.Cell] = struct{}{}
		tr.strs = append(tr.strs, NewSTR(premises, []Transformation{{
			AfterPoint: wildcardSnapshot(node.Cell),
			NewValue:   NewState(node.Cell, valMsg),
		}}, guard, snaps))
		return tr.translateProcess(node.Next, premises, guard, snaps, locals)

	case *InsertProcess:
		args := make([]Message, len(node.Args))
		for i, a := range node.Args {
			args[i] = tr.rn.TermToMessage(a, locals)
		}
		var rowMsg Message
		if len(args) == 1 {
			rowMsg = args[0]
		} else {
			rowMsg = NewTuple(args...)
		}
		cellKey := cellKeyForTable(node.Table)
		tr.cellKeys[cellKey] = struct{}{}
		tr.strs = append(tr.strs, NewSTR(premises, []Transformation{{
			AfterPoint: wildcardSnapshot(cellKey),
			NewValue:   NewState(cellKey, rowMsg),
		}}, guard, snaps))
		return tr.translateProcess(node.Next, premises, guard, snaps, locals)

	case *GetProcess:
		var pattern Term
		if len(node.Patterns) == 1 {
			pattern = node.Patterns[0]
		} else {
			pattern = NewTermTuple(node.Patterns...)
		}
		cellKey := cellKeyForTable(node.Table)
		next, nextSnaps := tr.bindPatternViaCell(cellKey, pattern, locals, snaps)
		return tr.translateProcess(node.Then, premises, guard, nextSnaps, next)

	case *EventProcess:
		return tr.translateProcess(node.Next, premises, guard, snaps, locals)

	case *ReplicateProcess:
		return tr.translateProcess(node.Body, premises, guard, snaps, locals)

	case *ParallelProcess:
		for _, branch := range node.Branches {
			if err := tr.translateProcess(branch, append([]Event{}, premises...), guard, snaps, copyLocals(locals)); err != nil {
				return err
			}
		}
		return nil

	case *GroupProcess:
		return tr.translateProcess(node.Body, premises, guard, snaps, locals)

	case *CallProcess:
		return NewModelError(node.Name, "unresolved macro call reached the translator")

	default:
		return NewInvariantError("Translate", "unknown Process variant")
	}
}

func (tr *translator) translateLet(node *LetProcess, premises []Event, guard Guard, snaps SnapshotTree, locals map[string]Message) error {
	valMsg := tr.rn.TermToMessage(node.Value, locals)

	switch node.Pattern.Kind {
	case TermVariable:
		next := copyLocals(locals)
		next[node.Pattern.Name] = valMsg
		if err := tr.translateProcess(node.Then, premises, guard, snaps, next); err != nil {
			return err
		}
	case TermTuple:
		if valMsg.Kind() != KindTuple || len(valMsg.Members()) != len(node.Pattern.Members) {
			return NewModelError("let", "pattern/value arity mismatch; cannot type this let-binding")
		}
		next := copyLocals(locals)
		for i, m := range node.Pattern.Members {
			if m.Kind != TermVariable {
				return NewModelError("let", "nested non-variable tuple patterns are not supported")
			}
			next[m.Name] = valMsg.Members()[i]
		}
		if err := tr.translateProcess(node.Then, premises, guard, snaps, next); err != nil {
			return err
		}
	default:
		if err := tr.translateProcess(node.Then, premises, guard, snaps, locals); err != nil {
			return err
		}
	}

	if node.Else != nil {
		return tr.translateProcess(node.Else, premises, guard, snaps, locals)
	}
	return nil
}

func (tr *translator) translateIf(node *IfProcess, premises []Event, guard Guard, snaps SnapshotTree, locals map[string]Message) error {
	leftMsg := tr.rn.TermToMessage(node.Left, locals)
	rightMsg := tr.rn.TermToMessage(node.Right, locals)

	sf := NewSigmaFactory()
	if leftMsg.DetermineUnifiableSubstitution(rightMsg, guard, guard, sf) {
		fwd := sf.CreateForwardMap()
		next := copyLocals(locals)
		for _, v := range append(append([]string{}, TermVariables(node.Left)...), TermVariables(node.Right)...) {
			if m, ok := fwd.Lookup(v); ok {
				next[v] = m
			}
		}
		if err := tr.translateProcess(node.Then, premises, guard.Union(EmptyGuard()), snaps, next); err != nil {
			return err
		}
	}
	if node.Else != nil {
		elseGuard := guard
		if leftMsg.IsVariable() {
			elseGuard = guard.Forbid(leftMsg, rightMsg)
		} else if rightMsg.IsVariable() {
			elseGuard = guard.Forbid(rightMsg, leftMsg)
		}
		return tr.translateProcess(node.Else, premises, elseGuard, snaps, locals)
	}
	return nil
}
