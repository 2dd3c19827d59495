package piverif

import "sort"

// SigmaMap is a substitution: a mapping Variable-name -> Message with
// unique keys, applied by simultaneous capture-free replacement. The
// empty SigmaMap is the identity. A SigmaMap tracks its "inserted
// variables" -- the free variables occurring in its range -- so callers
// can reason about freshness without recomputing it.
type SigmaMap struct {
	bindings map[string]Message
	inserted map[string]struct{}
}

// NewSigmaMap returns the empty (identity) SigmaMap.
func NewSigmaMap() SigmaMap {
	return SigmaMap{bindings: map[string]Message{}, inserted: map[string]struct{}{}}
}

// Len returns the number of bindings held by sm.
func (sm SigmaMap) Len() int { return len(sm.bindings) }

// Lookup returns the Message bound to name, if any.
func (sm SigmaMap) Lookup(name string) (Message, bool) {
	m, ok := sm.bindings[name]
	return m, ok
}

// Bind returns a new SigmaMap extending sm with name -> msg. It panics if
// name is already bound, matching the "unique keys" invariant -- callers
// that need to overwrite should build a fresh SigmaMap.
func (sm SigmaMap) Bind(name string, msg Message) SigmaMap {
	if _, exists := sm.bindings[name]; exists {
		panic("piverif: SigmaMap key " + name + " already bound")
	}
	out := sm.clone()
	out.bindings[name] = msg
	for _, v := range msg.Variables() {
		out.inserted[v] = struct{}{}
	}
	return out
}

// Merge returns a new SigmaMap with every binding of sm and other. It
// panics on key collision since the merge result would otherwise be
// ambiguous about which binding wins.
func (sm SigmaMap) Merge(other SigmaMap) SigmaMap {
	out := sm.clone()
	for k, v := range other.bindings {
		if _, exists := out.bindings[k]; exists {
			panic("piverif: SigmaMap merge collision on key " + k)
		}
		out.bindings[k] = v
	}
	for k := range other.inserted {
		out.inserted[k] = struct{}{}
	}
	return out
}

// Keys returns the bound variable names in sorted order.
func (sm SigmaMap) Keys() []string {
	out := make([]string, 0, len(sm.bindings))
	for k := range sm.bindings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// InsertedVariables returns the set of variable names appearing in the
// range of sm, optionally restricted to those also present in restrict
// (nil means unrestricted).
func (sm SigmaMap) InsertedVariables(restrict map[string]struct{}) []string {
	out := []string{}
	for v := range sm.inserted {
		if restrict != nil {
			if _, ok := restrict[v]; !ok {
				continue
			}
		}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (sm SigmaMap) clone() SigmaMap {
	out := SigmaMap{bindings: make(map[string]Message, len(sm.bindings)+1), inserted: make(map[string]struct{}, len(sm.inserted)+1)}
	for k, v := range sm.bindings {
		out.bindings[k] = v
	}
	for k := range sm.inserted {
		out.inserted[k] = struct{}{}
	}
	return out
}
