package piverif

import "sort"

// Guard is a set of prohibited bindings: a map from an assignable
// (Variable-shaped) message to the set of messages it must never unify
// to. Every unification attempt consults the Guard; an otherwise-valid
// unifier is rejected if it reconciles a banned pair.
type Guard struct {
	banned map[string]map[string]Message
}

// EmptyGuard returns a Guard with no prohibitions.
func EmptyGuard() Guard {
	return Guard{banned: map[string]map[string]Message{}}
}

// Forbid returns a new Guard extending g with the prohibition that
// assignable must never unify with value.
func (g Guard) Forbid(assignable, value Message) Guard {
	out := g.clone()
	key := assignable.Name()
	if out.banned[key] == nil {
		out.banned[key] = map[string]Message{}
	}
	out.banned[key][value.String()] = value
	return out
}

// Union returns the guard containing every prohibition of g and other.
func (g Guard) Union(other Guard) Guard {
	out := g.clone()
	for k, vs := range other.banned {
		if out.banned[k] == nil {
			out.banned[k] = map[string]Message{}
		}
		for vk, v := range vs {
			out.banned[k][vk] = v
		}
	}
	return out
}

// Forbids reports whether binding assignable to value is prohibited.
func (g Guard) Forbids(assignable, value Message) bool {
	vs, ok := g.banned[assignable.Name()]
	if !ok {
		return false
	}
	_, banned := vs[value.String()]
	return banned
}

// Substitute applies sm to every assignable key and banned value,
// returning the resulting Guard.
func (g Guard) Substitute(sm SigmaMap) Guard {
	out := EmptyGuard()
	for key, vs := range g.banned {
		assignable := Message{kind: KindVariable, name: key}.Substitute(sm)
		for _, v := range vs {
			out = out.Forbid(assignable, v.Substitute(sm))
		}
	}
	return out
}

// Filter returns the subset of g's prohibitions whose assignable key is
// present in vars.
func (g Guard) Filter(vars map[string]struct{}) Guard {
	out := EmptyGuard()
	for key, vs := range g.banned {
		if _, ok := vars[key]; !ok {
			continue
		}
		for _, v := range vs {
			out = out.Forbid(Message{kind: KindVariable, name: key}, v)
		}
	}
	return out
}

// Equals reports whether g and other prohibit exactly the same bindings.
func (g Guard) Equals(other Guard) bool {
	if len(g.banned) != len(other.banned) {
		return false
	}
	for key, vs := range g.banned {
		ovs, ok := other.banned[key]
		if !ok || len(vs) != len(ovs) {
			return false
		}
		for vk := range vs {
			if _, ok := ovs[vk]; !ok {
				return false
			}
		}
	}
	return true
}

// IsEmpty reports whether g prohibits nothing.
func (g Guard) IsEmpty() bool {
	for _, vs := range g.banned {
		if len(vs) > 0 {
			return false
		}
	}
	return true
}

// String renders g deterministically for debugging and hashing.
func (g Guard) String() string {
	keys := make([]string, 0, len(g.banned))
	for k := range g.banned {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += "; "
		}
		vs := g.banned[k]
		vkeys := make([]string, 0, len(vs))
		for vk := range vs {
			vkeys = append(vkeys, vk)
		}
		sort.Strings(vkeys)
		out += k + " !-> " + joinStrings(vkeys, ",")
	}
	return out + "}"
}

func (g Guard) clone() Guard {
	out := Guard{banned: make(map[string]map[string]Message, len(g.banned))}
	for k, vs := range g.banned {
		cp := make(map[string]Message, len(vs))
		for vk, v := range vs {
			cp[vk] = v
		}
		out.banned[k] = cp
	}
	return out
}

func joinStrings(ss []string, sep string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}
