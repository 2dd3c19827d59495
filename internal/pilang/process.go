package pilang

import "github.com/gitrdm/piverif/pkg/piverif"

// parseTerm parses a term in a purely-reference context (no locally
// bound variables): every bare identifier resolves to TermName, letting
// the resolver's symbol tables settle whether it is a free name, a
// constant, or -- for an unrecognized identifier occurring in a process
// built from a macro parameter -- a variable.
func (p *Parser) parseTerm() (piverif.Term, error) {
	return p.parseTermWithVars(map[string]bool{})
}

// parseTermWithVars parses a term, treating any identifier in vars as a
// TermVariable and every other identifier as a TermName.
func (p *Parser) parseTermWithVars(vars map[string]bool) (piverif.Term, error) {
	if p.isPunct("(") {
		p.next()
		first, err := p.parseTermWithVars(vars)
		if err != nil {
			return piverif.Term{}, err
		}
		members := []piverif.Term{first}
		for p.isPunct(",") {
			p.next()
			m, err := p.parseTermWithVars(vars)
			if err != nil {
				return piverif.Term{}, err
			}
			members = append(members, m)
		}
		if err := p.expectPunct(")"); err != nil {
			return piverif.Term{}, err
		}
		if len(members) == 1 {
			return members[0], nil
		}
		return piverif.NewTermTuple(members...), nil
	}

	name, err := p.expectIdent()
	if err != nil {
		return piverif.Term{}, err
	}
	if p.isPunct("(") {
		p.next()
		var args []piverif.Term
		for !p.isPunct(")") {
			a, err := p.parseTermWithVars(vars)
			if err != nil {
				return piverif.Term{}, err
			}
			args = append(args, a)
			if p.isPunct(",") {
				p.next()
			}
		}
		p.next()
		return piverif.NewTermFunc(name, args...), nil
	}
	if vars[name] {
		return piverif.NewTermVariable(name), nil
	}
	return piverif.NewTermName(name), nil
}

// parsePattern parses a term occurring in a binding position (new's
// declared name, in/get/let's pattern): every bare identifier not
// already bound in locals introduces a fresh TermVariable and is added
// to locals so later references in the same process resolve to it.
func (p *Parser) parsePattern(locals map[string]bool) (piverif.Term, error) {
	if p.isPunct("(") {
		p.next()
		first, err := p.parsePattern(locals)
		if err != nil {
			return piverif.Term{}, err
		}
		members := []piverif.Term{first}
		for p.isPunct(",") {
			p.next()
			m, err := p.parsePattern(locals)
			if err != nil {
				return piverif.Term{}, err
			}
			members = append(members, m)
		}
		if err := p.expectPunct(")"); err != nil {
			return piverif.Term{}, err
		}
		if len(members) == 1 {
			return members[0], nil
		}
		return piverif.NewTermTuple(members...), nil
	}
	name, err := p.expectIdent()
	if err != nil {
		return piverif.Term{}, err
	}
	if p.isPunct("(") {
		p.next()
		var args []piverif.Term
		for !p.isPunct(")") {
			a, err := p.parsePattern(locals)
			if err != nil {
				return piverif.Term{}, err
			}
			args = append(args, a)
			if p.isPunct(",") {
				p.next()
			}
		}
		p.next()
		return piverif.NewTermFunc(name, args...), nil
	}
	locals[name] = true
	return piverif.NewTermVariable(name), nil
}

// parseProcess parses a process term, threading locals (the set of
// identifiers already bound as variables in this branch) so later
// sibling terms classify references correctly.
func (p *Parser) parseProcess(locals map[string]bool) (piverif.Process, error) {
	left, err := p.parseProcessAtom(locals)
	if err != nil {
		return nil, err
	}
	if p.isPunct("|") {
		branches := []piverif.Process{left}
		for p.isPunct("|") {
			p.next()
			next, err := p.parseProcessAtom(copyBoolSet(locals))
			if err != nil {
				return nil, err
			}
			branches = append(branches, next)
		}
		return &piverif.ParallelProcess{Branches: branches}, nil
	}
	return left, nil
}

func copyBoolSet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (p *Parser) parseProcessAtom(locals map[string]bool) (piverif.Process, error) {
	switch {
	case p.isPunct("!"):
		p.next()
		body, err := p.parseProcessAtom(locals)
		if err != nil {
			return nil, err
		}
		return &piverif.ReplicateProcess{Body: body}, nil

	case p.isPunct("("):
		p.next()
		body, err := p.parseProcess(locals)
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &piverif.GroupProcess{Body: body}, nil

	case p.isKeyword("new"):
		return p.parseNew(locals)
	case p.isKeyword("in"):
		return p.parseIn(locals)
	case p.isKeyword("out"):
		return p.parseOut(locals)
	case p.isKeyword("let"):
		return p.parseLetProcess(locals)
	case p.isKeyword("if"):
		return p.parseIfProcess(locals)
	case p.isKeyword("mutate"):
		return p.parseMutate(locals)
	case p.isKeyword("insert"):
		return p.parseInsert(locals)
	case p.isKeyword("get"):
		return p.parseGet(locals)
	case p.isKeyword("event"):
		return p.parseEvent(locals)
	case p.cur().Kind == TokIdent:
		return p.parseCallOrNil(locals)
	default:
		return piverif.NilProcess{}, nil
	}
}

func (p *Parser) parseNew(locals map[string]bool) (piverif.Process, error) {
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	typ, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	locals[name] = true
	next, err := p.parseContinuation(locals)
	if err != nil {
		return nil, err
	}
	return &piverif.NewRestriction{Name: name, Type: typ, Next: next}, nil
}

func (p *Parser) parseIn(locals map[string]bool) (piverif.Process, error) {
	p.next()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	channel, err := p.parseTermWithVars(locals)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	pattern, err := p.parseInPattern(locals)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	next, err := p.parseContinuation(locals)
	if err != nil {
		return nil, err
	}
	return &piverif.InProcess{Channel: channel, Pattern: pattern, Next: next}, nil
}

// parseInPattern parses in()'s pattern: `name: type` or `(p1,p2,...)`,
// each leaf binding a fresh variable.
func (p *Parser) parseInPattern(locals map[string]bool) (piverif.Term, error) {
	if p.isPunct("(") {
		p.next()
		first, err := p.parseInPattern(locals)
		if err != nil {
			return piverif.Term{}, err
		}
		members := []piverif.Term{first}
		for p.isPunct(",") {
			p.next()
			m, err := p.parseInPattern(locals)
			if err != nil {
				return piverif.Term{}, err
			}
			members = append(members, m)
		}
		if err := p.expectPunct(")"); err != nil {
			return piverif.Term{}, err
		}
		if len(members) == 1 {
			return members[0], nil
		}
		return piverif.NewTermTuple(members...), nil
	}
	name, err := p.expectIdent()
	if err != nil {
		return piverif.Term{}, err
	}
	if p.isPunct(":") {
		p.next()
		if _, err := p.expectIdent(); err != nil {
			return piverif.Term{}, err
		}
	}
	locals[name] = true
	return piverif.NewTermVariable(name), nil
}

func (p *Parser) parseOut(locals map[string]bool) (piverif.Process, error) {
	p.next()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	channel, err := p.parseTermWithVars(locals)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	msg, err := p.parseTermWithVars(locals)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	next, err := p.parseContinuation(locals)
	if err != nil {
		return nil, err
	}
	return &piverif.OutProcess{Channel: channel, Message: msg, Next: next}, nil
}

func (p *Parser) parseLetProcess(locals map[string]bool) (piverif.Process, error) {
	p.next()
	patternLocals := copyBoolSet(locals)
	pattern, err := p.parsePattern(patternLocals)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	value, err := p.parseTermWithVars(locals)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	then, err := p.parseProcess(patternLocals)
	if err != nil {
		return nil, err
	}
	var elseProc piverif.Process
	if p.isKeyword("else") {
		p.next()
		elseProc, err = p.parseProcess(copyBoolSet(locals))
		if err != nil {
			return nil, err
		}
	}
	return &piverif.LetProcess{Pattern: pattern, Value: value, Then: then, Else: elseProc}, nil
}

func (p *Parser) parseIfProcess(locals map[string]bool) (piverif.Process, error) {
	p.next()
	left, err := p.parseTermWithVars(locals)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	right, err := p.parseTermWithVars(locals)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("then"); err != nil {
		return nil, err
	}
	then, err := p.parseProcess(copyBoolSet(locals))
	if err != nil {
		return nil, err
	}
	var elseProc piverif.Process
	if p.isKeyword("else") {
		p.next()
		elseProc, err = p.parseProcess(copyBoolSet(locals))
		if err != nil {
			return nil, err
		}
	}
	return &piverif.IfProcess{Left: left, Right: right, Then: then, Else: elseProc}, nil
}

func (p *Parser) parseMutate(locals map[string]bool) (piverif.Process, error) {
	p.next()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cell, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	value, err := p.parseTermWithVars(locals)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	next, err := p.parseContinuation(locals)
	if err != nil {
		return nil, err
	}
	return &piverif.MutateProcess{Cell: cell, Value: value, Next: next}, nil
}

func (p *Parser) parseInsert(locals map[string]bool) (piverif.Process, error) {
	p.next()
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []piverif.Term
	for !p.isPunct(")") {
		a, err := p.parseTermWithVars(locals)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.isPunct(",") {
			p.next()
		}
	}
	p.next()
	next, err := p.parseContinuation(locals)
	if err != nil {
		return nil, err
	}
	return &piverif.InsertProcess{Table: table, Args: args, Next: next}, nil
}

func (p *Parser) parseGet(locals map[string]bool) (piverif.Process, error) {
	p.next()
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var patterns []piverif.Term
	for !p.isPunct(")") {
		pat, err := p.parsePattern(locals)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pat)
		if p.isPunct(",") {
			p.next()
		}
	}
	p.next()
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	then, err := p.parseProcess(locals)
	if err != nil {
		return nil, err
	}
	return &piverif.GetProcess{Table: table, Patterns: patterns, Then: then}, nil
}

func (p *Parser) parseEvent(locals map[string]bool) (piverif.Process, error) {
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var args []piverif.Term
	if p.isPunct("(") {
		p.next()
		for !p.isPunct(")") {
			a, err := p.parseTermWithVars(locals)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.isPunct(",") {
				p.next()
			}
		}
		p.next()
	}
	next, err := p.parseContinuation(locals)
	if err != nil {
		return nil, err
	}
	return &piverif.EventProcess{Name: name, Args: args, Next: next}, nil
}

// parseCallOrNil parses a bare identifier as a macro call: `name(args)`,
// or, with no trailing argument list, a call of name with no arguments.
func (p *Parser) parseCallOrNil(locals map[string]bool) (piverif.Process, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	var args []piverif.Term
	if p.isPunct("(") {
		p.next()
		for !p.isPunct(")") {
			a, err := p.parseTermWithVars(locals)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.isPunct(",") {
				p.next()
			}
		}
		p.next()
	}
	return &piverif.CallProcess{Name: name, Args: args}, nil
}

// parseContinuation parses the `;` that separates a prefix action from
// what follows, or treats a missing `;` (end of process, `|`, `)`, or a
// top-level `.`) as NilProcess.
func (p *Parser) parseContinuation(locals map[string]bool) (piverif.Process, error) {
	if p.isPunct(";") {
		p.next()
		return p.parseProcessAtom(locals)
	}
	return piverif.NilProcess{}, nil
}
