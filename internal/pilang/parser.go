package pilang

import (
	"fmt"

	"github.com/gitrdm/piverif/pkg/piverif"
)

// Parser consumes a token stream and builds a piverif.Network. Binding
// positions (new, in's pattern, let's pattern, a destructor's forall
// vars) produce piverif.TermVariable, as do later references to a name
// bound that way; every other reference produces piverif.TermName, matching spec.md section 4.4's
// "inputs/lets as Variable, names/nonces as Name" resolution rule.
type Parser struct {
	toks []Token
	pos  int
	net  *piverif.Network
}

// Parse lexes and parses src into a Network.
func Parse(src string) (*piverif.Network, error) {
	lex := NewLexer(src)
	toks, err := lex.Tokens()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks, net: piverif.NewNetwork()}
	if err := p.parseProgram(); err != nil {
		return nil, err
	}
	return p.net, nil
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) next() Token { t := p.toks[p.pos]; p.pos++; return t }

func (p *Parser) atEOF() bool { return p.cur().Kind == TokEOF }

func (p *Parser) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.cur().Line, fmt.Sprintf(format, args...))
}

func (p *Parser) expectPunct(text string) error {
	if p.cur().Kind != TokPunct || p.cur().Text != text {
		return p.errf("expected %q, found %q", text, p.cur().Text)
	}
	p.pos++
	return nil
}

func (p *Parser) expectKeyword(text string) error {
	if p.cur().Kind != TokKeyword || p.cur().Text != text {
		return p.errf("expected keyword %q, found %q", text, p.cur().Text)
	}
	p.pos++
	return nil
}

func (p *Parser) isPunct(text string) bool {
	return p.cur().Kind == TokPunct && p.cur().Text == text
}

func (p *Parser) isKeyword(text string) bool {
	return p.cur().Kind == TokKeyword && p.cur().Text == text
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur().Kind != TokIdent {
		return "", p.errf("expected identifier, found %q", p.cur().Text)
	}
	return p.next().Text, nil
}

// parseProgram parses the top-level statement sequence.
func (p *Parser) parseProgram() error {
	for !p.atEOF() {
		if err := p.parseStatement(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseStatement() error {
	switch {
	case p.isKeyword("type"):
		return p.parseTypeDecl()
	case p.isKeyword("free"):
		return p.parseFreeDecl()
	case p.isKeyword("const"):
		return p.parseConstDecl()
	case p.isKeyword("fun"):
		return p.parseFunDecl()
	case p.isKeyword("reduc"):
		return p.parseReducDecl()
	case p.isKeyword("query"):
		return p.parseQueryDecl()
	case p.isKeyword("set"):
		return p.skipSetDecl()
	case p.isKeyword("let"):
		return p.parseMacroDef()
	case p.isKeyword("process"):
		return p.parseMainProcess()
	case p.cur().Kind == TokIdent && p.cur().Text == "table":
		return p.parseTableDecl()
	default:
		return p.errf("unexpected token %q at top level", p.cur().Text)
	}
}

func (p *Parser) parseTypeDecl() error {
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Types[name] = piverif.PiType{Name: name}
	return nil
}

func (p *Parser) parseFreeDecl() error {
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct(":"); err != nil {
		return err
	}
	typ, err := p.expectIdent()
	if err != nil {
		return err
	}
	private := false
	if p.isPunct("[") {
		p.next()
		if err := p.expectKeyword("private"); err != nil {
			return err
		}
		private = true
		if err := p.expectPunct("]"); err != nil {
			return err
		}
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Frees[name] = piverif.FreeDeclaration{Name: name, Type: typ, Private: private}
	return nil
}

func (p *Parser) parseConstDecl() error {
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct(":"); err != nil {
		return err
	}
	typ, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Consts[name] = piverif.Constant{Name: name, Type: typ}
	return nil
}

func (p *Parser) parseFunDecl() error {
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	var params []string
	for !p.isPunct(")") {
		t, err := p.expectIdent()
		if err != nil {
			return err
		}
		params = append(params, t)
		if p.isPunct(",") {
			p.next()
		}
	}
	p.next()
	if err := p.expectPunct(":"); err != nil {
		return err
	}
	result, err := p.expectIdent()
	if err != nil {
		return err
	}
	private := false
	if p.isPunct("[") {
		p.next()
		if err := p.expectKeyword("private"); err != nil {
			return err
		}
		private = true
		if err := p.expectPunct("]"); err != nil {
			return err
		}
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Constructors[name] = piverif.Constructor{Name: name, ParamTypes: params, ResultType: result, Private: private}
	return nil
}

func (p *Parser) parseTableDecl() error {
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	var params []string
	for !p.isPunct(")") {
		t, err := p.expectIdent()
		if err != nil {
			return err
		}
		params = append(params, t)
		if p.isPunct(",") {
			p.next()
		}
	}
	p.next()
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Tables[name] = piverif.Table{Name: name, ParamTypes: params}
	return nil
}

func (p *Parser) parseReducDecl() error {
	p.next()
	if err := p.expectKeyword("forall"); err != nil {
		return err
	}
	var vars []string
	for !p.isPunct(";") {
		v, err := p.expectIdent()
		if err != nil {
			return err
		}
		vars = append(vars, v)
		if err := p.expectPunct(":"); err != nil {
			return err
		}
		if _, err := p.expectIdent(); err != nil {
			return err
		}
		if p.isPunct(",") {
			p.next()
		}
	}
	p.next()

	varSet := map[string]bool{}
	for _, v := range vars {
		varSet[v] = true
	}
	pattern, err := p.parseTermWithVars(varSet)
	if err != nil {
		return err
	}
	if pattern.Kind != piverif.TermFunc {
		return p.errf("reduc pattern must be a function application")
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	result, err := p.parseTermWithVars(varSet)
	if err != nil {
		return err
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Destructors = append(p.net.Destructors, piverif.Destructor{Vars: vars, Pattern: pattern, Result: result})
	return nil
}

func (p *Parser) parseQueryDecl() error {
	p.next()
	if err := p.expectKeyword("attacker"); err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	target, err := p.parseTerm()
	if err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	var when *piverif.WhenClause
	if p.isKeyword("when") {
		p.next()
		cell, err := p.expectIdent()
		if err != nil {
			return err
		}
		if err := p.expectPunct("="); err != nil {
			return err
		}
		val, err := p.parseTerm()
		if err != nil {
			return err
		}
		when = &piverif.WhenClause{Cell: cell, Value: val}
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Queries = append(p.net.Queries, piverif.Query{Target: target, When: when})
	return nil
}

// skipSetDecl consumes a `set ...` directive, which piverif ignores.
func (p *Parser) skipSetDecl() error {
	for !p.isPunct(".") && !p.atEOF() {
		p.next()
	}
	if !p.atEOF() {
		p.next()
	}
	return nil
}

func (p *Parser) parseMacroDef() error {
	p.next()
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	var params []string
	if p.isPunct("(") {
		p.next()
		for !p.isPunct(")") {
			v, err := p.expectIdent()
			if err != nil {
				return err
			}
			params = append(params, v)
			if p.isPunct(",") {
				p.next()
			}
		}
		p.next()
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	locals := map[string]bool{}
	for _, v := range params {
		locals[v] = true
	}
	body, err := p.parseProcess(locals)
	if err != nil {
		return err
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Macros[name] = piverif.MacroDef{Name: name, Params: params, Body: body}
	return nil
}

func (p *Parser) parseMainProcess() error {
	p.next()
	body, err := p.parseProcess(map[string]bool{})
	if err != nil {
		return err
	}
	if err := p.expectPunct("."); err != nil {
		return err
	}
	p.net.Main = body
	return nil
}
