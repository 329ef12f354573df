// Package parser implements a recursive-descent, precedence-climbing
// JavaScript parser producing the internal/ast tree from internal/lexer
// tokens.
package parser

import (
	"fmt"

	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/diag"
	"github.com/qsjs/quicksilver/internal/lexer"
)

type flags struct {
	inFunction  bool
	inAsync     bool
	inGenerator bool
	inLoop      bool
	inSwitch    bool
	strict      bool
}

// Parser holds token-stream parsing state.
type Parser struct {
	source string
	tokens []lexer.Token
	pos    int
	flags  flags
	errors []*diag.Diagnostic
	maxErrors int
}

// New tokenizes source and returns a Parser positioned at the first token.
func New(source string) (*Parser, error) {
	toks, err := lexer.New(source).Tokenize()
	if err != nil {
		return nil, err
	}
	return &Parser{source: source, tokens: toks, maxErrors: 10}, nil
}

// ParseProgram parses source as a complete program, hard-failing on the
// first error.
func ParseProgram(source string) (*ast.Program, error) {
	p, err := New(source)
	if err != nil {
		return nil, err
	}
	return p.parseProgram()
}

// ParseProgramWithRecovery parses source, collecting errors via panic-mode
// recovery instead of stopping at the first one.
func ParseProgramWithRecovery(source string) (*ast.Program, []*diag.Diagnostic) {
	p, err := New(source)
	if err != nil {
		d, ok := err.(*diag.Diagnostic)
		if !ok {
			d = diag.New(diag.KindLex, err.Error(), diag.Location{Line: 1, Column: 1}, source)
		}
		return &ast.Program{}, []*diag.Diagnostic{d}
	}
	return p.parseProgramWithRecovery()
}

// ---- token access ---------------------------------------------------------

func (p *Parser) current() lexer.Token { return p.tokens[p.pos] }
func (p *Parser) peek() lexer.Kind     { return p.tokens[p.pos].Kind }

func (p *Parser) peekAt(offset int) lexer.Kind {
	i := p.pos + offset
	if i >= len(p.tokens) {
		return lexer.Eof
	}
	return p.tokens[i].Kind
}

func (p *Parser) isEOF() bool { return p.peek() == lexer.Eof }

func (p *Parser) location() diag.Location { return p.current().Location }

func (p *Parser) errorf(loc diag.Location, format string, args ...any) error {
	return diag.New(diag.KindParse, fmt.Sprintf(format, args...), loc, p.source)
}

func (p *Parser) advance() lexer.Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) previous() lexer.Token {
	if p.pos == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.pos-1]
}

func (p *Parser) expect(kind lexer.Kind) (lexer.Token, error) {
	if p.peek() == kind {
		return p.advance(), nil
	}
	return lexer.Token{}, p.errorf(p.location(), "unexpected token (wanted kind %d, got %d)", kind, p.peek())
}

func (p *Parser) expectKeyword(kw lexer.Keyword) (lexer.Token, error) {
	if p.peek() == lexer.KeywordTok && p.current().Keyword == kw {
		return p.advance(), nil
	}
	return lexer.Token{}, p.errorf(p.location(), "expected keyword %q", kw.String())
}

func (p *Parser) consume(kind lexer.Kind) bool {
	if p.peek() == kind {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consumeKeyword(kw lexer.Keyword) bool {
	if p.peek() == lexer.KeywordTok && p.current().Keyword == kw {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) isKeyword(kw lexer.Keyword) bool {
	return p.peek() == lexer.KeywordTok && p.current().Keyword == kw
}

// consumeSemicolon implements ASI: an explicit `;`, or the next token is
// `}`/Eof, or the previous and current tokens sit on different lines.
func (p *Parser) consumeSemicolon() bool {
	if p.consume(lexer.Semicolon) {
		return true
	}
	if p.peek() == lexer.RightBrace || p.peek() == lexer.Eof {
		return true
	}
	if p.pos > 0 {
		prev := p.tokens[p.pos-1]
		cur := p.current()
		if prev.Location.Line < cur.Location.Line {
			return true
		}
	}
	return false
}

func (p *Parser) span(start diag.Location) diag.Span {
	return diag.Span{Start: start, End: p.location()}
}

// ---- error recovery --------------------------------------------------------

func (p *Parser) synchronize() {
	p.advance()
	for !p.isEOF() {
		if p.previous().Kind == lexer.Semicolon {
			return
		}
		if p.peek() == lexer.KeywordTok {
			switch p.current().Keyword {
			case lexer.KwFunction, lexer.KwVar, lexer.KwLet, lexer.KwConst, lexer.KwClass,
				lexer.KwIf, lexer.KwWhile, lexer.KwFor, lexer.KwReturn, lexer.KwTry:
				return
			}
		}
		p.advance()
	}
}

func (p *Parser) recordError(err error) {
	d, ok := err.(*diag.Diagnostic)
	if !ok {
		d = diag.New(diag.KindParse, err.Error(), p.location(), p.source)
	}
	p.errors = append(p.errors, d)
}

func (p *Parser) tooManyErrors() bool { return len(p.errors) >= p.maxErrors }

func (p *Parser) checkUseStrictDirective() bool {
	tok := p.current()
	return tok.Kind == lexer.StringLiteral && (tok.Text == `"use strict"` || tok.Text == `'use strict'`)
}

func (p *Parser) parseProgram() (*ast.Program, error) {
	start := p.location()
	var body []ast.Statement

	if p.checkUseStrictDirective() {
		p.flags.strict = true
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}

	for !p.isEOF() {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}

	return &ast.Program{
		Base: ast.Base{SpanVal: p.span(start)},
		Body: body,
	}, nil
}

func (p *Parser) parseProgramWithRecovery() (*ast.Program, []*diag.Diagnostic) {
	start := p.location()
	var body []ast.Statement

	if p.checkUseStrictDirective() {
		p.flags.strict = true
		if stmt, err := p.parseStatement(); err == nil {
			body = append(body, stmt)
		}
	}

	for !p.isEOF() && !p.tooManyErrors() {
		stmt, err := p.parseStatement()
		if err != nil {
			p.recordError(err)
			p.synchronize()
			continue
		}
		body = append(body, stmt)
	}

	prog := &ast.Program{
		Base: ast.Base{SpanVal: p.span(start)},
		Body: body,
	}
	return prog, p.errors
}
