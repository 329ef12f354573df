package parser

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/lexer"
)

// parseBindingPattern parses a destructuring target: an array/object
// pattern or a plain identifier. Assignment defaults are handled by callers
// (declarators, params, object-pattern properties), not here.
func (p *Parser) parseBindingPattern() (ast.Pattern, error) {
	switch p.peek() {
	case lexer.LeftBracket:
		return p.parseArrayPattern()
	case lexer.LeftBrace:
		return p.parseObjectPattern()
	case lexer.Identifier:
		id, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, p.errorf(p.location(), "expected identifier or destructuring pattern")
	}
}

func (p *Parser) parseArrayPattern() (ast.Pattern, error) {
	start := p.location()
	if _, err := p.expect(lexer.LeftBracket); err != nil {
		return nil, err
	}

	var elements []ast.ArrayPatternElement
	var rest ast.Pattern

	for !p.consume(lexer.RightBracket) {
		if p.consume(lexer.Comma) {
			elements = append(elements, ast.ArrayPatternElement{})
			continue
		}
		if p.consume(lexer.DotDotDot) {
			arg, err := p.parseBindingPattern()
			if err != nil {
				return nil, err
			}
			rest = arg
			p.consume(lexer.Comma)
			if _, err := p.expect(lexer.RightBracket); err != nil {
				return nil, err
			}
			break
		}

		elem, err := p.parseBindingPatternWithDefault()
		if err != nil {
			return nil, err
		}
		elements = append(elements, ast.ArrayPatternElement{Pattern: elem})

		if !p.consume(lexer.Comma) {
			if _, err := p.expect(lexer.RightBracket); err != nil {
				return nil, err
			}
			break
		}
	}

	return &ast.ArrayPattern{
		PatBase:  ast.NewPatBase(p.span(start)),
		Elements: elements,
		Rest:     rest,
	}, nil
}

// parseBindingPatternWithDefault parses a pattern optionally followed by
// `= expr`, wrapping it in an AssignmentPattern — used for array-pattern
// elements and function parameters.
func (p *Parser) parseBindingPatternWithDefault() (ast.Pattern, error) {
	start := p.location()
	pat, err := p.parseBindingPattern()
	if err != nil {
		return nil, err
	}
	if p.consume(lexer.Equals) {
		def, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		return &ast.AssignmentPattern{
			PatBase: ast.NewPatBase(p.span(start)),
			Left:    pat,
			Default: def,
		}, nil
	}
	return pat, nil
}

func (p *Parser) parseObjectPattern() (ast.Pattern, error) {
	start := p.location()
	if _, err := p.expect(lexer.LeftBrace); err != nil {
		return nil, err
	}

	var properties []ast.ObjectPatternProperty
	var rest ast.Pattern

	for !p.consume(lexer.RightBrace) {
		if p.consume(lexer.DotDotDot) {
			arg, err := p.parseBindingPattern()
			if err != nil {
				return nil, err
			}
			rest = arg
			p.consume(lexer.Comma)
			if _, err := p.expect(lexer.RightBrace); err != nil {
				return nil, err
			}
			break
		}

		prop, err := p.parseObjectPatternProperty()
		if err != nil {
			return nil, err
		}
		properties = append(properties, prop)

		if !p.consume(lexer.Comma) {
			if _, err := p.expect(lexer.RightBrace); err != nil {
				return nil, err
			}
			break
		}
	}

	return &ast.ObjectPattern{
		PatBase:    ast.NewPatBase(p.span(start)),
		Properties: properties,
		Rest:       rest,
	}, nil
}

func (p *Parser) parseObjectPatternProperty() (ast.ObjectPatternProperty, error) {
	start := p.location()
	computed := p.peek() == lexer.LeftBracket
	key, err := p.parsePropertyKey()
	if err != nil {
		return ast.ObjectPatternProperty{}, err
	}

	if !computed && !p.consume(lexer.Colon) {
		if key.Kind != ast.KeyIdentifier {
			return ast.ObjectPatternProperty{}, p.errorf(start, "shorthand property must be an identifier")
		}
		id := &ast.Identifier{PatBase: ast.NewPatBase(p.span(start)), Name: key.Name}
		var value ast.Pattern = id
		if p.consume(lexer.Equals) {
			def, err := p.parseAssignmentExpression()
			if err != nil {
				return ast.ObjectPatternProperty{}, err
			}
			value = &ast.AssignmentPattern{
				PatBase: ast.NewPatBase(p.span(start)),
				Left:    id,
				Default: def,
			}
		}
		return ast.ObjectPatternProperty{Key: key, Value: value, Shorthand: true}, nil
	}

	value, err := p.parseBindingPatternWithDefault()
	if err != nil {
		return ast.ObjectPatternProperty{}, err
	}
	return ast.ObjectPatternProperty{Key: key, Value: value, Computed: computed}, nil
}

// parsePropertyKey parses the key of an object property, pattern property,
// or class member: a computed `[expr]`, an identifier/keyword-as-name, a
// string or number literal, or a `#private` name.
func (p *Parser) parsePropertyKey() (ast.PropertyKey, error) {
	if p.consume(lexer.LeftBracket) {
		expr, err := p.parseAssignmentExpression()
		if err != nil {
			return ast.PropertyKey{}, err
		}
		if _, err := p.expect(lexer.RightBracket); err != nil {
			return ast.PropertyKey{}, err
		}
		return ast.PropertyKey{Kind: ast.KeyComputed, Expr: expr}, nil
	}

	switch p.peek() {
	case lexer.Identifier, lexer.KeywordTok:
		id, err := p.parseIdentifierName()
		if err != nil {
			return ast.PropertyKey{}, err
		}
		return ast.PropertyKey{Kind: ast.KeyIdentifier, Name: id.Name}, nil
	case lexer.StringLiteral:
		tok := p.advance()
		s, err := lexer.StringValue(tok.Text)
		if err != nil {
			return ast.PropertyKey{}, p.errorf(tok.Location, "%s", err.Error())
		}
		return ast.PropertyKey{Kind: ast.KeyString, Name: s}, nil
	case lexer.NumberLiteral:
		tok := p.advance()
		n, err := p.parseNumberValue(tok.Text)
		if err != nil {
			return ast.PropertyKey{}, err
		}
		return ast.PropertyKey{Kind: ast.KeyNumber, Name: strconvFloat(n)}, nil
	case lexer.PrivateName:
		tok := p.advance()
		return ast.PropertyKey{Kind: ast.KeyPrivate, Name: tok.Text[1:]}, nil
	default:
		return ast.PropertyKey{}, p.errorf(p.location(), "expected property name")
	}
}
