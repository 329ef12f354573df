package parser

import (
	"github.com/qsjs/quicksilver/internal/ast"
	"github.com/qsjs/quicksilver/internal/lexer"
)

// parseImportDeclaration parses every import form: side-effect-only,
// default, namespace, named, and the default+namespace/default+named
// combinations.
func (p *Parser) parseImportDeclaration() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwImport); err != nil {
		return nil, err
	}

	if p.peek() == lexer.StringLiteral {
		source, err := p.parseModuleSource()
		if err != nil {
			return nil, err
		}
		p.consumeSemicolon()
		return &ast.ImportDeclaration{StmtBase: ast.NewStmtBase(p.span(start)), Source: source}, nil
	}

	var specifiers []ast.ImportSpecifier

	switch {
	case p.peek() == lexer.Identifier:
		local, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		specifiers = append(specifiers, ast.ImportSpecifier{
			Base: ast.Base{SpanVal: local.Span()}, Kind: ast.ImportDefault, Local: *local,
		})

		if p.consume(lexer.Comma) {
			if p.peek() == lexer.Star {
				p.advance()
				if _, err := p.expectKeyword(lexer.KwAs); err != nil {
					return nil, err
				}
				ns, err := p.parseIdentifier()
				if err != nil {
					return nil, err
				}
				specifiers = append(specifiers, ast.ImportSpecifier{
					Base: ast.Base{SpanVal: ns.Span()}, Kind: ast.ImportNamespace, Local: *ns,
				})
			} else if p.peek() == lexer.LeftBrace {
				named, err := p.parseNamedImports()
				if err != nil {
					return nil, err
				}
				specifiers = append(specifiers, named...)
			}
		}
	case p.peek() == lexer.Star:
		p.advance()
		if _, err := p.expectKeyword(lexer.KwAs); err != nil {
			return nil, err
		}
		ns, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		specifiers = append(specifiers, ast.ImportSpecifier{
			Base: ast.Base{SpanVal: ns.Span()}, Kind: ast.ImportNamespace, Local: *ns,
		})
	case p.peek() == lexer.LeftBrace:
		named, err := p.parseNamedImports()
		if err != nil {
			return nil, err
		}
		specifiers = append(specifiers, named...)
	}

	if _, err := p.expectKeyword(lexer.KwFrom); err != nil {
		return nil, err
	}
	source, err := p.parseModuleSource()
	if err != nil {
		return nil, err
	}
	p.consumeSemicolon()

	return &ast.ImportDeclaration{
		StmtBase:   ast.NewStmtBase(p.span(start)),
		Specifiers: specifiers,
		Source:     source,
	}, nil
}

func (p *Parser) parseNamedImports() ([]ast.ImportSpecifier, error) {
	if _, err := p.expect(lexer.LeftBrace); err != nil {
		return nil, err
	}

	var specifiers []ast.ImportSpecifier
	for !p.consume(lexer.RightBrace) {
		start := p.location()
		imported, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		local := imported
		if p.consumeKeyword(lexer.KwAs) {
			local, err = p.parseIdentifier()
			if err != nil {
				return nil, err
			}
		}
		specifiers = append(specifiers, ast.ImportSpecifier{
			Base: ast.Base{SpanVal: p.span(start)}, Kind: ast.ImportNamed, Imported: imported.Name, Local: *local,
		})

		if !p.consume(lexer.Comma) && p.peek() != lexer.RightBrace {
			return nil, p.errorf(p.location(), "expected ',' or '}' in import specifiers")
		}
	}
	return specifiers, nil
}

// parseExportDeclaration parses every export form: named re-export,
// default, var/function/class declarations, and `export * [as name] from`.
func (p *Parser) parseExportDeclaration() (ast.Statement, error) {
	start := p.location()
	if _, err := p.expectKeyword(lexer.KwExport); err != nil {
		return nil, err
	}

	if p.consumeKeyword(lexer.KwDefault) {
		var decl ast.Node
		switch {
		case p.isKeyword(lexer.KwFunction), p.isKeyword(lexer.KwAsync) && p.peekAt(1) == lexer.KeywordTok && p.tokens[p.pos+1].Keyword == lexer.KwFunction:
			d, err := p.parseFunctionDeclaration()
			if err != nil {
				return nil, err
			}
			decl = d
		case p.isKeyword(lexer.KwClass):
			d, err := p.parseClassDeclaration()
			if err != nil {
				return nil, err
			}
			decl = d
		default:
			expr, err := p.parseAssignmentExpression()
			if err != nil {
				return nil, err
			}
			p.consumeSemicolon()
			decl = expr
		}
		return &ast.ExportDefaultDeclaration{StmtBase: ast.NewStmtBase(p.span(start)), Declaration: decl}, nil
	}

	if p.peek() == lexer.Star {
		p.advance()
		if p.consumeKeyword(lexer.KwAs) {
			exported, err := p.parseIdentifier()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectKeyword(lexer.KwFrom); err != nil {
				return nil, err
			}
			source, err := p.parseModuleSource()
			if err != nil {
				return nil, err
			}
			p.consumeSemicolon()
			return &ast.ExportAllDeclaration{StmtBase: ast.NewStmtBase(p.span(start)), Exported: exported.Name, Source: source}, nil
		}
		if _, err := p.expectKeyword(lexer.KwFrom); err != nil {
			return nil, err
		}
		source, err := p.parseModuleSource()
		if err != nil {
			return nil, err
		}
		p.consumeSemicolon()
		return &ast.ExportAllDeclaration{StmtBase: ast.NewStmtBase(p.span(start)), Source: source}, nil
	}

	if p.peek() == lexer.LeftBrace {
		specifiers, err := p.parseExportSpecifiers()
		if err != nil {
			return nil, err
		}
		var source string
		if p.consumeKeyword(lexer.KwFrom) {
			source, err = p.parseModuleSource()
			if err != nil {
				return nil, err
			}
		}
		p.consumeSemicolon()
		return &ast.ExportNamedDeclaration{
			StmtBase:   ast.NewStmtBase(p.span(start)),
			Specifiers: specifiers,
			Source:     source,
		}, nil
	}

	var decl ast.Statement
	var err error
	switch {
	case p.isKeyword(lexer.KwVar):
		decl, err = p.parseVariableDeclaration(ast.VarVar)
	case p.isKeyword(lexer.KwLet):
		decl, err = p.parseVariableDeclaration(ast.VarLet)
	case p.isKeyword(lexer.KwConst):
		decl, err = p.parseVariableDeclaration(ast.VarConst)
	case p.isKeyword(lexer.KwFunction), p.isKeyword(lexer.KwAsync) && p.peekAt(1) == lexer.KeywordTok && p.tokens[p.pos+1].Keyword == lexer.KwFunction:
		decl, err = p.parseFunctionDeclaration()
	case p.isKeyword(lexer.KwClass):
		decl, err = p.parseClassDeclaration()
	default:
		return nil, p.errorf(p.location(), "unexpected token in export declaration")
	}
	if err != nil {
		return nil, err
	}

	return &ast.ExportNamedDeclaration{StmtBase: ast.NewStmtBase(p.span(start)), Declaration: decl}, nil
}

func (p *Parser) parseExportSpecifiers() ([]ast.ExportSpecifier, error) {
	if _, err := p.expect(lexer.LeftBrace); err != nil {
		return nil, err
	}

	var specifiers []ast.ExportSpecifier
	for !p.consume(lexer.RightBrace) {
		local, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		exported := local
		if p.consumeKeyword(lexer.KwAs) {
			exported, err = p.parseIdentifier()
			if err != nil {
				return nil, err
			}
		}
		specifiers = append(specifiers, ast.ExportSpecifier{Local: local.Name, Exported: exported.Name})

		if !p.consume(lexer.Comma) && p.peek() != lexer.RightBrace {
			return nil, p.errorf(p.location(), "expected ',' or '}' in export specifiers")
		}
	}
	return specifiers, nil
}

func (p *Parser) parseModuleSource() (string, error) {
	if p.peek() != lexer.StringLiteral {
		return "", p.errorf(p.location(), "expected module source string")
	}
	tok := p.advance()
	return lexer.StringValue(tok.Text)
}
