package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Parser: line parser for assembler source
// ---------------------------------------------------------------------------

// Parser turns assembler source into statements.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []error
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) errorf(pos Position, format string, args ...any) {
	err := fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, &Error{Pos: pos, Err: err})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []error {
	return p.errors
}

// skipLine discards tokens up to and including the next newline.
func (p *Parser) skipLine() {
	for !p.curTokenIs(TokenNewline) && !p.curTokenIs(TokenEOF) {
		p.nextToken()
	}
	if p.curTokenIs(TokenNewline) {
		p.nextToken()
	}
}

// ParseProgram parses every line of the input. Blank and comment-only lines
// produce no statement.
func (p *Parser) ParseProgram() []Statement {
	var out []Statement
	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenNewline) {
			p.nextToken()
			continue
		}
		st, ok := p.parseStatement()
		if !ok {
			p.skipLine()
			continue
		}
		out = append(out, st)
	}
	return out
}

func (p *Parser) parseStatement() (Statement, bool) {
	st := Statement{Pos: p.curToken.Pos}

	if p.curTokenIs(TokenLabel) {
		st.Label = p.curToken.Literal
		p.nextToken()
	}
	switch p.curToken.Type {
	case TokenNewline, TokenEOF:
		return st, p.endOfLine()
	case TokenIdent, TokenDirective:
		st.Op = p.curToken.Literal
		p.nextToken()
	case TokenError:
		p.errorf(p.curToken.Pos, "%s", p.curToken.Literal)
		return st, false
	default:
		p.errorf(p.curToken.Pos, "expected instruction or directive, got %s", p.curToken)
		return st, false
	}

	if p.curTokenIs(TokenNewline) || p.curTokenIs(TokenEOF) {
		return st, p.endOfLine()
	}
	for {
		arg, ok := p.parseArg()
		if !ok {
			return st, false
		}
		st.Args = append(st.Args, arg)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return st, p.endOfLine()
}

func (p *Parser) parseArg() (Arg, bool) {
	tok := p.curToken
	arg := Arg{Pos: tok.Pos}
	switch tok.Type {
	case TokenNumber, TokenCharacter, TokenIdent:
		arg.Text = tok.Literal
	case TokenLabelRef:
		arg.Text = ":" + tok.Literal
	case TokenAddress:
		arg.Text = "&" + tok.Literal
	case TokenBang:
		p.nextToken()
		if !p.curTokenIs(TokenIdent) && !p.curTokenIs(TokenNumber) {
			p.errorf(p.curToken.Pos, "expected name or number after '!', got %s", p.curToken)
			return arg, false
		}
		arg.Text = "!" + p.curToken.Literal
	case TokenError:
		p.errorf(tok.Pos, "%s", tok.Literal)
		return arg, false
	default:
		p.errorf(tok.Pos, "expected operand, got %s", tok)
		return arg, false
	}
	p.nextToken()
	return arg, true
}

func (p *Parser) endOfLine() bool {
	switch p.curToken.Type {
	case TokenNewline:
		p.nextToken()
		return true
	case TokenEOF:
		return true
	}
	p.errorf(p.curToken.Pos, "unexpected %s at end of statement", p.curToken)
	return false
}

// Parse parses source into statements. It reports every syntax error.
func Parse(src string) ([]Statement, error) {
	p := NewParser(src)
	stmts := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, &ErrorList{Errors: errs}
	}
	return stmts, nil
}
