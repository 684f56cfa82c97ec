package parser

import "strings"

type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Literals
	INT     // 123
	PERCENT // %, %%, %%%

	// Pool
	DIE // d or D

	// Pool modifiers
	BANG        // !
	BANG_BANG   // !!
	STAR        // *
	STAR_STAR   // **
	PLUS_PLUS   // ++
	MINUS_MINUS // --
	TILDE       // ~
	CARET       // ^
	BACKTICK    // `
	ADV
	DIS
	BEST // Y

	// Arithmetic
	PLUS  // +
	MINUS // -

	// Comparison
	LT  // <
	GT  // >
	LTE // <=
	GTE // >=
	EQ  // =
	CMP // <=>

	// Delimiters
	COMMA // ,

	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	LBRACE   // {
	RBRACE   // }
)

type Token struct {
	Type     TokenType
	Literal  string
	Position int
}

// End returns the offset just past the token.
func (t Token) End() int {
	return t.Position + len(t.Literal)
}

var keywords = []struct {
	word string
	typ  TokenType
}{
	{"ADV", ADV},
	{"DIS", DIS},
	{"Y", BEST},
}

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken scans the next token. Two-character operators are matched before
// their one-character prefixes, and <=> before <=.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	start := l.position
	switch l.ch {
	case '!':
		return l.oneOrTwo(start, '!', BANG, BANG_BANG)
	case '*':
		return l.oneOrTwo(start, '*', STAR, STAR_STAR)
	case '+':
		return l.oneOrTwo(start, '+', PLUS, PLUS_PLUS)
	case '-':
		return l.oneOrTwo(start, '-', MINUS, MINUS_MINUS)
	case '>':
		return l.oneOrTwo(start, '=', GT, GTE)
	case '<':
		if strings.HasPrefix(l.input[start:], "<=>") {
			l.readChar()
			l.readChar()
			l.readChar()
			return Token{Type: CMP, Literal: "<=>", Position: start}
		}
		return l.oneOrTwo(start, '=', LT, LTE)
	case '=':
		return l.single(start, EQ)
	case '~':
		return l.single(start, TILDE)
	case '^':
		return l.single(start, CARET)
	case '`':
		return l.single(start, BACKTICK)
	case ',':
		return l.single(start, COMMA)
	case '(':
		return l.single(start, LPAREN)
	case ')':
		return l.single(start, RPAREN)
	case '[':
		return l.single(start, LBRACKET)
	case ']':
		return l.single(start, RBRACKET)
	case '{':
		return l.single(start, LBRACE)
	case '}':
		return l.single(start, RBRACE)
	case '%':
		for l.ch == '%' {
			l.readChar()
		}
		return Token{Type: PERCENT, Literal: l.input[start:l.position], Position: start}
	case 0:
		if l.position >= len(l.input) {
			return Token{Type: EOF, Literal: "", Position: len(l.input)}
		}
		return l.single(start, ILLEGAL)
	}

	if isDigit(l.ch) {
		for isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: INT, Literal: l.input[start:l.position], Position: start}
	}

	for _, kw := range keywords {
		if strings.HasPrefix(l.input[start:], kw.word) {
			for range kw.word {
				l.readChar()
			}
			return Token{Type: kw.typ, Literal: kw.word, Position: start}
		}
	}

	if l.ch == 'd' || l.ch == 'D' {
		return l.single(start, DIE)
	}

	return l.single(start, ILLEGAL)
}

// Tokenize scans the whole input, always ending with an EOF token.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

func (l *Lexer) single(start int, t TokenType) Token {
	tok := Token{Type: t, Literal: l.input[start : start+1], Position: start}
	l.readChar()
	return tok
}

func (l *Lexer) oneOrTwo(start int, next byte, one, two TokenType) Token {
	if l.peekChar() == next {
		l.readChar()
		l.readChar()
		return Token{Type: two, Literal: l.input[start:l.position], Position: start}
	}
	return l.single(start, one)
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func (t TokenType) String() string {
	switch t {
	case ILLEGAL:
		return "ILLEGAL"
	case EOF:
		return "EOF"
	case INT:
		return "INT"
	case PERCENT:
		return "%"
	case DIE:
		return "d"
	case BANG:
		return "!"
	case BANG_BANG:
		return "!!"
	case STAR:
		return "*"
	case STAR_STAR:
		return "**"
	case PLUS_PLUS:
		return "++"
	case MINUS_MINUS:
		return "--"
	case TILDE:
		return "~"
	case CARET:
		return "^"
	case BACKTICK:
		return "`"
	case ADV:
		return "ADV"
	case DIS:
		return "DIS"
	case BEST:
		return "Y"
	case PLUS:
		return "+"
	case MINUS:
		return "-"
	case LT:
		return "<"
	case GT:
		return ">"
	case LTE:
		return "<="
	case GTE:
		return ">="
	case EQ:
		return "="
	case CMP:
		return "<=>"
	case COMMA:
		return ","
	case LPAREN:
		return "("
	case RPAREN:
		return ")"
	case LBRACKET:
		return "["
	case RBRACKET:
		return "]"
	case LBRACE:
		return "{"
	case RBRACE:
		return "}"
	default:
		return "UNKNOWN"
	}
}
