package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrIncomplete indicates trailing input that no production could match.
	ErrIncomplete = errors.New("unparsed input remains")

	// ErrInvalidModifierArgument indicates a missing or unusable numeric
	// argument where the grammar requires one.
	ErrInvalidModifierArgument = errors.New("invalid modifier argument")
)

// ParseError describes where parsing stopped. It always matches
// ErrIncomplete and, when more specific, its Reason as well.
type ParseError struct {
	Offset    int
	Remaining string
	Reason    error
	Detail    string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse stopped at offset %d near %q", e.Offset, e.Remaining)
	if e.Reason != nil && e.Reason != ErrIncomplete {
		msg += ": " + e.Reason.Error()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Reason == nil || e.Reason == ErrIncomplete {
		return []error{ErrIncomplete}
	}
	return []error{ErrIncomplete, e.Reason}
}

// Result is the outcome of parsing. Expression is the tree for the longest
// valid prefix (nil if nothing parsed), Consumed that prefix and Remaining
// the unparsed suffix. Err is nil only when the whole input was consumed.
type Result struct {
	Expression Expression
	Consumed   string
	Remaining  string
	Err        error
}

// Complete reports whether the whole input was parsed.
func (r *Result) Complete() bool {
	return r.Err == nil
}

var comparisonOps = map[TokenType]CompareOp{
	GT:  CompareGT,
	LT:  CompareLT,
	GTE: CompareGTE,
	LTE: CompareLTE,
	EQ:  CompareEQ,
	CMP: CompareSpaceship,
}

// sumStep is the decision taken after a term: continue the sum, continue
// the difference, or stop.
type sumStep int

const (
	stepStop sumStep = iota
	stepSum
	stepDifference
)

type Parser struct {
	l      *Lexer
	input  string
	tokens []Token
	pos    int

	// end of the last consumed token
	consumed int
	err      *ParseError
}

func New(l *Lexer) *Parser {
	return &Parser{
		l:      l,
		input:  l.input,
		tokens: l.Tokenize(),
	}
}

// Parse parses a roll expression. Malformed trailing input never fails the
// call: the tree for the valid prefix is returned with the remainder.
func Parse(input string) *Result {
	p := New(NewLexer(input))
	expr := p.ParseExpression()
	return p.result(expr)
}

func (p *Parser) result(expr Expression) *Result {
	if expr == nil {
		p.consumed = 0
	}
	res := &Result{
		Expression: expr,
		Consumed:   strings.TrimSpace(p.input[:p.consumed]),
		Remaining:  strings.TrimSpace(p.input[p.consumed:]),
	}
	if res.Remaining == "" {
		return res
	}
	if p.err == nil || p.err.Offset < p.consumed {
		p.err = &ParseError{Reason: ErrIncomplete}
	}
	p.err.Offset = p.consumed + strings.Index(p.input[p.consumed:], res.Remaining)
	p.err.Remaining = res.Remaining
	res.Err = p.err
	return res
}

// ParseExpression parses a comparison, the outermost production.
func (p *Parser) ParseExpression() Expression {
	left := p.parseSuccess()
	if left == nil {
		return nil
	}

	op, ok := comparisonOps[p.curToken().Type]
	if !ok {
		return left
	}
	opTok := p.curToken()
	mark := p.mark()
	p.nextToken()

	right := p.parseSuccess()
	if right == nil {
		p.reset(mark)
		return left
	}

	return &ComparisonExpression{Token: opTok, Left: left, Operator: op, Right: right}
}

func (p *Parser) parseSuccess() Expression {
	inner := p.parseTarget()
	if inner == nil || !p.curTokenIs(LBRACE) {
		return inner
	}

	tok := p.curToken()
	if !p.peekTokenIs(1, INT) {
		p.fail(tok, ErrInvalidModifierArgument, "success threshold must be a number")
		return inner
	}
	threshold, ok := p.number(p.peekToken(1))
	if !ok {
		return inner
	}

	step := 1
	width := 3
	if p.peekTokenIs(2, COMMA) {
		if !p.peekTokenIs(3, INT) {
			p.fail(tok, ErrInvalidModifierArgument, "success step must be a number")
			return inner
		}
		if step, ok = p.number(p.peekToken(3)); !ok {
			return inner
		}
		if step <= 0 {
			p.fail(tok, ErrInvalidModifierArgument, "success step must be positive")
			return inner
		}
		width = 5
	}
	if !p.peekTokenIs(width-1, RBRACE) {
		p.fail(tok, ErrIncomplete, "expected }")
		return inner
	}

	p.advance(width)
	return &SuccessExpression{Token: tok, Inner: inner, Threshold: threshold, Step: step}
}

func (p *Parser) parseTarget() Expression {
	inner := p.parseGrouped()
	if inner == nil {
		return nil
	}

	tok := p.curToken()
	var kind TargetKind
	var closing TokenType
	switch tok.Type {
	case LBRACKET:
		kind, closing = TargetHigh, RBRACKET
	case LPAREN:
		kind, closing = TargetLow, RPAREN
	default:
		return inner
	}

	if !p.peekTokenIs(1, INT) || !p.peekTokenIs(2, closing) {
		p.fail(tok, ErrIncomplete, "expected target threshold")
		return inner
	}
	n, ok := p.number(p.peekToken(1))
	if !ok {
		return inner
	}

	p.advance(3)
	return &TargetExpression{Token: tok, Inner: inner, Kind: kind, Threshold: n}
}

func (p *Parser) parseGrouped() Expression {
	if !p.curTokenIs(LPAREN) {
		return p.parseSum()
	}

	mark := p.mark()
	p.nextToken()
	sum := p.parseSum()
	if sum == nil || !p.curTokenIs(RPAREN) {
		p.fail(p.tokens[mark.pos], ErrIncomplete, "unbalanced parenthesis")
		p.reset(mark)
		return nil
	}
	p.nextToken()
	return sum
}

// parseSum parses a left-associative chain of terms.
func (p *Parser) parseSum() Expression {
	left := p.parseTerm()
	if left == nil {
		return nil
	}

	for {
		var op ArithmeticOp
		switch p.sumStep() {
		case stepSum:
			op = OpAdd
		case stepDifference:
			op = OpSubtract
		default:
			return left
		}

		opTok := p.curToken()
		mark := p.mark()
		p.nextToken()
		right := p.parseTerm()
		if right == nil {
			p.reset(mark)
			return left
		}
		left = &ArithmeticExpression{Token: opTok, Left: left, Operator: op, Right: right}
	}
}

// sumStep decides what follows a term. A doubled sign reaching this point
// was not taken as a pool modifier, so it cannot continue the sum.
func (p *Parser) sumStep() sumStep {
	switch p.curToken().Type {
	case PLUS:
		return stepSum
	case MINUS:
		return stepDifference
	default:
		return stepStop
	}
}

func (p *Parser) parseTerm() Expression {
	switch p.curToken().Type {
	case DIE:
		return p.parsePool(1)
	case INT:
		tok := p.curToken()
		if p.peekTokenIs(1, DIE) && p.peekToken(1).Position == tok.End() {
			count, ok := p.number(tok)
			if !ok {
				return nil
			}
			mark := p.mark()
			p.nextToken()
			if pool := p.parsePool(count); pool != nil {
				return pool
			}
			p.reset(mark)
			return nil
		}
		n, ok := p.number(tok)
		if !ok {
			return nil
		}
		p.nextToken()
		return &NumberLiteral{Token: tok, Value: n}
	default:
		p.fail(p.curToken(), ErrIncomplete, "expected a pool or a number")
		return nil
	}
}

// parsePool parses from the 'd' token. The size must follow it directly.
func (p *Parser) parsePool(count int) Expression {
	dieTok := p.curToken()
	sizeTok := p.peekToken(1)
	if sizeTok.Position != dieTok.End() {
		p.fail(dieTok, ErrIncomplete, "expected die size")
		return nil
	}

	var size DieSize
	switch sizeTok.Type {
	case INT:
		faces, ok := p.number(sizeTok)
		if !ok {
			return nil
		}
		size = DieSize{Faces: faces}
	case PERCENT:
		if len(sizeTok.Literal) > 3 {
			p.fail(sizeTok, ErrIncomplete, "at most three percentile markers")
			return nil
		}
		size = PercentileSize(len(sizeTok.Literal))
	default:
		p.fail(dieTok, ErrIncomplete, "expected die size")
		return nil
	}
	p.advance(2)

	pool := &Pool{Token: dieTok, Count: count, Sides: size}
	pool.Modifier = p.parseModifier()
	return pool
}

// parseModifier parses the optional modifier after a pool. Explode kinds
// take an optional threshold, ++ and -- an optional amount (default 1), and
// the selection kinds a required count.
func (p *Parser) parseModifier() *Modifier {
	tok := p.curToken()
	switch tok.Type {
	case BANG, BANG_BANG, STAR, STAR_STAR:
		kind := map[TokenType]ModifierKind{
			BANG:      ModExplode,
			BANG_BANG: ModExplodeUntil,
			STAR:      ModExplodeEach,
			STAR_STAR: ModExplodeEachUntil,
		}[tok.Type]
		m := &Modifier{Kind: kind}
		if p.peekTokenIs(1, INT) {
			n, ok := p.number(p.peekToken(1))
			if !ok {
				return nil
			}
			m.Threshold = Threshold{Value: n, Set: true}
			p.nextToken()
		}
		p.nextToken()
		return m

	case PLUS_PLUS, MINUS_MINUS:
		kind := ModAddEach
		if tok.Type == MINUS_MINUS {
			kind = ModSubtractEach
		}
		m := &Modifier{Kind: kind, N: 1}
		if p.peekTokenIs(1, INT) {
			n, ok := p.number(p.peekToken(1))
			if !ok {
				return nil
			}
			m.N = n
			p.nextToken()
		}
		p.nextToken()
		return m

	case TILDE, CARET, BACKTICK:
		kind := map[TokenType]ModifierKind{
			TILDE:    ModTakeMiddle,
			CARET:    ModTakeHigh,
			BACKTICK: ModTakeLow,
		}[tok.Type]
		if !p.peekTokenIs(1, INT) {
			p.fail(tok, ErrInvalidModifierArgument, fmt.Sprintf("%s requires a count", tok.Literal))
			return nil
		}
		n, ok := p.number(p.peekToken(1))
		if !ok {
			return nil
		}
		p.advance(2)
		return &Modifier{Kind: kind, N: n}

	case ADV:
		p.nextToken()
		return &Modifier{Kind: ModAdvantage}
	case DIS:
		p.nextToken()
		return &Modifier{Kind: ModDisadvantage}
	case BEST:
		p.nextToken()
		return &Modifier{Kind: ModBestGroup}
	default:
		return nil
	}
}

func (p *Parser) number(tok Token) (int, bool) {
	n, err := strconv.Atoi(tok.Literal)
	if err != nil {
		p.fail(tok, ErrInvalidModifierArgument, fmt.Sprintf("could not parse %q as integer", tok.Literal))
		return 0, false
	}
	return n, true
}

type checkpoint struct {
	pos      int
	consumed int
}

func (p *Parser) mark() checkpoint {
	return checkpoint{pos: p.pos, consumed: p.consumed}
}

func (p *Parser) reset(m checkpoint) {
	p.pos = m.pos
	p.consumed = m.consumed
}

func (p *Parser) nextToken() {
	p.consumed = p.tokens[p.pos].End()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *Parser) advance(n int) {
	for i := 0; i < n; i++ {
		p.nextToken()
	}
}

func (p *Parser) curToken() Token {
	return p.tokens[p.pos]
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken().Type == t
}

// peekToken returns the token n places after the current one.
func (p *Parser) peekToken(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) peekTokenIs(n int, t TokenType) bool {
	return p.peekToken(n).Type == t
}

// fail records why parsing stopped at tok. The error furthest into the
// input wins, as it explains the longest attempted prefix.
func (p *Parser) fail(tok Token, reason error, detail string) {
	if p.err != nil && p.err.Offset > tok.Position {
		return
	}
	p.err = &ParseError{Offset: tok.Position, Reason: reason, Detail: detail}
}

// Errors returns the recorded stop reason, if any.
func (p *Parser) Errors() []string {
	if p.err == nil {
		return nil
	}
	return []string{p.err.Error()}
}
