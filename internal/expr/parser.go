// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

func NewParser() *Parser {
	return &Parser{}
}

type Parser struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// lineNum is the number of the current line of the input.
	lineNum int
	// lineStart is the position of the first char of the current line in the
	// input.
	lineStart int
}

// reserved words cannot be used as unquoted identifiers.
var reserved = map[string]bool{
	"ALL": true, "AND": true, "AS": true, "ASC": true, "BY": true, "DELETE": true,
	"DESC": true, "DISTINCT": true, "EXTRACT": true, "FALSE": true, "FROM": true,
	"IN": true, "INSERT": true, "INTO": true, "IS": true, "LIKE": true, "LIMIT": true,
	"NOT": true, "NULL": true, "OFFSET": true, "ONLY": true, "OR": true, "ORDER": true,
	"SELECT": true, "SET": true, "TRUE": true, "UPDATE": true, "VALUES": true, "WHERE": true,
}

// Parse takes an ECSql string and returns the statement it holds.
func (p *Parser) Parse(input string) (stmt Statement, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot parse expression: %s", err)
		}
	}()

	p.init(input)
	p.skipBlanks()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("empty statement")
	}

	parsers := []func() (Statement, bool, error){
		p.parseSelect, p.parseInsert, p.parseUpdate, p.parseDelete,
	}
	for _, parse := range parsers {
		s, ok, err := parse()
		if err != nil {
			return nil, err
		}
		if ok {
			stmt = s
			break
		}
	}
	if stmt == nil {
		return nil, p.errorf("expected SELECT, INSERT, UPDATE or DELETE")
	}

	p.skipBlanks()
	p.skipChar(';')
	p.skipBlanks()
	if p.pos < len(p.input) {
		return nil, p.errorf("unexpected %q", p.input[p.pos:])
	}
	return stmt, nil
}

// init resets the state of the parser and sets the input string.
func (p *Parser) init(input string) {
	p.input = input
	p.pos = 0
	p.nextPos = 0
	p.char = 0
	p.lineNum = 1
	p.lineStart = 0
	p.advanceChar()
}

// colNum calculates the current column number taking into account line breaks.
func (p *Parser) colNum() int {
	return p.pos - p.lineStart + 1
}

// advanceChar moves the parser to the next character in the input. It also
// takes care of updating the line and column numbers if it encounters line
// breaks.
func (p *Parser) advanceChar() bool {
	if p.nextPos >= len(p.input) {
		p.char = 0
		p.pos = p.nextPos
		return false
	}
	if p.char == '\n' {
		p.lineStart = p.nextPos
		p.lineNum++
	}
	var size int
	p.char, size = utf8.DecodeRuneInString(p.input[p.nextPos:])
	p.pos = p.nextPos
	p.nextPos += size
	return true
}

// errorAt wraps an error with line and column information.
func errorAt(err error, line int, column int, input string) error {
	if strings.ContainsRune(input, '\n') {
		return fmt.Errorf("line %d, column %d: %w", line, column, err)
	}
	return fmt.Errorf("column %d: %w", column, err)
}

func (p *Parser) errorf(format string, args ...any) error {
	return errorAt(fmt.Errorf(format, args...), p.lineNum, p.colNum(), p.input)
}

// A checkpoint struct for saving parser state to restore later.
type checkpoint struct {
	parser    *Parser
	pos       int
	nextPos   int
	char      rune
	lineNum   int
	lineStart int
}

// save takes a snapshot of the state of the parser and returns a pointer to a
// checkpoint that represents it.
func (p *Parser) save() *checkpoint {
	return &checkpoint{
		parser:    p,
		pos:       p.pos,
		nextPos:   p.nextPos,
		char:      p.char,
		lineNum:   p.lineNum,
		lineStart: p.lineStart,
	}
}

// restore sets the internal state of the parser to the values stored in the
// checkpoint.
func (cp *checkpoint) restore() {
	cp.parser.pos = cp.pos
	cp.parser.nextPos = cp.nextPos
	cp.parser.char = cp.char
	cp.parser.lineNum = cp.lineNum
	cp.parser.lineStart = cp.lineStart
}

// skipComment jumps over comments as SQLite defines them. If no comment
// is found the parser state is left unchanged.
func (p *Parser) skipComment() bool {
	cp := p.save()
	c := p.char
	if p.skipChar('-') || p.skipChar('/') {
		if (c == '-' && p.skipChar('-')) || (c == '/' && p.skipChar('*')) {
			var end rune
			if c == '-' {
				end = '\n'
			} else {
				end = '*'
			}
			for p.pos < len(p.input) {
				if p.char == end {
					// if end == '\n' (i.e. its a -- comment) dont consume the newline.
					if end == '*' {
						p.advanceChar()
						if !p.skipChar('/') {
							continue
						}
					}
					return true
				}
				p.advanceChar()
			}
			// Reached end of input (valid comment end).
			return true
		}
		cp.restore()
		return false
	}
	return false
}

// skipBlanks advances the parser past spaces, tabs, newlines and comments.
// Returns whether the parser position was changed.
func (p *Parser) skipBlanks() bool {
	mark := p.pos
	for p.pos < len(p.input) {
		if ok := p.skipComment(); ok {
			continue
		}
		switch p.char {
		case ' ', '\t', '\r', '\n':
			p.advanceChar()
		default:
			return p.pos != mark
		}
	}
	return p.pos != mark
}

// peekChar returns true if the current char equals the one passed as parameter.
func (p *Parser) peekChar(c rune) bool {
	return p.pos < len(p.input) && p.char == c
}

// skipChar jumps over the current char if it matches the char passed as a
// parameter. Returns true in that case, false otherwise.
func (p *Parser) skipChar(c rune) bool {
	if p.pos < len(p.input) && p.char == c {
		p.advanceChar()
		return true
	}
	return false
}

// skipString advances the parser and jumps over the string passed as
// parameter, ignoring case. The string must not contain line breaks.
func (p *Parser) skipString(s string) bool {
	if p.pos+len(s) <= len(p.input) && strings.EqualFold(p.input[p.pos:p.pos+len(s)], s) {
		for range s {
			p.advanceChar()
		}
		return true
	}
	return false
}

// skipKeyword is skipString for words: the keyword must not be followed by
// a name char. Blanks before the keyword are skipped only if it matches.
func (p *Parser) skipKeyword(words ...string) bool {
	cp := p.save()
	for _, w := range words {
		p.skipBlanks()
		if !p.skipString(w) || (p.pos < len(p.input) && isNameChar(p.char)) {
			cp.restore()
			return false
		}
	}
	return true
}

// isNameChar returns true if the given char can be part of a name. It returns
// false otherwise.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// isInitialNameChar returns true if the given char can appear at the start of a
// name. It returns false otherwise.
func isInitialNameChar(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

// skipName advances the parser until it is on the first non name char and
// returns true. If the p.pos does not start on a name char it returns false.
func (p *Parser) skipName() bool {
	if p.pos >= len(p.input) {
		return false
	}
	mark := p.pos
	if isInitialNameChar(p.char) {
		p.advanceChar()
		for p.pos < len(p.input) && isNameChar(p.char) {
			p.advanceChar()
		}
	}
	return p.pos > mark
}

// skipStringLiteral jumps over a single quoted string. Doubled up quotes are
// escaped.
func (p *Parser) skipStringLiteral() (bool, error) {
	cp := p.save()

	if p.skipChar('\'') {
		// We keep track of whether the next quote has been previously
		// escaped. If not, it might be a closing quote.
		maybeCloser := true
		for p.pos < len(p.input) {
			if p.skipChar('\'') {
				// If this looks like a closing quote, check if it might be
				// an escape for a following quote. If not, we're done.
				if maybeCloser && !p.peekChar('\'') {
					return true, nil
				}
				maybeCloser = !maybeCloser
				continue
			}
			p.advanceChar()
		}

		// Reached end of string and didn't find the closing quote
		err := errorAt(fmt.Errorf("missing closing quote in string literal"), cp.lineNum, cp.pos-cp.lineStart+1, p.input)
		cp.restore()
		return false, err
	}
	return false, nil
}

// Functions with the prefix parse attempt to parse some construct. They return
// the construct, and an error and/or a bool that indicates if the construct
// was successfully parsed.
//
// Return cases:
//  - bool == true, err == nil
//		The construct was successfully parsed
//  - bool == false, err != nil
//		The construct was recognised but was not correctly formatted
//  - bool == false, err == nil
//		The construct was not the one we are looking for

// parseIdentifier parses a name made up of letters, digits and underscores
// that is not a reserved word, or any name enclosed in square brackets.
func (p *Parser) parseIdentifier() (string, bool, error) {
	p.skipBlanks()
	cp := p.save()
	if p.skipChar('[') {
		mark := p.pos
		for p.pos < len(p.input) && p.char != ']' {
			p.advanceChar()
		}
		if !p.peekChar(']') {
			cp.restore()
			return "", false, p.errorf("missing closing bracket")
		}
		name := p.input[mark:p.pos]
		p.advanceChar()
		return name, true, nil
	}
	mark := p.pos
	if !p.skipName() {
		return "", false, nil
	}
	name := p.input[mark:p.pos]
	if reserved[strings.ToUpper(name)] {
		cp.restore()
		return "", false, nil
	}
	return name, true, nil
}

// parseList parses a comma separated list of one or more items.
func parseList[T any](p *Parser, parseFn func() (T, bool, error)) ([]T, bool, error) {
	var items []T
	for {
		item, ok, err := parseFn()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			if len(items) == 0 {
				return nil, false, nil
			}
			return nil, false, p.errorf("expected item after comma")
		}
		items = append(items, item)
		p.skipBlanks()
		if !p.skipChar(',') {
			return items, true, nil
		}
	}
}

// parseClassRef parses "[ONLY|ALL] [Schema.]Class [[AS] alias]".
func (p *Parser) parseClassRef(allowAlias bool) (*ClassRef, bool, error) {
	ref := &ClassRef{Polymorphic: true}
	if p.skipKeyword("ONLY") {
		ref.Polymorphic = false
	} else {
		p.skipKeyword("ALL")
	}
	name, ok, err := p.parseIdentifier()
	if err != nil || !ok {
		return nil, false, err
	}
	ref.ClassName = name
	if p.skipChar('.') || p.skipChar(':') {
		class, ok, err := p.parseIdentifier()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected class name after %q", name)
		}
		ref.SchemaName, ref.ClassName = name, class
	}
	if !allowAlias {
		return ref, true, nil
	}
	asKeyword := p.skipKeyword("AS")
	alias, ok, err := p.parseIdentifier()
	if err != nil {
		return nil, false, err
	}
	if ok {
		ref.Alias = alias
	} else if asKeyword {
		return nil, false, p.errorf("expected alias after AS")
	}
	return ref, true, nil
}

// parsePropertyExp parses a dotted property path such as "w.Location.X".
// Whether the first name is a class alias is decided when resolving.
func (p *Parser) parsePropertyExp() (*PropertyExp, bool, error) {
	name, ok, err := p.parseIdentifier()
	if err != nil || !ok {
		return nil, false, err
	}
	pe := &PropertyExp{Path: []string{name}}
	for {
		cp := p.save()
		if !p.skipChar('.') {
			break
		}
		member, ok, err := p.parseIdentifier()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			cp.restore()
			break
		}
		pe.Path = append(pe.Path, member)
	}
	return pe, true, nil
}

func (p *Parser) parseDerivedProperty() (*DerivedProperty, bool, error) {
	p.skipBlanks()
	if p.skipChar('*') {
		return &DerivedProperty{Exp: starExp{}}, true, nil
	}
	e, ok, err := p.parseExp()
	if err != nil || !ok {
		return nil, false, err
	}
	d := &DerivedProperty{Exp: e}
	asKeyword := p.skipKeyword("AS")
	alias, ok, err := p.parseIdentifier()
	if err != nil {
		return nil, false, err
	}
	if ok {
		d.Alias = alias
	} else if asKeyword {
		return nil, false, p.errorf("expected alias after AS")
	}
	return d, true, nil
}

func (p *Parser) parseOrderItem() (*OrderItem, bool, error) {
	e, ok, err := p.parseExp()
	if err != nil || !ok {
		return nil, false, err
	}
	item := &OrderItem{Exp: e}
	if p.skipKeyword("DESC") {
		item.Desc = true
	} else {
		p.skipKeyword("ASC")
	}
	return item, true, nil
}

// parseWhere parses an optional WHERE clause.
func (p *Parser) parseWhere() (Exp, error) {
	if !p.skipKeyword("WHERE") {
		return nil, nil
	}
	e, ok, err := p.parseExp()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("expected expression after WHERE")
	}
	return e, nil
}

func (p *Parser) parseSelect() (Statement, bool, error) {
	if !p.skipKeyword("SELECT") {
		return nil, false, nil
	}
	s := &SelectStatement{}
	if p.skipKeyword("DISTINCT") {
		s.Distinct = true
	} else {
		p.skipKeyword("ALL")
	}
	items, ok, err := parseList(p, p.parseDerivedProperty)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected select clause")
	}
	s.Items = items
	if !p.skipKeyword("FROM") {
		return nil, false, p.errorf("expected FROM")
	}
	from, ok, err := p.parseClassRef(true)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected class after FROM")
	}
	s.From = from
	if s.Where, err = p.parseWhere(); err != nil {
		return nil, false, err
	}
	if p.skipKeyword("ORDER", "BY") {
		order, ok, err := parseList(p, p.parseOrderItem)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected expression after ORDER BY")
		}
		s.OrderBy = order
	}
	if p.skipKeyword("LIMIT") {
		if s.Limit, err = p.mustParseExp("LIMIT"); err != nil {
			return nil, false, err
		}
		if p.skipKeyword("OFFSET") {
			if s.Offset, err = p.mustParseExp("OFFSET"); err != nil {
				return nil, false, err
			}
		}
	}
	return s, true, nil
}

func (p *Parser) mustParseExp(after string) (Exp, error) {
	e, ok, err := p.parseExp()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("expected expression after %s", after)
	}
	return e, nil
}

func (p *Parser) parseInsert() (Statement, bool, error) {
	if !p.skipKeyword("INSERT") {
		return nil, false, nil
	}
	if !p.skipKeyword("INTO") {
		return nil, false, p.errorf("expected INTO")
	}
	into, ok, err := p.parseClassRef(false)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected class after INTO")
	}
	s := &InsertStatement{Into: into}
	p.skipBlanks()
	if !p.skipChar('(') {
		return nil, false, p.errorf("expected property list")
	}
	props, ok, err := parseList(p, p.parsePropertyExp)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected property list")
	}
	s.Props = props
	p.skipBlanks()
	if !p.skipChar(')') {
		return nil, false, p.errorf("missing closing parenthesis")
	}
	if !p.skipKeyword("VALUES") {
		return nil, false, p.errorf("expected VALUES")
	}
	p.skipBlanks()
	if !p.skipChar('(') {
		return nil, false, p.errorf("expected value list")
	}
	values, ok, err := parseList(p, p.parseExp)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected value list")
	}
	s.Values = values
	p.skipBlanks()
	if !p.skipChar(')') {
		return nil, false, p.errorf("missing closing parenthesis")
	}
	if len(s.Values) != len(s.Props) {
		return nil, false, fmt.Errorf("%d values for %d properties", len(s.Values), len(s.Props))
	}
	return s, true, nil
}

func (p *Parser) parseAssignment() (*Assignment, bool, error) {
	prop, ok, err := p.parsePropertyExp()
	if err != nil || !ok {
		return nil, false, err
	}
	p.skipBlanks()
	if !p.skipChar('=') {
		return nil, false, p.errorf("expected = after %s", prop)
	}
	value, err := p.mustParseExp("=")
	if err != nil {
		return nil, false, err
	}
	return &Assignment{Prop: prop, Value: value}, true, nil
}

func (p *Parser) parseUpdate() (Statement, bool, error) {
	if !p.skipKeyword("UPDATE") {
		return nil, false, nil
	}
	target, ok, err := p.parseClassRef(false)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected class after UPDATE")
	}
	if !p.skipKeyword("SET") {
		return nil, false, p.errorf("expected SET")
	}
	set, ok, err := parseList(p, p.parseAssignment)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected assignment after SET")
	}
	s := &UpdateStatement{Target: target, Set: set}
	if s.Where, err = p.parseWhere(); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (p *Parser) parseDelete() (Statement, bool, error) {
	if !p.skipKeyword("DELETE") {
		return nil, false, nil
	}
	if !p.skipKeyword("FROM") {
		return nil, false, p.errorf("expected FROM")
	}
	from, ok, err := p.parseClassRef(false)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected class after FROM")
	}
	s := &DeleteStatement{From: from}
	if s.Where, err = p.parseWhere(); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Expressions, lowest precedence first.

func (p *Parser) parseExp() (Exp, bool, error) {
	return p.parseBinary(p.parseAnd, "OR")
}

func (p *Parser) parseAnd() (Exp, bool, error) {
	return p.parseBinary(p.parseNot, "AND")
}

// parseBinary parses left associative chains of keyword operators.
func (p *Parser) parseBinary(operand func() (Exp, bool, error), op string) (Exp, bool, error) {
	left, ok, err := operand()
	if err != nil || !ok {
		return nil, ok, err
	}
	for p.skipKeyword(op) {
		right, ok, err := operand()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected expression after %s", op)
		}
		left = &BinaryExp{Op: op, Left: left, Right: right}
	}
	return left, true, nil
}

func (p *Parser) parseNot() (Exp, bool, error) {
	if p.skipKeyword("NOT") {
		operand, ok, err := p.parseNot()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected expression after NOT")
		}
		return &UnaryExp{Op: "NOT", Operand: operand}, true, nil
	}
	return p.parseComparison()
}

var comparisonOps = []string{"<=", ">=", "<>", "!=", "=", "<", ">"}

func (p *Parser) parseComparison() (Exp, bool, error) {
	left, ok, err := p.parseAdditive()
	if err != nil || !ok {
		return nil, ok, err
	}
	for {
		switch {
		case p.skipKeyword("IS", "NOT", "NULL"):
			left = &IsNullExp{Operand: left, Not: true}
			continue
		case p.skipKeyword("IS", "NULL"):
			left = &IsNullExp{Operand: left}
			continue
		case p.skipKeyword("NOT", "IN"):
			if left, err = p.parseInList(left, true); err != nil {
				return nil, false, err
			}
			continue
		case p.skipKeyword("IN"):
			if left, err = p.parseInList(left, false); err != nil {
				return nil, false, err
			}
			continue
		}
		op := ""
		switch {
		case p.skipKeyword("NOT", "LIKE"):
			op = "NOT LIKE"
		case p.skipKeyword("LIKE"):
			op = "LIKE"
		default:
			p.skipBlanks()
			for _, o := range comparisonOps {
				if p.skipString(o) {
					op = o
					break
				}
			}
		}
		if op == "" {
			return left, true, nil
		}
		right, ok, err := p.parseAdditive()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected expression after %s", op)
		}
		left = &BinaryExp{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseInList(operand Exp, not bool) (Exp, error) {
	p.skipBlanks()
	if !p.skipChar('(') {
		return nil, p.errorf("expected ( after IN")
	}
	list, ok, err := parseList(p, p.parseExp)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, p.errorf("expected values after IN")
	}
	p.skipBlanks()
	if !p.skipChar(')') {
		return nil, p.errorf("missing closing parenthesis")
	}
	return &InExp{Operand: operand, List: list, Not: not}, nil
}

func (p *Parser) parseAdditive() (Exp, bool, error) {
	return p.parseArithmetic(p.parseMultiplicative, "||", "+", "-")
}

func (p *Parser) parseMultiplicative() (Exp, bool, error) {
	return p.parseArithmetic(p.parseUnary, "*", "/", "%")
}

func (p *Parser) parseArithmetic(operand func() (Exp, bool, error), ops ...string) (Exp, bool, error) {
	left, ok, err := operand()
	if err != nil || !ok {
		return nil, ok, err
	}
	for {
		p.skipBlanks()
		op := ""
		for _, o := range ops {
			if p.skipString(o) {
				op = o
				break
			}
		}
		if op == "" {
			return left, true, nil
		}
		right, ok, err := operand()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected expression after %s", op)
		}
		left = &BinaryExp{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (Exp, bool, error) {
	p.skipBlanks()
	for _, op := range []rune{'-', '+'} {
		cp := p.save()
		if p.skipChar(op) {
			if p.peekChar(op) {
				// "--" starts a comment, which skipBlanks already handled.
				cp.restore()
				break
			}
			operand, ok, err := p.parseUnary()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, p.errorf("expected expression after %c", op)
			}
			return &UnaryExp{Op: string(op), Operand: operand}, true, nil
		}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Exp, bool, error) {
	p.skipBlanks()
	if p.pos >= len(p.input) {
		return nil, false, nil
	}

	if p.skipChar('(') {
		inner, err := p.mustParseExp("(")
		if err != nil {
			return nil, false, err
		}
		p.skipBlanks()
		if !p.skipChar(')') {
			return nil, false, p.errorf("missing closing parenthesis")
		}
		return &ParenExp{Inner: inner}, true, nil
	}

	if p.skipChar('?') {
		return &ParameterExp{}, true, nil
	}
	if p.skipChar(':') {
		mark := p.pos
		if !p.skipName() {
			return nil, false, p.errorf("expected parameter name after :")
		}
		return &ParameterExp{Name: p.input[mark:p.pos]}, true, nil
	}

	mark := p.pos
	if ok, err := p.skipStringLiteral(); err != nil {
		return nil, false, err
	} else if ok {
		return &LiteralExp{Kind: LiteralString, Raw: p.input[mark:p.pos]}, true, nil
	}
	if lit, ok := p.parseNumber(); ok {
		return lit, true, nil
	}

	switch {
	case p.skipKeyword("NULL"):
		return &LiteralExp{Kind: LiteralNull, Raw: "NULL"}, true, nil
	case p.skipKeyword("TRUE"):
		return &LiteralExp{Kind: LiteralBoolean, Raw: "TRUE"}, true, nil
	case p.skipKeyword("FALSE"):
		return &LiteralExp{Kind: LiteralBoolean, Raw: "FALSE"}, true, nil
	case p.skipKeyword("EXTRACT"):
		return p.parseExtract()
	}

	if f, ok, err := p.parseFunctionCall(); err != nil || ok {
		return f, ok, err
	}
	pe, ok, err := p.parsePropertyExp()
	if err != nil || !ok {
		return nil, ok, err
	}
	return pe, true, nil
}

// parseNumber parses integer, real and hexadecimal literals.
func (p *Parser) parseNumber() (*LiteralExp, bool) {
	mark := p.pos
	if p.skipString("0x") {
		for p.pos < len(p.input) && unicode.Is(unicode.ASCII_Hex_Digit, p.char) {
			p.advanceChar()
		}
		return &LiteralExp{Kind: LiteralInteger, Raw: p.input[mark:p.pos]}, true
	}
	digits := func() bool {
		start := p.pos
		for p.pos < len(p.input) && unicode.IsDigit(p.char) {
			p.advanceChar()
		}
		return p.pos > start
	}
	kind := LiteralInteger
	whole := digits()
	if p.peekChar('.') {
		cp := p.save()
		p.advanceChar()
		if !digits() && !whole {
			cp.restore()
			return nil, false
		}
		kind = LiteralReal
	} else if !whole {
		return nil, false
	}
	if p.peekChar('e') || p.peekChar('E') {
		cp := p.save()
		p.advanceChar()
		if !p.skipChar('-') {
			p.skipChar('+')
		}
		if digits() {
			kind = LiteralReal
		} else {
			cp.restore()
		}
	}
	return &LiteralExp{Kind: kind, Raw: p.input[mark:p.pos]}, true
}

func (p *Parser) parseFunctionCall() (Exp, bool, error) {
	cp := p.save()
	mark := p.pos
	if !p.skipName() {
		return nil, false, nil
	}
	name := p.input[mark:p.pos]
	p.skipBlanks()
	if reserved[strings.ToUpper(name)] || !p.skipChar('(') {
		cp.restore()
		return nil, false, nil
	}
	f := &FuncExp{Name: name}
	p.skipBlanks()
	if p.skipChar('*') {
		f.Star = true
	} else if !p.peekChar(')') {
		args, ok, err := parseList(p, p.parseExp)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, p.errorf("expected arguments of %s", name)
		}
		f.Args = args
	}
	p.skipBlanks()
	if !p.skipChar(')') {
		return nil, false, p.errorf("missing closing parenthesis")
	}
	return f, true, nil
}

// parseExtract parses the rest of "EXTRACT(prop, 'path')".
func (p *Parser) parseExtract() (Exp, bool, error) {
	p.skipBlanks()
	if !p.skipChar('(') {
		return nil, false, p.errorf("expected ( after EXTRACT")
	}
	prop, ok, err := p.parsePropertyExp()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, p.errorf("expected property in EXTRACT")
	}
	p.skipBlanks()
	if !p.skipChar(',') {
		return nil, false, p.errorf("expected , in EXTRACT")
	}
	p.skipBlanks()
	mark := p.pos
	if ok, err := p.skipStringLiteral(); err != nil {
		return nil, false, err
	} else if !ok {
		return nil, false, p.errorf("expected path string in EXTRACT")
	}
	path := unquote(p.input[mark:p.pos])
	p.skipBlanks()
	if !p.skipChar(')') {
		return nil, false, p.errorf("missing closing parenthesis")
	}
	return &ExtractExp{Prop: prop, Path: path}, true, nil
}
