// Package grbl encodes motion commands for and decodes responses from
// GRBL/FluidNC style firmware.
package grbl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

type Position struct {
	X float64
	Y float64
	Z float64
}

// Buffer is the firmware's free planner blocks and serial bytes.
type Buffer struct {
	Planner int `json:"planner"`
	Serial  int `json:"serial"`
}

type StatusUpdate interface {
	IsStatusUpdate()
}

type Status struct {
	State           string
	MachinePosition *Position
	WorkPosition    *Position
	Buffer          *Buffer
	Feed            float64
}

func (s *Status) IsStatusUpdate() {}

// Position returns the work position, falling back to the machine position.
func (s *Status) Position() (*Position, bool) {
	if s.WorkPosition != nil {
		return s.WorkPosition, true
	}
	if s.MachinePosition != nil {
		return s.MachinePosition, true
	}
	return nil, false
}

type Ack struct {
}

func (a *Ack) String() string {
	return "ok"
}

func (a *Ack) IsStatusUpdate() {}

type Error int

func (e Error) IsStatusUpdate() {}

type Alarm int

func (a Alarm) IsStatusUpdate() {}

// Message is any other line, such as a banner or a bracketed [MSG:...].
type Message string

func (m Message) IsStatusUpdate() {}

type Token int

const (
	Return Token = iota
	Newline
	OpenAngle
	CloseAngle
	Colon
	Comma
	Bar
	Identifier
	Float
)

var tokens = []string{
	Return:     "RETURN",
	Newline:    "NEWLINE",
	OpenAngle:  "<",
	CloseAngle: ">",
	Colon:      ":",
	Comma:      ",",
	Bar:        "|",
	Identifier: "IDENT",
	Float:      "FLOAT",
}

func (t Token) String() string {
	return tokens[t]
}

type Lexer struct {
	pos int
	rdr *bufio.Reader
}

func NewLexer(r io.Reader) *Lexer {
	return &Lexer{
		rdr: bufio.NewReader(r),
		pos: 0,
	}
}

func (l *Lexer) Lex() (int, Token, string) {
	for {
		l.pos++
		r, _, err := l.rdr.ReadRune()
		if err != nil {
			return l.pos, Newline, Newline.String()
		}
		switch r {
		case '\n':
			return l.pos, Newline, Newline.String()
		case '\r':
			return l.pos, Return, Return.String()
		case '<':
			return l.pos, OpenAngle, OpenAngle.String()
		case '>':
			return l.pos, CloseAngle, CloseAngle.String()
		case ':':
			return l.pos, Colon, Colon.String()
		case ',':
			return l.pos, Comma, Comma.String()
		case '|':
			return l.pos, Bar, Bar.String()
		default:
			startPos := l.pos
			if l.isFloatPart(r) {
				l.backup()
				return startPos, Float, l.lexWhile(l.isFloatPart)
			}
			if unicode.IsLetter(r) {
				l.backup()
				return startPos, Identifier, l.lexWhile(unicode.IsLetter)
			}
		}
	}
}

func (l *Lexer) isFloatPart(r rune) bool {
	return unicode.IsDigit(r) || r == '.' || r == '-' || r == '+'
}

func (l *Lexer) lexWhile(accept func(rune) bool) string {
	var lit strings.Builder
	for {
		r, _, err := l.rdr.ReadRune()
		if err != nil {
			return lit.String()
		}
		if !accept(r) {
			l.backup()
			return lit.String()
		}
		lit.WriteRune(r)
	}
}

func (l *Lexer) backup() {
	l.pos--
	_ = l.rdr.UnreadRune()
}

type Parser struct {
	lexer *Lexer
}

func NewParser(r io.Reader) *Parser {
	return &Parser{
		lexer: NewLexer(r),
	}
}

type parseError struct {
	err error
}

func (p *Parser) errorf(pos int, format string, args ...interface{}) error {
	return fmt.Errorf("%d: %s", pos, fmt.Sprintf(format, args...))
}

func (p *Parser) fail(pos int, format string, args ...interface{}) {
	panic(parseError{p.errorf(pos, format, args...)})
}

func (p *Parser) number() (int, string) {
	pos, tok, lit := p.lexer.Lex()
	switch tok {
	case Colon, Comma:
		return p.number()
	case Float:
		return pos, lit
	case Bar, CloseAngle, Newline:
		p.lexer.backup()
	}
	p.fail(pos, "expected number, got %q", lit)
	return pos, ""
}

func (p *Parser) parseFloat() float64 {
	pos, lit := p.number()
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.fail(pos, "expected float, got %q", lit)
	}
	return f
}

func (p *Parser) parseInt() int {
	pos, lit := p.number()
	i, err := strconv.Atoi(lit)
	if err != nil {
		p.fail(pos, "expected integer, got %q", lit)
	}
	return i
}

// parsePosition reads two or three axes.
func (p *Parser) parsePosition() *Position {
	ret := &Position{
		X: p.parseFloat(),
		Y: p.parseFloat(),
	}
	_, tok, _ := p.lexer.Lex()
	if tok == Comma {
		ret.Z = p.parseFloat()
	} else {
		p.lexer.backup()
	}
	return ret
}

func (p *Parser) parseBuffer() *Buffer {
	return &Buffer{
		Planner: p.parseInt(),
		Serial:  p.parseInt(),
	}
}

// skipField discards tokens up to the next field separator.
func (p *Parser) skipField() Token {
	for {
		_, tok, _ := p.lexer.Lex()
		switch tok {
		case Bar, CloseAngle, Newline:
			return tok
		}
	}
}

var states = map[string]bool{
	"Idle":  true,
	"Run":   true,
	"Hold":  true,
	"Jog":   true,
	"Home":  true,
	"Alarm": true,
	"Door":  true,
	"Check": true,
	"Sleep": true,
}

// field runs parse and reports whether it succeeded. A malformed field is
// left for the caller to skip so later fields still decode.
func (p *Parser) field(parse func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, isParse := r.(parseError); !isParse {
				panic(r)
			}
			ok = false
		}
	}()
	parse()
	return true
}

func (p *Parser) parseStatusUpdate(s *Status) *Status {
	for {
		_, tok, lit := p.lexer.Lex()
		switch tok {
		case Identifier:
			switch {
			case states[lit]:
				s.State = lit
			case lit == "WPos":
				if !p.field(func() { s.WorkPosition = p.parsePosition() }) && p.skipField() != Bar {
					return s
				}
			case lit == "MPos":
				if !p.field(func() { s.MachinePosition = p.parsePosition() }) && p.skipField() != Bar {
					return s
				}
			case lit == "Bf":
				if !p.field(func() { s.Buffer = p.parseBuffer() }) && p.skipField() != Bar {
					return s
				}
			case lit == "F" || lit == "FS":
				p.field(func() { s.Feed = p.parseFloat() })
				if p.skipField() != Bar {
					return s
				}
			default:
				if p.skipField() != Bar {
					return s
				}
			}
		case CloseAngle, Newline:
			return s
		}
	}
}

func (p *Parser) discard() {
	_, _ = io.Copy(io.Discard, p.lexer.rdr)
}

// Parse decodes a single response line.
func (p *Parser) Parse() (ret StatusUpdate, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(parseError)
			if !ok {
				panic(r)
			}
			ret, err = nil, pe.err
		}
		p.discard()
	}()
	for {
		pos, tok, lit := p.lexer.Lex()
		switch tok {
		case Newline:
			return nil, p.errorf(pos, "empty response")
		case Return:
		case OpenAngle:
			return p.parseStatusUpdate(new(Status)), nil
		case Identifier:
			switch strings.ToLower(lit) {
			case "ok":
				return &Ack{}, nil
			case "error":
				return Error(p.parseInt()), nil
			case "alarm":
				return Alarm(p.parseInt()), nil
			}
			return Message(lit), nil
		default:
			return Message(lit), nil
		}
	}
}

// ParseLine decodes one response line.
func ParseLine(line string) (StatusUpdate, error) {
	return NewParser(strings.NewReader(line)).Parse()
}
