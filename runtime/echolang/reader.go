package echolang

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxNestingDepth bounds list nesting in source text. Reading recurses
// per level, so an unbounded run of open parens would exhaust the stack
// instead of failing as a reader error.
const maxNestingDepth = 128

// reader parses successive top-level forms from a character stream.
type reader struct {
	r *bufio.Reader
}

func newReader(src io.Reader) *reader {
	return &reader{r: bufio.NewReader(src)}
}

// ReadForm implements runtime.FormReader.
func (rd *reader) ReadForm() (any, error) {
	if err := rd.skipSpace(); err != nil {
		return nil, io.EOF
	}
	return rd.readForm(0)
}

func (rd *reader) readForm(depth int) (any, error) {
	if depth > maxNestingDepth {
		return nil, fmt.Errorf("form nesting exceeds %d levels", maxNestingDepth)
	}
	c, err := rd.r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("unexpected end of source: %w", io.ErrUnexpectedEOF)
	}
	switch c {
	case '(':
		return rd.readList(depth + 1)
	case ')':
		return nil, fmt.Errorf("unmatched delimiter: )")
	case '"':
		return rd.readString()
	default:
		if err := rd.r.UnreadByte(); err != nil {
			return nil, err
		}
		return rd.readAtom()
	}
}

func (rd *reader) readList(depth int) (any, error) {
	items := []any{}
	for {
		if err := rd.skipSpace(); err != nil {
			return nil, fmt.Errorf("unterminated list: %w", io.ErrUnexpectedEOF)
		}
		c, err := rd.r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("unterminated list: %w", io.ErrUnexpectedEOF)
		}
		if c == ')' {
			return items, nil
		}
		if err := rd.r.UnreadByte(); err != nil {
			return nil, err
		}
		item, err := rd.readForm(depth)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (rd *reader) readString() (any, error) {
	var b strings.Builder
	b.WriteByte('"')
	for {
		c, err := rd.r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("unterminated string: %w", io.ErrUnexpectedEOF)
		}
		b.WriteByte(c)
		if c == '\\' {
			next, err := rd.r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("unterminated string escape: %w", io.ErrUnexpectedEOF)
			}
			b.WriteByte(next)
			continue
		}
		if c == '"' {
			break
		}
	}
	s, err := strconv.Unquote(b.String())
	if err != nil {
		return nil, fmt.Errorf("unreadable string literal: %w", err)
	}
	return s, nil
}

func (rd *reader) readAtom() (any, error) {
	var b strings.Builder
	for {
		c, err := rd.r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isSpace(c) || c == '(' || c == ')' || c == '"' {
			if err := rd.r.UnreadByte(); err != nil {
				return nil, err
			}
			break
		}
		b.WriteByte(c)
	}
	tok := b.String()
	if tok == "" {
		return nil, fmt.Errorf("empty form")
	}
	switch tok {
	case "nil":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n, nil
	}
	return Symbol(tok), nil
}

func (rd *reader) skipSpace() error {
	for {
		c, err := rd.r.ReadByte()
		if err != nil {
			return err
		}
		if c == ';' {
			// comment runs to end of line
			if _, err := rd.r.ReadString('\n'); err != nil {
				return err
			}
			continue
		}
		if !isSpace(c) {
			return rd.r.UnreadByte()
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ','
}
