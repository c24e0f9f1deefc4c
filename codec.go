package replnet

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Encoder writes framed messages to a stream. A message is a decimal
// pair count followed by 2*count readable tokens:
//
//	<count>\n
//	<key1>\n <value1>\n
//	...
//
// Keys are emitted as bare symbols, string values quoted with standard
// escapes, integers and booleans in their literal syntax, and nested
// collections in parenthesized/braced readable form. Concurrent Encode
// calls are serialized so a message is never interleaved on the wire.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one message and flushes it.
func (e *Encoder) Encode(m Message) error {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(m)))
	b.WriteByte('\n')
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeSym(&b, k); err != nil {
			return err
		}
		b.WriteByte('\n')
		if err := writeValue(&b, m[k]); err != nil {
			return err
		}
		b.WriteByte('\n')
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.WriteString(b.String()); err != nil {
		return err
	}
	return e.w.Flush()
}

func writeSym(b *strings.Builder, s string) error {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"()[]{}") {
		return fmt.Errorf("invalid symbol token %q", s)
	}
	b.WriteString(s)
	return nil
}

func writeValue(b *strings.Builder, v any) error {
	switch actual := v.(type) {
	case nil:
		b.WriteString("nil")
	case bool:
		b.WriteString(strconv.FormatBool(actual))
	case int:
		b.WriteString(strconv.Itoa(actual))
	case int64:
		b.WriteString(strconv.FormatInt(actual, 10))
	case string:
		b.WriteString(strconv.Quote(actual))
	case Sym:
		return writeSym(b, string(actual))
	case []any:
		b.WriteByte('(')
		for i, item := range actual {
			if i > 0 {
				b.WriteByte(' ')
			}
			if err := writeValue(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(')')
	case map[string]any:
		return writeMap(b, actual)
	case Message:
		return writeMap(b, actual)
	default:
		return fmt.Errorf("unsupported message value type %T", v)
	}
	return nil
}

func writeMap(b *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(' ')
		if err := writeValue(b, m[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

// maxNestingDepth bounds how deeply collections on the wire may nest.
// Decoding recurses per level, so an unbounded run of open delimiters
// would otherwise exhaust the stack instead of failing as a framing
// error.
const maxNestingDepth = 128

// Decoder reads framed messages from a stream. Concurrent Decode calls
// are serialized. A clean end of stream before a message starts yields
// io.EOF; any truncation, unreadable token or over-deep nesting
// mid-message yields a *FramingError.
type Decoder struct {
	mu sync.Mutex
	r  *bufio.Reader
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads one message.
func (d *Decoder) Decode() (Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.skipSpace(); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, NewFramingError("reading message count", err)
	}
	count, err := d.readCount()
	if err != nil {
		return nil, err
	}
	msg := make(Message, count)
	for i := 0; i < count; i++ {
		key, err := d.readKey(0)
		if err != nil {
			return nil, err
		}
		value, err := d.readValue(0)
		if err != nil {
			return nil, err
		}
		msg[key] = value
	}
	return msg, nil
}

func (d *Decoder) readCount() (int, error) {
	tok, err := d.readValue(0)
	if err != nil {
		return 0, err
	}
	n, ok := tok.(int64)
	if !ok || n < 0 {
		return 0, NewFramingError(fmt.Sprintf("malformed pair count %v", tok), nil)
	}
	return int(n), nil
}

// readKey coerces the next token to a plain string key whether it was
// emitted as a bare symbol or a quoted string.
func (d *Decoder) readKey(depth int) (string, error) {
	tok, err := d.readValue(depth)
	if err != nil {
		return "", err
	}
	switch actual := tok.(type) {
	case Sym:
		return string(actual), nil
	case string:
		return actual, nil
	default:
		return "", NewFramingError(fmt.Sprintf("key token %v is not a symbol or string", tok), nil)
	}
}

func (d *Decoder) readValue(depth int) (any, error) {
	if depth > maxNestingDepth {
		return nil, NewFramingError(fmt.Sprintf("collection nesting exceeds %d levels", maxNestingDepth), nil)
	}
	if err := d.skipSpace(); err != nil {
		return nil, NewFramingError("truncated message", io.ErrUnexpectedEOF)
	}
	c, err := d.r.ReadByte()
	if err != nil {
		return nil, NewFramingError("truncated message", io.ErrUnexpectedEOF)
	}
	switch c {
	case '"':
		return d.readString()
	case '(':
		return d.readList(')', depth+1)
	case '[':
		return d.readList(']', depth+1)
	case '{':
		return d.readMap(depth + 1)
	case ')', ']', '}':
		return nil, NewFramingError(fmt.Sprintf("unexpected %q", c), nil)
	default:
		if err := d.r.UnreadByte(); err != nil {
			return nil, NewFramingError("unread failed", err)
		}
		return d.readAtom()
	}
}

func (d *Decoder) readString() (string, error) {
	var b strings.Builder
	b.WriteByte('"')
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return "", NewFramingError("truncated string", io.ErrUnexpectedEOF)
		}
		b.WriteByte(c)
		if c == '\\' {
			next, err := d.r.ReadByte()
			if err != nil {
				return "", NewFramingError("truncated string escape", io.ErrUnexpectedEOF)
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
		return "", NewFramingError("unreadable string token", err)
	}
	return s, nil
}

func (d *Decoder) readList(terminator byte, depth int) ([]any, error) {
	items := []any{}
	for {
		if err := d.skipSpace(); err != nil {
			return nil, NewFramingError("truncated collection", io.ErrUnexpectedEOF)
		}
		c, err := d.r.ReadByte()
		if err != nil {
			return nil, NewFramingError("truncated collection", io.ErrUnexpectedEOF)
		}
		if c == terminator {
			return items, nil
		}
		if err := d.r.UnreadByte(); err != nil {
			return nil, NewFramingError("unread failed", err)
		}
		item, err := d.readValue(depth)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (d *Decoder) readMap(depth int) (map[string]any, error) {
	ret := map[string]any{}
	for {
		if err := d.skipSpace(); err != nil {
			return nil, NewFramingError("truncated map", io.ErrUnexpectedEOF)
		}
		c, err := d.r.ReadByte()
		if err != nil {
			return nil, NewFramingError("truncated map", io.ErrUnexpectedEOF)
		}
		if c == '}' {
			return ret, nil
		}
		if err := d.r.UnreadByte(); err != nil {
			return nil, NewFramingError("unread failed", err)
		}
		key, err := d.readKey(depth)
		if err != nil {
			return nil, err
		}
		value, err := d.readValue(depth)
		if err != nil {
			return nil, err
		}
		ret[key] = value
	}
}

func (d *Decoder) readAtom() (any, error) {
	var b strings.Builder
	for {
		c, err := d.r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewFramingError("truncated token", err)
		}
		if isSpace(c) || c == '(' || c == ')' || c == '[' || c == ']' || c == '{' || c == '}' || c == '"' {
			if err := d.r.UnreadByte(); err != nil {
				return nil, NewFramingError("unread failed", err)
			}
			break
		}
		b.WriteByte(c)
	}
	tok := b.String()
	if tok == "" {
		return nil, NewFramingError("empty token", nil)
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
	return Sym(tok), nil
}

func (d *Decoder) skipSpace() error {
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		if !isSpace(c) {
			return d.r.UnreadByte()
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
