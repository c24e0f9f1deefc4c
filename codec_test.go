package replnet

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		message Message
	}{
		{
			name:    "request",
			message: Message{KeyID: "e1b2", KeyCode: "(+ 1 2)", KeyTimeout: int64(60000)},
		},
		{
			name:    "value response",
			message: Message{KeyID: "e1b2", KeyValue: "3", KeyNS: "user"},
		},
		{
			name:    "status response",
			message: Message{KeyID: "e1b2", KeyStatus: StatusDone},
		},
		{
			name:    "empty message",
			message: Message{},
		},
		{
			name: "escapes and unicode",
			message: Message{KeyOut: "line one\nline \"two\"\t\\end", KeyErr: "héllo → ∞"},
		},
		{
			name: "heterogeneous values",
			message: Message{
				"flag":   true,
				"none":   nil,
				"n":      int64(-42),
				"sym":    Sym("#'user/x"),
				"items":  []any{int64(1), "two", false, []any{Sym("nested")}},
				"lookup": map[string]any{"a": int64(1), "b": []any{"x"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			err := NewEncoder(buf).Encode(tt.message)
			assert.NoError(t, err)
			got, err := NewDecoder(buf).Decode()
			assert.NoError(t, err)
			assert.EqualValues(t, tt.message, got)
		})
	}
}

func TestDecoder_KeyCoercion(t *testing.T) {
	// A key emitted as a quoted string decodes the same as a bare symbol.
	input := "2\nid \"e1\"\n\"status\" \"done\"\n"
	got, err := NewDecoder(strings.NewReader(input)).Decode()
	assert.NoError(t, err)
	assert.Equal(t, Message{KeyID: "e1", KeyStatus: StatusDone}, got)
}

func TestDecoder_SquareBracketSequence(t *testing.T) {
	input := "1\nitems [1 2 \"three\"]\n"
	got, err := NewDecoder(strings.NewReader(input)).Decode()
	assert.NoError(t, err)
	assert.Equal(t, Message{"items": []any{int64(1), int64(2), "three"}}, got)
}

func TestDecoder_Stream(t *testing.T) {
	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	first := Message{KeyID: "a", KeyValue: "1"}
	second := Message{KeyID: "a", KeyStatus: StatusDone}
	assert.NoError(t, enc.Encode(first))
	assert.NoError(t, enc.Encode(second))

	dec := NewDecoder(buf)
	got, err := dec.Decode()
	assert.NoError(t, err)
	assert.Equal(t, first, got)
	got, err = dec.Decode()
	assert.NoError(t, err)
	assert.Equal(t, second, got)
	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "malformed count", input: "banana\nid \"e1\"\n"},
		{name: "negative count", input: "-1\n"},
		{name: "eof mid message", input: "2\nid \"e1\"\n"},
		{name: "truncated string", input: "1\nout \"unterminated"},
		{name: "truncated collection", input: "1\nitems (1 2"},
		{name: "non atom key", input: "1\n(id) \"e1\"\n"},
		{name: "nesting bomb", input: "1\nitems " + strings.Repeat("(", 1_000_000)},
		{name: "map nesting bomb", input: "1\nlookup " + strings.Repeat("{\"k\" ", 1_000_000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(strings.NewReader(tt.input)).Decode()
			assert.Error(t, err)
			var framing *FramingError
			assert.ErrorAs(t, err, &framing)
		})
	}
}

func TestEncoder_RejectsUnsupportedValue(t *testing.T) {
	err := NewEncoder(new(bytes.Buffer)).Encode(Message{"v": 3.14})
	assert.Error(t, err)
}

func TestMessage_Terminal(t *testing.T) {
	assert.True(t, Message{KeyStatus: StatusDone}.Terminal())
	assert.True(t, Message{KeyStatus: StatusTimeout}.Terminal())
	assert.True(t, Message{KeyStatus: StatusInterrupted}.Terminal())
	assert.True(t, Message{KeyStatus: StatusServerFailure}.Terminal())
	assert.False(t, Message{KeyStatus: StatusError}.Terminal())
	assert.False(t, Message{KeyValue: "1"}.Terminal())
}
