package echolang

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/replnet/replnet/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, src string) []any {
	t.Helper()
	r := New().NewFormReader(strings.NewReader(src))
	var forms []any
	for {
		form, err := r.ReadForm()
		if err == io.EOF {
			return forms
		}
		require.NoError(t, err)
		forms = append(forms, form)
	}
}

func TestReader(t *testing.T) {
	forms := readAll(t, `1 -2 "three" sym (+ 1 (myfn "x")) true nil ; trailing comment
`)
	assert.Equal(t, []any{
		int64(1),
		int64(-2),
		"three",
		Symbol("sym"),
		[]any{Symbol("+"), int64(1), []any{Symbol("myfn"), "x"}},
		true,
		nil,
	}, forms)
}

func TestReader_Errors(t *testing.T) {
	for _, src := range []string{`(+ 1 2`, `"open`, `)`, strings.Repeat("(", 1_000_000)} {
		r := New().NewFormReader(strings.NewReader(src))
		_, err := r.ReadForm()
		assert.Error(t, err, "source %q", src)
	}
}

func evalAll(t *testing.T, r *Runtime, ec *runtime.Context, src string) (any, error) {
	t.Helper()
	var last any
	for _, form := range readAll(t, src) {
		v, err := r.Eval(context.Background(), ec, form)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{name: "arithmetic", src: "(+ 1 2)", want: int64(3)},
		{name: "nested", src: "(* (+ 1 2) (- 10 4))", want: int64(18)},
		{name: "division", src: "(/ 10 2)", want: int64(5)},
		{name: "def and lookup", src: "(def x 41) (+ x 1)", want: int64(42)},
		{name: "str", src: `(str "a" 1 "b")`, want: "a1b"},
		{name: "do", src: "(do 1 2 3)", want: int64(3)},
		{name: "self evaluating string", src: `"hello"`, want: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			ec := &runtime.Context{Namespace: r.DefaultNamespace()}
			got, err := evalAll(t, r, ec, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "divide by zero", src: "(/ 1 0)"},
		{name: "unresolved symbol", src: "nope"},
		{name: "unresolved function", src: "(nope 1)"},
		{name: "non integer arithmetic", src: `(+ 1 "two")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			ec := &runtime.Context{Namespace: r.DefaultNamespace()}
			_, err := evalAll(t, r, ec, tt.src)
			assert.Error(t, err)
		})
	}
}

func TestEval_VarsAreNamespaced(t *testing.T) {
	r := New()
	ec := &runtime.Context{Namespace: "user"}
	_, err := evalAll(t, r, ec, "(def x 1)")
	require.NoError(t, err)

	other := &runtime.Context{Namespace: "other"}
	_, err = evalAll(t, r, other, "x")
	assert.Error(t, err)

	v, err := evalAll(t, r, &runtime.Context{Namespace: "user"}, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestEval_InNS(t *testing.T) {
	r := New()
	ec := &runtime.Context{Namespace: "user"}
	v, err := evalAll(t, r, ec, "(in-ns mine)")
	require.NoError(t, err)
	assert.Equal(t, Symbol("mine"), v)
	assert.Equal(t, "mine", ec.Namespace)
}

func TestEval_PrintAndReadLine(t *testing.T) {
	r := New()
	out := new(bytes.Buffer)
	ec := &runtime.Context{
		Namespace: "user",
		Stdout:    out,
		Stdin:     strings.NewReader("first line\nsecond"),
	}
	_, err := evalAll(t, r, ec, `(print "hi" 42)`)
	require.NoError(t, err)
	assert.Equal(t, "hi 42", out.String())

	v, err := evalAll(t, r, ec, "(read-line)")
	require.NoError(t, err)
	assert.Equal(t, "first line", v)
	v, err = evalAll(t, r, ec, "(read-line)")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
	v, err = evalAll(t, r, ec, "(read-line)")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEval_SleepHonorsCancellation(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	started := time.Now()
	form := readAll(t, "(sleep 60000)")[0]
	_, err := r.Eval(ctx, &runtime.Context{Namespace: "user"}, form)
	assert.Error(t, err)
	assert.Less(t, time.Since(started), 10*time.Second)
}

func TestEval_Hooks(t *testing.T) {
	r := New()
	var interruptedID string
	var ackPort int
	ec := &runtime.Context{
		Namespace: "user",
		Interrupt: func(id string) bool {
			interruptedID = id
			return true
		},
		DeliverAck:     func(port int) { ackPort = port },
		RetainSession:  func() string { return "sid-1" },
		ReleaseSession: func() bool { return true },
	}
	v, err := evalAll(t, r, ec, `(interrupt! "req-9")`)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Equal(t, "req-9", interruptedID)

	_, err = evalAll(t, r, ec, "(deliver-ack 4242)")
	require.NoError(t, err)
	assert.Equal(t, 4242, ackPort)

	v, err = evalAll(t, r, ec, "(retain-session)")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", v)

	v, err = evalAll(t, r, ec, "(release-session)")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestPrint(t *testing.T) {
	r := New()
	tests := []struct {
		name string
		v    any
		opts runtime.Options
		want string
	}{
		{name: "int", v: int64(3), want: "3"},
		{name: "string quoted", v: "hi", want: `"hi"`},
		{name: "nil", v: nil, want: "nil"},
		{name: "symbol raw", v: Symbol("#'user/x"), want: "#'user/x"},
		{name: "list", v: []any{int64(1), "a"}, want: `(1 "a")`},
		{
			name: "print length",
			v:    []any{int64(1), int64(2), int64(3), int64(4)},
			opts: runtime.Options{PrintLength: 2},
			want: "(1 2 ...)",
		},
		{
			name: "print level",
			v:    []any{int64(1), []any{int64(2), []any{int64(3)}}},
			opts: runtime.Options{PrintLevel: 2},
			want: "(1 (2 #))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Print(tt.v, &tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrettyPrint(t *testing.T) {
	r := New()
	got, ok, err := r.PrettyPrint([]any{int64(1), int64(2)}, &runtime.Options{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "(1\n 2)", got)
}

func TestFormatTrace(t *testing.T) {
	r := New()
	ec := &runtime.Context{Namespace: "user"}
	_, err := evalAll(t, r, ec, "(/ 1 0)")
	require.Error(t, err)

	short := r.FormatTrace(err, false)
	assert.Equal(t, 1, strings.Count(short, "\n"))

	detail := r.FormatTrace(err, true)
	assert.Contains(t, detail, "caused by: divide by zero")
}
