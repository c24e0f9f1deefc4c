// Package runtime defines the narrow interfaces through which the REPL
// server drives a host language runtime: reading forms, evaluating
// them, printing values and formatting exception traces. The server is
// agnostic to the language behind them.
package runtime

import (
	"context"
	"io"
)

// Options holds the per-session printer and compiler toggles. Zero
// values mean "runtime default".
type Options struct {
	PrettyPrint      bool
	PrintLength      int
	PrintLevel       int
	PrintMeta        bool
	WarnOnReflection bool
	MathContext      string
	CompilePath      string
	CommandLineArgs  []string
	DetailOnError    bool
}

// Context is the explicit evaluation context threaded through a driver
// run: current namespace, rebound standard streams, the rolling last
// values and exception, printer options, and the hooks the server
// installs so evaluated one-liners can reach it.
type Context struct {
	Namespace string
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer

	V1, V2, V3 any
	LastError  error
	Options    Options

	// Interrupt cancels the in-flight request with the given id and
	// reports whether it was pending.
	Interrupt func(id string) bool
	// DeliverAck hands a bound listener port to the hosting server.
	DeliverAck func(port int)
	// RetainSession installs the current session in the session store
	// and returns its id.
	RetainSession func() string
	// ReleaseSession removes the current session from the store and
	// reports whether it was retained.
	ReleaseSession func() bool
}

// FormReader parses successive top-level forms from a source text.
type FormReader interface {
	// ReadForm returns the next form, or io.EOF when the source is
	// exhausted.
	ReadForm() (any, error)
}

// Runtime is the host language runtime consumed by the server.
type Runtime interface {
	// DefaultNamespace names the namespace a fresh session starts in.
	DefaultNamespace() string

	// NewFormReader returns a reader of top-level forms over src.
	NewFormReader(src io.Reader) FormReader

	// Eval evaluates one form under ec. The context carries the
	// request's cancellation; evaluation should abort when it is done.
	Eval(ctx context.Context, ec *Context, form any) (any, error)

	// Print renders v readably under the given options.
	Print(v any, opts *Options) (string, error)

	// PrettyPrint renders v with the runtime's pretty printer. The
	// second result reports whether a pretty printer is available.
	PrettyPrint(v any, opts *Options) (string, bool, error)

	// FormatTrace renders an evaluation error; detail selects the full
	// cause chain over the short form.
	FormatTrace(err error, detail bool) string
}
