// Package echolang is a reference host-runtime adapter: a minimal
// s-expression language with namespaced vars, enough surface to drive
// the REPL server end to end. It is the runtime the daemon and the
// test suite run against; real deployments plug their own adapter.
package echolang

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/replnet/replnet/runtime"
)

// Symbol is an evaluated identifier. Printed verbatim.
type Symbol string

// Runtime implements runtime.Runtime. Vars defined with def live on
// the Runtime instance, keyed by namespace, and are shared by every
// session the way a language runtime's globals are.
type Runtime struct {
	mu   sync.RWMutex
	vars map[string]map[string]any
}

// New creates a new Runtime.
func New() *Runtime {
	return &Runtime{vars: map[string]map[string]any{}}
}

// DefaultNamespace implements runtime.Runtime.
func (r *Runtime) DefaultNamespace() string { return "user" }

// NewFormReader implements runtime.Runtime.
func (r *Runtime) NewFormReader(src io.Reader) runtime.FormReader {
	return newReader(src)
}

func (r *Runtime) lookup(ns, name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[ns][name]
	return v, ok
}

func (r *Runtime) define(ns, name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.vars[ns] == nil {
		r.vars[ns] = map[string]any{}
	}
	r.vars[ns][name] = value
}

// Eval implements runtime.Runtime.
func (r *Runtime) Eval(ctx context.Context, ec *runtime.Context, form any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluation interrupted: %w", err)
	}
	switch actual := form.(type) {
	case nil, bool, int64, string:
		return actual, nil
	case Symbol:
		if v, ok := r.lookup(ec.Namespace, string(actual)); ok {
			return v, nil
		}
		return nil, fmt.Errorf("unable to resolve symbol: %s in this context", actual)
	case []any:
		return r.evalList(ctx, ec, actual)
	default:
		return nil, fmt.Errorf("cannot evaluate %T", form)
	}
}

func (r *Runtime) evalList(ctx context.Context, ec *runtime.Context, form []any) (any, error) {
	if len(form) == 0 {
		return []any{}, nil
	}
	head, ok := form[0].(Symbol)
	if !ok {
		return nil, fmt.Errorf("cannot invoke %v", form[0])
	}
	switch head {
	case "def":
		return r.evalDef(ctx, ec, form)
	case "in-ns":
		return r.evalInNS(ctx, ec, form)
	case "do":
		var last any
		for _, item := range form[1:] {
			v, err := r.Eval(ctx, ec, item)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil
	}
	args := make([]any, 0, len(form)-1)
	for _, item := range form[1:] {
		v, err := r.Eval(ctx, ec, item)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return r.invoke(ctx, ec, string(head), args)
}

func (r *Runtime) evalDef(ctx context.Context, ec *runtime.Context, form []any) (any, error) {
	if len(form) != 3 {
		return nil, fmt.Errorf("def expects a name and a value")
	}
	name, ok := form[1].(Symbol)
	if !ok {
		return nil, fmt.Errorf("def expects a symbol, got %v", form[1])
	}
	value, err := r.Eval(ctx, ec, form[2])
	if err != nil {
		return nil, err
	}
	r.define(ec.Namespace, string(name), value)
	return Symbol(fmt.Sprintf("#'%s/%s", ec.Namespace, name)), nil
}

func (r *Runtime) evalInNS(_ context.Context, ec *runtime.Context, form []any) (any, error) {
	if len(form) != 2 {
		return nil, fmt.Errorf("in-ns expects a namespace name")
	}
	var name string
	switch actual := form[1].(type) {
	case Symbol:
		name = string(actual)
	case string:
		name = actual
	default:
		return nil, fmt.Errorf("in-ns expects a symbol or string, got %v", form[1])
	}
	ec.Namespace = name
	return Symbol(name), nil
}

func (r *Runtime) invoke(ctx context.Context, ec *runtime.Context, name string, args []any) (any, error) {
	switch name {
	case "+", "-", "*", "/":
		return arith(name, args)
	case "list":
		return args, nil
	case "str":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(stringify(a))
		}
		return b.String(), nil
	case "print", "println":
		text := make([]string, len(args))
		for i, a := range args {
			text[i] = stringify(a)
		}
		line := strings.Join(text, " ")
		if name == "println" {
			line += "\n"
		}
		if ec.Stdout != nil {
			if _, err := io.WriteString(ec.Stdout, line); err != nil {
				return nil, fmt.Errorf("print failed: %w", err)
			}
		}
		return nil, nil
	case "read-line":
		return readLine(ec.Stdin)
	case "sleep":
		return sleep(ctx, args)
	case "interrupt!":
		if len(args) != 1 || ec.Interrupt == nil {
			return nil, fmt.Errorf("interrupt! expects a request id")
		}
		id, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("interrupt! expects a string id, got %v", args[0])
		}
		return ec.Interrupt(id), nil
	case "deliver-ack":
		if len(args) != 1 || ec.DeliverAck == nil {
			return nil, fmt.Errorf("deliver-ack expects a port")
		}
		port, ok := args[0].(int64)
		if !ok {
			return nil, fmt.Errorf("deliver-ack expects an integer port, got %v", args[0])
		}
		ec.DeliverAck(int(port))
		return nil, nil
	case "retain-session":
		if ec.RetainSession == nil {
			return nil, fmt.Errorf("no session to retain")
		}
		return ec.RetainSession(), nil
	case "release-session":
		if ec.ReleaseSession == nil {
			return nil, fmt.Errorf("no session to release")
		}
		return ec.ReleaseSession(), nil
	}
	return nil, fmt.Errorf("unable to resolve symbol: %s in this context", name)
}

func arith(op string, args []any) (any, error) {
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(int64)
		if !ok {
			return nil, fmt.Errorf("%s expects integers, got %v", op, a)
		}
		nums[i] = n
	}
	if len(nums) == 0 {
		if op == "+" {
			return int64(0), nil
		}
		if op == "*" {
			return int64(1), nil
		}
		return nil, fmt.Errorf("%s expects at least one argument", op)
	}
	acc := nums[0]
	for _, n := range nums[1:] {
		switch op {
		case "+":
			acc += n
		case "-":
			acc -= n
		case "*":
			acc *= n
		case "/":
			if n == 0 {
				return nil, fmt.Errorf("error dividing %d: %w", acc, errDivideByZero)
			}
			acc /= n
		}
	}
	return acc, nil
}

var errDivideByZero = fmt.Errorf("divide by zero")

func readLine(in io.Reader) (any, error) {
	if in == nil {
		return nil, nil
	}
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return b.String(), nil
			}
			b.WriteByte(buf[0])
		}
		if err == io.EOF {
			if b.Len() == 0 {
				return nil, nil
			}
			return b.String(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read-line failed: %w", err)
		}
	}
}

func sleep(ctx context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sleep expects milliseconds")
	}
	ms, ok := args[0].(int64)
	if !ok {
		return nil, fmt.Errorf("sleep expects an integer, got %v", args[0])
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("evaluation interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil, nil
	}
}

// stringify renders a value for print/str: strings bare, everything
// else in readable form.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return printValue(v, 0, nil)
}
