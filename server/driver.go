package server

import (
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/replnet/replnet"
	"github.com/replnet/replnet/runtime"
)

// Hooks are the server operations the driver exposes to evaluated code
// through the evaluation context.
type Hooks struct {
	Interrupt      func(id string) bool
	DeliverAck     func(port int)
	RetainSession  func() string
	ReleaseSession func() bool
}

// Driver runs a read-eval-print loop over one request's source text
// under a session's bindings, producing value, out, err and error
// responses. The terminal status is emitted by the request supervisor,
// not the driver.
type Driver struct {
	rt          runtime.Runtime
	session     *Session
	out         *OutStream
	errOut      *OutStream
	interrupted *atomic.Bool
	emit        EmitFunc
	hooks       Hooks
}

// NewDriver creates a driver for one request.
func NewDriver(rt runtime.Runtime, session *Session, out, errOut *OutStream, interrupted *atomic.Bool, emit EmitFunc, hooks Hooks) *Driver {
	return &Driver{
		rt:          rt,
		session:     session,
		out:         out,
		errOut:      errOut,
		interrupted: interrupted,
		emit:        emit,
		hooks:       hooks,
	}
}

// Run evaluates every top-level form in the request's code. Evaluation
// errors recover per form; reader errors end the run since the token
// stream cannot be resynchronized. Both sinks are flushed before
// returning.
func (d *Driver) Run(ctx context.Context, request replnet.Message) {
	ec := &runtime.Context{}
	d.session.Apply(ec)
	if ns := request.Str(replnet.KeyNS); ns != "" {
		ec.Namespace = ns
	}
	ec.Stdin = strings.NewReader(request.Str(replnet.KeyIn))
	ec.Stdout = d.out
	ec.Stderr = d.errOut
	ec.Interrupt = d.hooks.Interrupt
	ec.DeliverAck = d.hooks.DeliverAck
	ec.RetainSession = d.hooks.RetainSession
	ec.ReleaseSession = d.hooks.ReleaseSession

	defer func() {
		d.out.Flush()
		d.errOut.Flush()
	}()

	forms := d.rt.NewFormReader(strings.NewReader(request.Str(replnet.KeyCode)))
	for {
		if d.interrupted.Load() || ctx.Err() != nil {
			return
		}
		form, err := forms.ReadForm()
		if err == io.EOF {
			return
		}
		if err != nil {
			d.fail(ec, err)
			return
		}
		value, err := d.rt.Eval(ctx, ec, form)
		if err != nil {
			d.fail(ec, err)
			if d.interrupted.Load() || ctx.Err() != nil {
				return
			}
			continue
		}
		printed, err := d.print(value, &ec.Options)
		if err != nil {
			d.fail(ec, err)
			continue
		}
		d.emit(replnet.Message{replnet.KeyValue: printed, replnet.KeyNS: ec.Namespace})
		ec.V3, ec.V2, ec.V1 = ec.V2, ec.V1, value
		d.session.Rotate(value, ec.Namespace)
		d.out.Flush()
		d.errOut.Flush()
	}
}

func (d *Driver) print(v any, opts *runtime.Options) (string, error) {
	if opts.PrettyPrint {
		if printed, ok, err := d.rt.PrettyPrint(v, opts); ok {
			return printed, err
		}
	}
	return d.rt.Print(v, opts)
}

// fail records the exception on the session, emits a non-terminal
// error status and writes the trace to the err sink.
func (d *Driver) fail(ec *runtime.Context, err error) {
	ec.LastError = err
	d.session.RecordError(err)
	d.emit(replnet.Message{replnet.KeyStatus: replnet.StatusError})
	trace := d.rt.FormatTrace(err, ec.Options.DetailOnError)
	_, _ = io.WriteString(d.errOut, trace)
	d.out.Flush()
	d.errOut.Flush()
}
