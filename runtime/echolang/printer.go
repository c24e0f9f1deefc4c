package echolang

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/replnet/replnet/runtime"
)

// Print implements runtime.Runtime.
func (r *Runtime) Print(v any, opts *runtime.Options) (string, error) {
	return printValue(v, 0, opts), nil
}

// PrettyPrint implements runtime.Runtime. Lists are broken across
// indented lines; atoms render as Print does.
func (r *Runtime) PrettyPrint(v any, opts *runtime.Options) (string, bool, error) {
	items, ok := v.([]any)
	if !ok || len(items) < 2 {
		return printValue(v, 0, opts), true, nil
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n ")
		}
		b.WriteString(printValue(item, 1, opts))
	}
	b.WriteByte(')')
	return b.String(), true, nil
}

func printValue(v any, depth int, opts *runtime.Options) string {
	switch actual := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(actual)
	case int64:
		return strconv.FormatInt(actual, 10)
	case string:
		return strconv.Quote(actual)
	case Symbol:
		return string(actual)
	case []any:
		if opts != nil && opts.PrintLevel > 0 && depth >= opts.PrintLevel {
			return "#"
		}
		var b strings.Builder
		b.WriteByte('(')
		for i, item := range actual {
			if opts != nil && opts.PrintLength > 0 && i >= opts.PrintLength {
				b.WriteString(" ...")
				break
			}
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(printValue(item, depth+1, opts))
		}
		b.WriteByte(')')
		return b.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatTrace implements runtime.Runtime. The short form is the
// outermost message; the detailed form walks the cause chain.
func (r *Runtime) FormatTrace(err error, detail bool) string {
	if err == nil {
		return ""
	}
	if !detail {
		return err.Error() + "\n"
	}
	var b strings.Builder
	b.WriteString(err.Error())
	b.WriteByte('\n')
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		b.WriteString(" caused by: ")
		b.WriteString(cause.Error())
		b.WriteByte('\n')
	}
	return b.String()
}
