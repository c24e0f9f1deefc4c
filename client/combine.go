package client

import (
	"fmt"
	"strings"

	"github.com/replnet/replnet"
	"github.com/replnet/replnet/runtime"
)

// Combine folds a response sequence into a single map: ns and id take
// the last seen value, value collects into an ordered list, status
// collects into a deduplicated list, other string-valued keys (out,
// err) concatenate in order, and anything else is last-writer-wins.
// The folding is idempotent: combining a combined message again yields
// the same map.
func Combine(responses []replnet.Message) replnet.Message {
	combined := replnet.Message{}
	var values []any
	var statuses []string
	for _, msg := range responses {
		for key, v := range msg {
			switch key {
			case replnet.KeyValue:
				if items, ok := v.([]any); ok {
					values = append(values, items...)
				} else {
					values = append(values, v)
				}
			case replnet.KeyStatus:
				switch actual := v.(type) {
				case string:
					statuses = appendStatus(statuses, actual)
				case []string:
					for _, s := range actual {
						statuses = appendStatus(statuses, s)
					}
				case []any:
					for _, item := range actual {
						if s, ok := item.(string); ok {
							statuses = appendStatus(statuses, s)
						}
					}
				}
			case replnet.KeyID, replnet.KeyNS:
				combined[key] = v
			default:
				if s, ok := v.(string); ok {
					prev, _ := combined[key].(string)
					combined[key] = prev + s
				} else {
					combined[key] = v
				}
			}
		}
	}
	if len(values) > 0 {
		combined[replnet.KeyValue] = values
	}
	if len(statuses) > 0 {
		combined[replnet.KeyStatus] = statuses
	}
	return combined
}

func appendStatus(statuses []string, status string) []string {
	for _, existing := range statuses {
		if existing == status {
			return statuses
		}
	}
	return append(statuses, status)
}

// UnreadableValueError reports a response value that the runtime's
// reader could not parse back.
type UnreadableValueError struct {
	Value string
	Cause error
}

// Error returns the error message.
func (e *UnreadableValueError) Error() string {
	return fmt.Sprintf("unreadable response value %q: %v", e.Value, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *UnreadableValueError) Unwrap() error { return e.Cause }

// ReadValue parses the message's printed value back through the
// runtime's reader. The second result reports whether a value was
// present at all.
func ReadValue(rt runtime.Runtime, msg replnet.Message) (any, bool, error) {
	raw, ok := msg[replnet.KeyValue]
	if !ok {
		return nil, false, nil
	}
	printed, ok := raw.(string)
	if !ok {
		return nil, true, &UnreadableValueError{
			Value: fmt.Sprintf("%v", raw),
			Cause: fmt.Errorf("value is %T, not a printed string", raw),
		}
	}
	form, err := rt.NewFormReader(strings.NewReader(printed)).ReadForm()
	if err != nil {
		return nil, true, &UnreadableValueError{Value: printed, Cause: err}
	}
	return form, true, nil
}
