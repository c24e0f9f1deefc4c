package client

import (
	"testing"

	"github.com/replnet/replnet"
	"github.com/replnet/replnet/runtime/echolang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine(t *testing.T) {
	responses := []replnet.Message{
		{replnet.KeyID: "r1", replnet.KeyOut: "he"},
		{replnet.KeyID: "r1", replnet.KeyValue: "1", replnet.KeyNS: "user"},
		{replnet.KeyID: "r1", replnet.KeyOut: "llo"},
		{replnet.KeyID: "r1", replnet.KeyStatus: replnet.StatusError},
		{replnet.KeyID: "r1", replnet.KeyErr: "boom\n"},
		{replnet.KeyID: "r1", replnet.KeyValue: "2", replnet.KeyNS: "other"},
		{replnet.KeyID: "r1", replnet.KeyStatus: replnet.StatusDone},
	}
	combined := Combine(responses)

	assert.Equal(t, "r1", combined.ID())
	assert.Equal(t, "other", combined.Str(replnet.KeyNS))
	assert.Equal(t, []any{"1", "2"}, combined[replnet.KeyValue])
	assert.Equal(t, []string{replnet.StatusError, replnet.StatusDone}, combined[replnet.KeyStatus])
	assert.Equal(t, "hello", combined.Str(replnet.KeyOut))
	assert.Equal(t, "boom\n", combined.Str(replnet.KeyErr))
}

func TestCombine_SingletonValueIsWrapped(t *testing.T) {
	combined := Combine([]replnet.Message{
		{replnet.KeyID: "r1", replnet.KeyValue: "42"},
		{replnet.KeyID: "r1", replnet.KeyStatus: replnet.StatusDone},
	})
	assert.Equal(t, []any{"42"}, combined[replnet.KeyValue])
}

func TestCombine_Idempotent(t *testing.T) {
	responses := []replnet.Message{
		{replnet.KeyID: "r1", replnet.KeyOut: "out ", replnet.KeyNS: "user"},
		{replnet.KeyID: "r1", replnet.KeyValue: "1"},
		{replnet.KeyID: "r1", replnet.KeyValue: "2"},
		{replnet.KeyID: "r1", replnet.KeyStatus: replnet.StatusDone},
	}
	combined := Combine(responses)
	again := Combine([]replnet.Message{combined})
	assert.Equal(t, combined, again)
}

func TestReadValue(t *testing.T) {
	rt := echolang.New()

	v, present, err := ReadValue(rt, replnet.Message{replnet.KeyValue: "3"})
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, int64(3), v)

	v, present, err = ReadValue(rt, replnet.Message{replnet.KeyValue: `"hello"`})
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "hello", v)

	_, present, err = ReadValue(rt, replnet.Message{replnet.KeyStatus: replnet.StatusDone})
	require.NoError(t, err)
	assert.False(t, present)
}

func TestReadValue_ParseFailure(t *testing.T) {
	_, present, err := ReadValue(echolang.New(), replnet.Message{replnet.KeyValue: `"unterminated`})
	assert.True(t, present)
	require.Error(t, err)
	var unreadable *UnreadableValueError
	assert.ErrorAs(t, err, &unreadable)
}
