package ot_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/ot"
)

func TestApplyInsert(t *testing.T) {
	got, err := ins(t, 0, "Hello").Apply("")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)

	got, err = ins(t, 3, "XY").Apply("abcdef")
	require.NoError(t, err)
	assert.Equal(t, "abcXYdef", got)

	// Position may equal content length.
	got, err = ins(t, 3, "!").Apply("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc!", got)
}

func TestApplyDelete(t *testing.T) {
	got, err := del(t, 2, 3).Apply("abcdefg")
	require.NoError(t, err)
	assert.Equal(t, "abfg", got)

	got, err = del(t, 0, 7).Apply("abcdefg")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestApplyNoop(t *testing.T) {
	got, err := ot.Noop().Apply("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestApplyCountsRunes(t *testing.T) {
	// "héllo" is 5 runes but 6 bytes; offsets must follow runes.
	got, err := ins(t, 2, "x").Apply("héllo")
	require.NoError(t, err)
	assert.Equal(t, "héxllo", got)

	got, err = del(t, 1, 2).Apply("héllo")
	require.NoError(t, err)
	assert.Equal(t, "hlo", got)
}

func TestApplyOutOfBounds(t *testing.T) {
	_, err := ins(t, 4, "x").Apply("abc")
	assert.Error(t, err)

	_, err = del(t, 2, 5).Apply("abc")
	assert.Error(t, err)

	_, err = del(t, 0, 1).Apply("")
	assert.Error(t, err)
}

func TestConstructorsRejectInvalid(t *testing.T) {
	_, err := ot.NewInsert(-1, "x")
	assert.Error(t, err)
	_, err = ot.NewInsert(0, "")
	assert.Error(t, err)
	_, err = ot.NewDelete(-1, 2)
	assert.Error(t, err)
	_, err = ot.NewDelete(0, 0)
	assert.Error(t, err)
}

func TestOperationJSON(t *testing.T) {
	for _, op := range []ot.Operation{ins(t, 3, "héllo"), del(t, 0, 4), ot.Noop()} {
		data, err := json.Marshal(op)
		require.NoError(t, err)
		var got ot.Operation
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, op, got)
	}

	data, err := json.Marshal(ins(t, 1, "x"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"insert","position":1,"text":"x"}`, string(data))

	data, err = json.Marshal(del(t, 2, 3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delete","position":2,"length":3}`, string(data))
}

func TestOperationJSONRejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		`{"type":"scribble","position":1}`,
		`{"type":"insert","position":1}`,
		`{"type":"insert","position":-1,"text":"x"}`,
		`{"type":"delete","position":1}`,
		`{"type":"delete","position":1,"length":-2}`,
	} {
		var op ot.Operation
		assert.Error(t, json.Unmarshal([]byte(raw), &op), "raw=%s", raw)
	}
}
