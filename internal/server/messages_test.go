package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/document"
	"collabtext/internal/ot"
)

func TestClientMessageDecodesInsert(t *testing.T) {
	raw := `{"type":"insert","position":3,"text":"hi","clientVersion":7,"clientId":"alice","requestId":"r1"}`
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, 7, msg.ClientVersion)
	assert.Equal(t, "alice", msg.ClientID)
	assert.Equal(t, "r1", msg.RequestID)

	op, err := msg.Operation()
	require.NoError(t, err)
	assert.Equal(t, ot.Operation{Kind: ot.KindInsert, Pos: 3, Text: "hi"}, op)
}

func TestClientMessageDecodesDelete(t *testing.T) {
	raw := `{"type":"delete","position":2,"length":4,"clientVersion":1,"clientId":"bob"}`
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	op, err := msg.Operation()
	require.NoError(t, err)
	assert.Equal(t, ot.Operation{Kind: ot.KindDelete, Pos: 2, Len: 4}, op)
}

func TestClientMessageRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`{"type":"scribble","position":1}`,
		`{"type":"insert","position":1}`,
		`{"type":"delete","position":1,"length":0}`,
	} {
		var msg ClientMessage
		require.NoError(t, json.Unmarshal([]byte(raw), &msg))
		_, err := msg.Operation()
		assert.Error(t, err, "raw=%s", raw)
	}
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, codeValidation, errorCode(document.ErrValidation))
	assert.Equal(t, codeStaleVersion, errorCode(document.ErrStaleVersion))
	assert.Equal(t, codePersistence, errorCode(document.ErrPersistence))
	assert.Equal(t, codeUnsupported, errorCode(document.ErrUnsupportedOperation))
	assert.Equal(t, codeTimeout, errorCode(context.DeadlineExceeded))
	assert.Equal(t, codeInternal, errorCode(errors.New("who knows")))
}
