package schema_test

import (
	"encoding/json"
	"testing"

	assert "github.com/stretchr/testify/assert"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
)

func TestKind(t *testing.T) {
	assert := assert.New(t)

	req := schema.NewRequest(schema.NewIntID(1), "tools/list", nil)
	assert.Equal(schema.KindRequest, req.Kind())

	note := schema.NewNotification("notifications/initialized", nil)
	assert.Equal(schema.KindNotification, note.Kind())

	res := schema.NewResponse(schema.NewIntID(1), json.RawMessage(`{}`))
	assert.Equal(schema.KindResponse, res.Kind())

	errRes := schema.NewErrorResponse(schema.NewIntID(1), schema.NewError(schema.ErrorCodeMethodNotFound, "method not found"))
	assert.Equal(schema.KindErrorResponse, errRes.Kind())

	// id + method + result is malformed per spec (§4.1)
	invalid := &schema.Envelope{Version: schema.RPCVersion, ID: schema.NewIntID(1), Method: "x", Result: json.RawMessage(`{}`)}
	assert.Equal(schema.KindInvalid, invalid.Kind())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	assert := assert.New(t)

	req := schema.NewRequest(schema.NewStringID("abc"), "tools/call", json.RawMessage(`{"name":"x"}`))
	data, err := schema.Encode(req)
	assert.NoError(err)

	decoded, err := schema.Decode(data)
	assert.NoError(err)
	assert.Equal(schema.KindRequest, decoded.Kind())
	assert.Equal("tools/call", decoded.Method)
	assert.True(decoded.ID.Equal(req.ID))
}

func TestDecodeMalformedJSON(t *testing.T) {
	assert := assert.New(t)
	_, err := schema.Decode([]byte(`not json`))
	assert.Error(err)
}

func TestDecodeInvalidEnvelopeRecoversID(t *testing.T) {
	assert := assert.New(t)
	// id + method + result present: malformed, but id must still be
	// recoverable so a -32700 response can reference it.
	data := []byte(`{"jsonrpc":"2.0","id":7,"method":"x","result":{}}`)
	env, err := schema.Decode(data)
	assert.Error(err)
	if assert.NotNil(env.ID) {
		assert.Equal("7", env.ID.String())
	}
}

func TestIDNumericAndString(t *testing.T) {
	assert := assert.New(t)

	var id schema.ID
	assert.NoError(json.Unmarshal([]byte(`42`), &id))
	assert.Equal("42", id.String())

	var id2 schema.ID
	assert.NoError(json.Unmarshal([]byte(`"req-1"`), &id2))
	assert.Equal("req-1", id2.String())
	assert.False(id.Equal(&id2))
}
