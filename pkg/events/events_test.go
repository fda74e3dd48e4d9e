package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeUsesSnakeCaseFields(t *testing.T) {
	conv, reader := uuid.New(), uuid.New()
	frame, err := Encode(TypeConversationRead, ConversationReadPayload{ConversationID: conv, ReaderID: reader, MessageIDs: []uuid.UUID{}})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &raw))
	assert.JSONEq(t, `"conversation-read"`, string(raw["type"]))
	assert.JSONEq(t, `{"conversation_id":"`+conv.String()+`","reader_id":"`+reader.String()+`","message_ids":[]}`, string(raw["payload"]))
	assert.Contains(t, raw, "timestamp")

	var ev Event
	require.NoError(t, json.Unmarshal(frame, &ev))
	var p ConversationReadPayload
	require.NoError(t, ev.Decode(&p))
	assert.Equal(t, reader, p.ReaderID)
}

func TestDecodeWithoutPayloadFails(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"join-rooms"}`), &ev))

	var p RoomsPayload
	assert.Error(t, ev.Decode(&p))
}

func TestNewWithNilPayload(t *testing.T) {
	ev, err := New(TypePing, nil)
	require.NoError(t, err)
	assert.Equal(t, TypePing, ev.Type)
	assert.NotZero(t, ev.Timestamp)
}
