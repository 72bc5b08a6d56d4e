package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"accord/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoomRef_DecodesStringAndObject verifies both joinRoom payload shapes.
func TestRoomRef_DecodesStringAndObject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "bare string", raw: `"general"`, want: "general"},
		{name: "object", raw: `{"roomId":"general"}`, want: "general"},
		{name: "padded string", raw: `  "general"`, want: "general"},
		{name: "null", raw: `null`, want: ""},
		{name: "number", raw: `42`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref models.RoomRef
			err := json.Unmarshal([]byte(tt.raw), &ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.RoomID)
		})
	}
}

func TestRoomRef_Validate(t *testing.T) {
	assert.NoError(t, models.RoomRef{RoomID: "general"}.Validate())
	assert.ErrorIs(t, models.RoomRef{RoomID: "  "}.Validate(), models.ErrMissingField)
}

// TestSendMessagePayload_Validate covers every required field.
func TestSendMessagePayload_Validate(t *testing.T) {
	valid := models.SendMessagePayload{RoomID: "general", Text: "hello", SenderID: "u1", SenderName: "Alice"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *models.SendMessagePayload)
		field  string
	}{
		{"empty room", func(p *models.SendMessagePayload) { p.RoomID = "" }, "roomId"},
		{"empty text", func(p *models.SendMessagePayload) { p.Text = "" }, "text"},
		{"whitespace text", func(p *models.SendMessagePayload) { p.Text = "   " }, "text"},
		{"empty sender id", func(p *models.SendMessagePayload) { p.SenderID = "" }, "senderId"},
		{"empty sender name", func(p *models.SendMessagePayload) { p.SenderName = "" }, "senderName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			assert.ErrorIs(t, err, models.ErrMissingField)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestSendMessagePayload_NormalizeMessageAlias(t *testing.T) {
	p := models.SendMessagePayload{RoomID: " general ", Message: "hi there", SenderID: " u1 ", SenderName: "Alice"}
	p.Normalize()

	assert.Equal(t, "general", p.RoomID)
	assert.Equal(t, "hi there", p.Text)
	assert.Equal(t, "u1", p.SenderID)
	assert.Empty(t, p.Message)
}

func TestMessageReadPayload_Validate(t *testing.T) {
	assert.NoError(t, models.MessageReadPayload{RoomID: "r", MessageID: 3, UserID: "u"}.Validate())
	assert.Error(t, models.MessageReadPayload{RoomID: "r", UserID: "u"}.Validate())
	assert.Error(t, models.MessageReadPayload{MessageID: 3, UserID: "u"}.Validate())
}

// TestNewMessageData_KeepsPendingIDSeparate ensures the provisional id never
// shadows the committed id on the wire.
func TestNewMessageData_KeepsPendingIDSeparate(t *testing.T) {
	data := models.NewMessageData{
		Message:   models.Message{ID: 17, ChatID: "general", SenderID: "u1", SenderName: "Alice", Text: "hello"},
		PendingID: "tmp-123",
	}
	raw, err := json.Marshal(models.OutboundEvent{Event: models.EventNewMessage, Data: data})
	require.NoError(t, err)

	var decoded struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "newMessage", decoded.Event)
	assert.EqualValues(t, 17, decoded.Data["id"])
	assert.Equal(t, "tmp-123", decoded.Data["pendingId"])
	assert.Equal(t, "general", decoded.Data["chatId"])
	assert.NotContains(t, decoded.Data, "fileUrl")
}

func TestAnalysisResult_IsStale(t *testing.T) {
	now := time.Now()
	fresh := &models.AnalysisResult{RoomID: "r", ProducedAt: now.Add(-time.Minute)}
	old := &models.AnalysisResult{RoomID: "r", ProducedAt: now.Add(-48 * time.Hour)}

	assert.False(t, old.IsStale(now, 0), "zero max age keeps analyses forever")
	assert.False(t, fresh.IsStale(now, time.Hour))
	assert.True(t, old.IsStale(now, time.Hour))

	var missing *models.AnalysisResult
	assert.True(t, missing.IsStale(now, 0))
}

func TestParseHistoryOrder(t *testing.T) {
	o, ok := models.ParseHistoryOrder("")
	assert.True(t, ok)
	assert.Equal(t, models.OrderOldestFirst, o)

	o, ok = models.ParseHistoryOrder("desc")
	assert.True(t, ok)
	assert.Equal(t, models.OrderNewestFirst, o)

	_, ok = models.ParseHistoryOrder("sideways")
	assert.False(t, ok)
}
