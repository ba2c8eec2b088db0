package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundMessageContentShapes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantText   string
		structured bool
	}{
		{"plain string", `{"role":"user","content":"hello"}`, "hello", false},
		{"text blocks", `{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`, "a\nb", true},
		{"non-text blocks dropped", `{"role":"user","content":[{"type":"image"},{"type":"text","text":"only"}]}`, "only", true},
		{"null content", `{"role":"user","content":null}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg InboundMessage
			require.NoError(t, json.Unmarshal([]byte(tt.body), &msg))
			assert.Equal(t, tt.structured, msg.Content.Structured)
			assert.Equal(t, tt.wantText, msg.Normalize().Content)
		})
	}
}

func TestMessageContentRejectsOtherShapes(t *testing.T) {
	var msg InboundMessage
	err := json.Unmarshal([]byte(`{"role":"user","content":42}`), &msg)
	assert.Error(t, err)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
}
