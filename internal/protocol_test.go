package internal_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/koopa0/system-design/presence-coordinator/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeRequest 測試客戶端訊息解碼
func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    internal.Request
		wantErr error
	}{
		{
			name:    "ping",
			message: `{"type":"ping"}`,
			want:    internal.PingRequest{},
		},
		{
			name:    "register",
			message: `{"type":"register","data":{"user_id":"u1","name":"Alice","bio":"hello"}}`,
			want:    internal.RegisterRequest{UserID: "u1", Name: "Alice", Bio: "hello"},
		},
		{
			name:    "register without user id",
			message: `{"type":"register","data":{"name":"Alice"}}`,
			want:    internal.RegisterRequest{Name: "Alice"},
		},
		{
			name:    "create room",
			message: `{"type":"create_room","data":{"room_name":"R","max_players":4}}`,
			want:    internal.CreateRoomRequest{Name: "R", Capacity: 4},
		},
		{
			name:    "join room",
			message: `{"type":"join_room","data":{"room_id":"abc1234"}}`,
			want:    internal.JoinRoomRequest{RoomID: "abc1234"},
		},
		{
			name:    "leave room without data",
			message: `{"type":"leave_room"}`,
			want:    internal.LeaveRoomRequest{},
		},
		{
			name:    "presence attach",
			message: `{"type":"presence_attach","data":{"user_id":"u1","room_id":"abc1234","name":"Alice"}}`,
			want:    internal.PresenceAttachRequest{UserID: "u1", RoomID: "abc1234", Name: "Alice"},
		},
		{
			name:    "update state",
			message: `{"type":"update_state","data":{"position":{"x":1,"y":2,"z":3},"rotation":0.5,"pitch_rotation":0.1,"flashlight_on":true,"animation":"run"}}`,
			want: internal.UpdateStateRequest{State: internal.LiveState{
				Position:      internal.Vec3{X: 1, Y: 2, Z: 3},
				Rotation:      0.5,
				PitchRotation: 0.1,
				FlashlightOn:  true,
				Animation:     "run",
			}},
		},
		{
			name:    "chat",
			message: `{"type":"chat","data":{"text":"hi"}}`,
			want:    internal.ChatRequest{Text: "hi"},
		},
		{
			name:    "delete room",
			message: `{"type":"delete_room","data":{"room_id":"abc1234"}}`,
			want:    internal.DeleteRoomRequest{RoomID: "abc1234"},
		},
		{name: "malformed json", message: `{"type":`, wantErr: internal.ErrInvalidRequest},
		{name: "missing type", message: `{"data":{}}`, wantErr: internal.ErrInvalidRequest},
		{name: "unknown type", message: `{"type":"teleport"}`, wantErr: internal.ErrInvalidRequest},
		{name: "missing data", message: `{"type":"join_room"}`, wantErr: internal.ErrInvalidRequest},
		{name: "wrong data shape", message: `{"type":"chat","data":"hi"}`, wantErr: internal.ErrInvalidRequest},
		{name: "empty name", message: `{"type":"register","data":{"name":"  "}}`, wantErr: internal.ErrInvalidRequest},
		{name: "empty room id", message: `{"type":"join_room","data":{"room_id":""}}`, wantErr: internal.ErrInvalidRequest},
		{name: "attach without user", message: `{"type":"presence_attach","data":{"room_id":"abc1234"}}`, wantErr: internal.ErrInvalidRequest},
		{name: "negative capacity", message: `{"type":"create_room","data":{"room_name":"R","max_players":-2}}`, wantErr: internal.ErrInvalidRequest},
		{name: "blank chat", message: `{"type":"chat","data":{"text":"   "}}`, wantErr: internal.ErrInvalidRequest},
		{
			name:    "chat too long",
			message: fmt.Sprintf(`{"type":"chat","data":{"text":%q}}`, strings.Repeat("字", 501)),
			wantErr: internal.ErrInvalidRequest,
		},
		{
			name:    "user id too long",
			message: fmt.Sprintf(`{"type":"presence_attach","data":{"user_id":%q}}`, strings.Repeat("x", 65)),
			wantErr: internal.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := internal.DecodeRequest([]byte(tt.message))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, req)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
			assert.Equal(t, tt.want.Type(), req.Type())
		})
	}
}

// TestEvent_WireFormat 伺服器事件格式
func TestEvent_WireFormat(t *testing.T) {
	data, err := json.Marshal(internal.Event{
		Type: internal.EventHostChanged,
		Data: internal.HostChanged{RoomID: "abc1234", HostID: "u2", HostName: "Bob"},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"event":"host_changed","data":{"room_id":"abc1234","host_id":"u2","host_name":"Bob"}}`,
		string(data))

	data, err = json.Marshal(internal.MemberView{UserID: "u1", Name: "Alice", Active: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u1","name":"Alice","active":false}`, string(data))
}

// TestErrorCode 錯誤映射為穩定代碼
func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{internal.ErrNameTaken, "name_taken"},
		{internal.ErrNotRegistered, "not_registered"},
		{internal.ErrAlreadyInRoom, "already_in_room"},
		{internal.ErrRoomNotFound, "room_not_found"},
		{internal.ErrRoomFull, "room_full"},
		{internal.ErrNotHost, "not_host"},
		{internal.ErrStaleRoomReference, "stale_room_reference"},
		{internal.ErrNotInRoom, "not_in_room"},
		{internal.ErrWrongRole, "wrong_role"},
		{internal.ErrInvalidRequest, "invalid_request"},
		{internal.ErrConnectionClosed, "connection_closed"},
		{fmt.Errorf("%w: abc1234", internal.ErrRoomFull), "room_full"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, internal.ErrorCode(tt.err))
		})
	}
}
