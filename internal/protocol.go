package internal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// 客戶端訊息格式：
//
//	{"type": "join_room", "data": {"room_id": "k3x9a2b"}}
//
// 每種 type 對應一個請求型別，在邊界解碼並驗證後才交給 Coordinator。
// 伺服器推送沿用 Event 結構：{"event": "...", "data": {...}}。

const (
	maxUserIDLength = 64
	maxChatLength   = 500
	maxBioLength    = 280
)

// 請求類型
const (
	TypePing           = "ping"
	TypeRegister       = "register"
	TypeCreateRoom     = "create_room"
	TypeJoinRoom       = "join_room"
	TypeLeaveRoom      = "leave_room"
	TypePresenceAttach = "presence_attach"
	TypeUpdateState    = "update_state"
	TypeChat           = "chat"
	TypeDeleteRoom     = "delete_room"
)

// 事件類型
const (
	EventPong               = "pong"
	EventRoomList           = "room_list"
	EventRegistered         = "registered"
	EventNameTaken          = "name_taken"
	EventRoomCreated        = "room_created"
	EventJoined             = "joined"
	EventMemberJoined       = "member_joined"
	EventMemberLeft         = "member_left"
	EventLeft               = "left"
	EventCurrentMembers     = "current_members"
	EventMemberConnected    = "member_connected"
	EventMemberDisconnected = "member_disconnected"
	EventStateUpdated       = "state_updated"
	EventChatMessage        = "chat_message"
	EventRoomDeleted        = "room_deleted"
	EventHostChanged        = "host_changed"
	EventEvicted            = "evicted"
	EventRedirected         = "redirected"
	EventError              = "error"
)

// Request 客戶端請求
type Request interface {
	Type() string
	validate() error
}

// PingRequest 應用層心跳
type PingRequest struct{}

// RegisterRequest 註冊身份（lobby）
type RegisterRequest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name"`
	Bio    string `json:"bio"`
}

// CreateRoomRequest 創建房間（lobby），Capacity 為 0 時使用預設值
type CreateRoomRequest struct {
	Name     string `json:"room_name"`
	Capacity int    `json:"max_players,omitempty"`
}

// JoinRoomRequest 預約席位（lobby）
type JoinRoomRequest struct {
	RoomID string `json:"room_id"`
}

// LeaveRoomRequest 離開房間
type LeaveRoomRequest struct{}

// PresenceAttachRequest 3D 場景附著（presence）
//
// RoomID 為空時使用使用者已持有的席位；Name 只在使用者尚無名稱時採用。
type PresenceAttachRequest struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// UpdateStateRequest 即時狀態（presence）
type UpdateStateRequest struct {
	State LiveState
}

// ChatRequest 房間聊天
type ChatRequest struct {
	Text string `json:"text"`
}

// DeleteRoomRequest 刪除房間（只限房主）
type DeleteRoomRequest struct {
	RoomID string `json:"room_id"`
}

func (PingRequest) Type() string           { return TypePing }
func (RegisterRequest) Type() string       { return TypeRegister }
func (CreateRoomRequest) Type() string     { return TypeCreateRoom }
func (JoinRoomRequest) Type() string       { return TypeJoinRoom }
func (LeaveRoomRequest) Type() string      { return TypeLeaveRoom }
func (PresenceAttachRequest) Type() string { return TypePresenceAttach }
func (UpdateStateRequest) Type() string    { return TypeUpdateState }
func (ChatRequest) Type() string           { return TypeChat }
func (DeleteRoomRequest) Type() string     { return TypeDeleteRoom }

func (PingRequest) validate() error { return nil }

func (r RegisterRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: 名稱不能為空", ErrInvalidRequest)
	}
	if len(r.UserID) > maxUserIDLength {
		return fmt.Errorf("%w: user_id 過長", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(r.Bio) > maxBioLength {
		return fmt.Errorf("%w: 簡介過長", ErrInvalidRequest)
	}
	return nil
}

func (r CreateRoomRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: 房間名稱不能為空", ErrInvalidRequest)
	}
	if r.Capacity < 0 {
		return fmt.Errorf("%w: 玩家數量不能為負數", ErrInvalidRequest)
	}
	return nil
}

func (r JoinRoomRequest) validate() error {
	if r.RoomID == "" {
		return fmt.Errorf("%w: 缺少房間 ID", ErrInvalidRequest)
	}
	return nil
}

func (LeaveRoomRequest) validate() error { return nil }

func (r PresenceAttachRequest) validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: 缺少 user_id", ErrInvalidRequest)
	}
	if len(r.UserID) > maxUserIDLength {
		return fmt.Errorf("%w: user_id 過長", ErrInvalidRequest)
	}
	return nil
}

func (UpdateStateRequest) validate() error { return nil }

func (r ChatRequest) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: 訊息不能為空", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(r.Text) > maxChatLength {
		return fmt.Errorf("%w: 訊息過長", ErrInvalidRequest)
	}
	return nil
}

func (r DeleteRoomRequest) validate() error {
	if r.RoomID == "" {
		return fmt.Errorf("%w: 缺少房間 ID", ErrInvalidRequest)
	}
	return nil
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeRequest 解碼並驗證客戶端訊息
func DecodeRequest(message []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var (
		req Request
		err error
	)
	switch env.Type {
	case TypePing:
		req = PingRequest{}
	case TypeLeaveRoom:
		req = LeaveRoomRequest{}
	case TypeRegister:
		req, err = decodeAs[RegisterRequest](env.Data)
	case TypeCreateRoom:
		req, err = decodeAs[CreateRoomRequest](env.Data)
	case TypeJoinRoom:
		req, err = decodeAs[JoinRoomRequest](env.Data)
	case TypePresenceAttach:
		req, err = decodeAs[PresenceAttachRequest](env.Data)
	case TypeUpdateState:
		var state LiveState
		if state, err = decodeData[LiveState](env.Data); err == nil {
			req = UpdateStateRequest{State: state}
		}
	case TypeChat:
		req, err = decodeAs[ChatRequest](env.Data)
	case TypeDeleteRoom:
		req, err = decodeAs[DeleteRoomRequest](env.Data)
	case "":
		return nil, fmt.Errorf("%w: 缺少 type", ErrInvalidRequest)
	default:
		return nil, fmt.Errorf("%w: 未知的訊息類型 %q", ErrInvalidRequest, env.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := req.validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeAs[T Request](data json.RawMessage) (Request, error) {
	v, err := decodeData[T](data)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeData[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, fmt.Errorf("%w: 缺少 data", ErrInvalidRequest)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return v, nil
}

// Event 伺服器推送事件
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// ErrorPayload 拒絕原因
type ErrorPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// UserView 註冊結果
type UserView struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Bio    string `json:"bio"`
}

// MemberView 房間內的使用者
type MemberView struct {
	UserID string     `json:"user_id"`
	Name   string     `json:"name"`
	Bio    string     `json:"bio,omitempty"`
	Active bool       `json:"active"` // presence 已附著
	State  *LiveState `json:"state,omitempty"`
}

// RoomCreated 創建結果
type RoomCreated struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
}

// RoomRoster 房間名單（joined / current_members）
type RoomRoster struct {
	RoomID   string       `json:"room_id"`
	RoomName string       `json:"room_name"`
	HostID   string       `json:"host_id"`
	Capacity int          `json:"max_players"`
	Members  []MemberView `json:"members"`
}

// MemberRef 成員離開/斷線
type MemberRef struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// StateUpdate 即時狀態廣播
type StateUpdate struct {
	UserID string    `json:"user_id"`
	State  LiveState `json:"state"`
}

// ChatMessage 聊天廣播
type ChatMessage struct {
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

// RoomDeleted 房間刪除通知
type RoomDeleted struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

// HostChanged 房主變更通知
type HostChanged struct {
	RoomID   string `json:"room_id"`
	HostID   string `json:"host_id"`
	HostName string `json:"host_name"`
}

// Evicted 被新連接取代
type Evicted struct {
	Reason string `json:"reason"`
}

// LeftRoom 離開結果
type LeftRoom struct {
	RoomID string `json:"room_id"`
}

func errorEvent(eventType string, err error) Event {
	return Event{
		Type: eventType,
		Data: ErrorPayload{Code: ErrorCode(err), Reason: err.Error()},
	}
}
