package internal

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// 系統設計問題：
//   一個人可能同時有兩條連接（選單頁的 lobby、3D 場景的 presence），
//   而且每條連接都可能隨時斷開、重連。如何讓「人」的身份跨越連接存在？
//
// 設計方案：
//   ✅ 邏輯使用者（LogicalUser）與連接分離，userID 由客戶端保存並在重連時帶回
//   ✅ 每個角色最多一條連接（connections map[Role]ConnID）
//   ✅ 名稱唯一性只對「在線」使用者檢查，完全斷線即釋放名稱
//
// Registry 本身不加鎖，所有呼叫都經過 Coordinator 的臨界區。

// Role 連接角色
type Role string

const (
	RoleLobby    Role = "lobby"    // 選單頁：瀏覽、創建、加入房間
	RolePresence Role = "presence" // 3D 場景：即時位置與聊天
)

// Valid 檢查角色是否合法
func (r Role) Valid() bool {
	return r == RoleLobby || r == RolePresence
}

// ConnID 傳輸層連接識別碼
type ConnID string

// Vec3 三維座標
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LiveState 最近一次回報的即時狀態
type LiveState struct {
	Position      Vec3    `json:"position"`
	Rotation      float64 `json:"rotation"`
	PitchRotation float64 `json:"pitch_rotation"`
	FlashlightOn  bool    `json:"flashlight_on"`
	Animation     string  `json:"animation"`
}

// DefaultLiveState 出生點
func DefaultLiveState() LiveState {
	return LiveState{
		Position:     Vec3{X: 0, Y: 0.27, Z: 0},
		FlashlightOn: true,
		Animation:    "idle",
	}
}

// LogicalUser 邏輯使用者
type LogicalUser struct {
	ID     string
	Name   string
	Bio    string
	RoomID string // 持有席位的房間，與 presence 是否在線無關

	State    LiveState
	HasState bool // presence 連接至少回報過一次

	registered  bool
	connections map[Role]ConnID
}

// Conn 返回該角色綁定的連接
func (u *LogicalUser) Conn(role Role) (ConnID, bool) {
	conn, ok := u.connections[role]
	return conn, ok
}

// IsLive 是否有任何在線連接
func (u *LogicalUser) IsLive() bool {
	return len(u.connections) > 0
}

// Conns 所有在線連接（lobby 在前）
func (u *LogicalUser) Conns() []ConnID {
	conns := make([]ConnID, 0, 2)
	for _, role := range []Role{RoleLobby, RolePresence} {
		if conn, ok := u.connections[role]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Registered 名稱是否由使用者註冊（而非臨時名稱）
func (u *LogicalUser) Registered() bool {
	return u.registered
}

// Registry 身份註冊表
type Registry struct {
	users map[string]*LogicalUser
	newID func() string
}

// NewRegistry 創建身份註冊表
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*LogicalUser),
		newID: uuid.NewString,
	}
}

// Lookup 查詢使用者
func (r *Registry) Lookup(userID string) (*LogicalUser, bool) {
	u, ok := r.users[userID]
	return u, ok
}

// ResolveOrCreate 解析或創建使用者
//
// 已知的 userID 直接返回；未知的 userID（例如服務重啟後客戶端帶回的舊 ID）
// 沿用該 ID 建立新記錄；空 userID 則生成新 ID。永不失敗。
func (r *Registry) ResolveOrCreate(userID, proposedName string) *LogicalUser {
	if userID != "" {
		if u, ok := r.users[userID]; ok {
			return u
		}
	} else {
		userID = r.newID()
	}

	name := proposedName
	if name == "" {
		name = provisionalName(userID)
	}

	u := &LogicalUser{
		ID:          userID,
		Name:        name,
		State:       DefaultLiveState(),
		connections: make(map[Role]ConnID),
	}
	r.users[userID] = u
	return u
}

// NameHolder 查詢持有該名稱的在線使用者（排除 exceptUserID）
func (r *Registry) NameHolder(name, exceptUserID string) (*LogicalUser, bool) {
	folded := strings.ToLower(strings.TrimSpace(name))
	for _, u := range r.users {
		if u.ID == exceptUserID || !u.registered || !u.IsLive() {
			continue
		}
		if strings.ToLower(u.Name) == folded {
			return u, true
		}
	}
	return nil, false
}

// RegisterName 設定名稱與簡介
//
// 同一使用者重複註冊視為更新。
func (r *Registry) RegisterName(userID, name, bio string) error {
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, userID)
	}

	name = strings.TrimSpace(name)
	if holder, taken := r.NameHolder(name, userID); taken {
		return fmt.Errorf("%w: %s", ErrNameTaken, holder.Name)
	}

	u.Name = name
	u.Bio = bio
	u.registered = true
	return nil
}

// ReclaimName 離線使用者重新上線前確認名稱仍然可用
//
// 離線期間名稱已被其他在線使用者註冊時，退回臨時名稱並返回 false。
func (r *Registry) ReclaimName(userID string) bool {
	u, ok := r.users[userID]
	if !ok || !u.registered || u.IsLive() {
		return true
	}
	if _, taken := r.NameHolder(u.Name, u.ID); !taken {
		return true
	}
	u.Name = provisionalName(u.ID)
	u.registered = false
	return false
}

// BindConn 將連接裝到 (user, role) 槽位，返回被取代的舊連接
func (r *Registry) BindConn(userID string, role Role, conn ConnID) (ConnID, error) {
	u, ok := r.users[userID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotRegistered, userID)
	}
	prev := u.connections[role]
	u.connections[role] = conn
	return prev, nil
}

// UnbindConn 移除槽位，只有槽位仍是該連接時才生效
func (r *Registry) UnbindConn(userID string, role Role, conn ConnID) bool {
	u, ok := r.users[userID]
	if !ok {
		return false
	}
	if current, ok := u.connections[role]; !ok || current != conn {
		return false
	}
	delete(u.connections, role)
	return true
}

// Release 刪除使用者記錄
func (r *Registry) Release(userID string) {
	delete(r.users, userID)
}

// Len 使用者數量
func (r *Registry) Len() int {
	return len(r.users)
}

func provisionalName(userID string) string {
	short := userID
	if len(short) > 4 {
		short = short[:4]
	}
	return "player-" + short
}
