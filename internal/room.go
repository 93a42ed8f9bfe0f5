package internal

import (
	"crypto/rand"
	"fmt"
	"slices"
	"sort"
	"time"
)

// 系統設計問題：
//   房間的「人數」到底算誰？選單裡按了加入、但 3D 場景還沒載入的人算不算？
//
// 兩階段加入（two-phase join）：
//   1. 席位（seats）：使用者在選單加入房間，RoomID 指向此房間，佔一個容量
//   2. 成員（members）：presence 連接已附著，會收到即時廣播
//
//   不變式：members ⊆ seats，len(seats) ≤ Capacity
//   容量在加入時以拒絕的方式保證，從不驅逐既有席位。

// RoomStatus 房間狀態（僅供顯示，協調器不依此限制操作）
type RoomStatus string

const (
	StatusWaiting RoomStatus = "waiting" // 沒有人進入 3D 場景
	StatusPlaying RoomStatus = "playing" // 至少一位成員在線
	StatusFull    RoomStatus = "full"    // 席位已滿
)

// Room 遊戲房間
type Room struct {
	ID           string
	Name         string
	HostID       string
	Capacity     int
	Status       RoomStatus
	CreatedAt    time.Time
	LastActivity time.Time // 預留給閒置房間回收

	seats   []string // 依預約順序
	members []string // 依附著順序，房主繼承依此順序
}

// Seats 持有席位的使用者
func (r *Room) Seats() []string {
	return slices.Clone(r.seats)
}

// Members 在線成員（附著順序）
func (r *Room) Members() []string {
	return slices.Clone(r.members)
}

// HasSeat 是否持有席位
func (r *Room) HasSeat(userID string) bool {
	return slices.Contains(r.seats, userID)
}

// IsMember 是否為在線成員
func (r *Room) IsMember(userID string) bool {
	return slices.Contains(r.members, userID)
}

// Occupancy 已佔用的席位數
func (r *Room) Occupancy() int {
	return len(r.seats)
}

// FirstMember 最早附著的成員
func (r *Room) FirstMember() (string, bool) {
	if len(r.members) == 0 {
		return "", false
	}
	return r.members[0], true
}

func (r *Room) touch(now time.Time) {
	r.LastActivity = now
}

func (r *Room) refreshStatus() {
	switch {
	case len(r.seats) >= r.Capacity:
		r.Status = StatusFull
	case len(r.members) > 0:
		r.Status = StatusPlaying
	default:
		r.Status = StatusWaiting
	}
}

// RoomSummary 公開房間列表項目
type RoomSummary struct {
	ID             string     `json:"room_id"`
	Name           string     `json:"room_name"`
	HostID         string     `json:"host_id"`
	HostName       string     `json:"host_name"`
	CurrentPlayers int        `json:"current_players"` // 在線成員
	ReservedSeats  int        `json:"reserved_seats"`  // 含尚未進入場景的席位
	MaxPlayers     int        `json:"max_players"`
	Status         RoomStatus `json:"status"`
}

// Directory 房間目錄
//
// 與 Registry 一樣不加鎖，由 Coordinator 串行化。
type Directory struct {
	rooms map[string]*Room
	users *Registry
	newID func() string
	now   func() time.Time
}

// NewDirectory 創建房間目錄
func NewDirectory(users *Registry) *Directory {
	return &Directory{
		rooms: make(map[string]*Room),
		users: users,
		newID: generateRoomID,
		now:   time.Now,
	}
}

// Get 獲取房間
func (d *Directory) Get(roomID string) (*Room, bool) {
	room, ok := d.rooms[roomID]
	return room, ok
}

// Len 房間數量
func (d *Directory) Len() int {
	return len(d.rooms)
}

// Create 創建房間
//
// 房主佔第一個席位，但 members 為空：創建不等於進入場景，
// 房主要另外附著 presence 連接才算成員。
func (d *Directory) Create(host *LogicalUser, name string, capacity int) (*Room, error) {
	if host.RoomID != "" {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInRoom, host.RoomID)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: 容量必須大於 0", ErrInvalidRequest)
	}

	id := d.newID()
	for d.rooms[id] != nil {
		id = d.newID()
	}

	now := d.now()
	room := &Room{
		ID:           id,
		Name:         name,
		HostID:       host.ID,
		Capacity:     capacity,
		CreatedAt:    now,
		LastActivity: now,
		seats:        []string{host.ID},
	}
	room.refreshStatus()

	d.rooms[id] = room
	host.RoomID = id
	return room, nil
}

// TryJoin 預約席位
//
// 成功時只設定 RoomID 與席位，不加入 members；
// presence 連接附著時才成為成員。已持有席位視為成功。
func (d *Directory) TryJoin(roomID string, user *LogicalUser) error {
	room, ok := d.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if room.HasSeat(user.ID) {
		return nil
	}
	if user.RoomID != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyInRoom, user.RoomID)
	}
	if len(room.seats) >= room.Capacity {
		return fmt.Errorf("%w: %s", ErrRoomFull, room.Name)
	}

	room.seats = append(room.seats, user.ID)
	room.touch(d.now())
	room.refreshStatus()
	user.RoomID = roomID
	return nil
}

// Attach 將持有席位的使用者加入 members
func (d *Directory) Attach(roomID, userID string) error {
	room, ok := d.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if !room.HasSeat(userID) {
		return fmt.Errorf("%w: %s", ErrNotInRoom, roomID)
	}
	if !room.IsMember(userID) {
		room.members = append(room.members, userID)
	}
	room.touch(d.now())
	room.refreshStatus()
	return nil
}

// DetachMember 從 members 移除，保留席位
func (d *Directory) DetachMember(roomID, userID string) bool {
	room, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	idx := slices.Index(room.members, userID)
	if idx < 0 {
		return false
	}
	room.members = slices.Delete(room.members, idx, idx+1)
	room.touch(d.now())
	room.refreshStatus()
	return true
}

// Vacate 釋放席位（同時移出 members）並清除使用者的 RoomID
func (d *Directory) Vacate(roomID, userID string) bool {
	room, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	idx := slices.Index(room.seats, userID)
	if idx < 0 {
		return false
	}
	room.seats = slices.Delete(room.seats, idx, idx+1)
	if m := slices.Index(room.members, userID); m >= 0 {
		room.members = slices.Delete(room.members, m, m+1)
	}
	room.touch(d.now())
	room.refreshStatus()

	if u, ok := d.users.Lookup(userID); ok && u.RoomID == roomID {
		u.RoomID = ""
	}
	return true
}

// SetHost 更換房主
func (d *Directory) SetHost(roomID, userID string) error {
	room, ok := d.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	room.HostID = userID
	room.touch(d.now())
	return nil
}

// Touch 更新最後活動時間
func (d *Directory) Touch(roomID string) {
	if room, ok := d.rooms[roomID]; ok {
		room.touch(d.now())
	}
}

// Delete 移除房間，清除所有席位持有者的 RoomID
func (d *Directory) Delete(roomID string) (*Room, bool) {
	room, ok := d.rooms[roomID]
	if !ok {
		return nil, false
	}
	for _, userID := range room.seats {
		if u, ok := d.users.Lookup(userID); ok && u.RoomID == roomID {
			u.RoomID = ""
		}
	}
	delete(d.rooms, roomID)
	return room, true
}

// HostedBy 由該使用者擔任房主的房間（依創建順序）
//
// 房主的 presence 斷線後不再持有席位，只能透過 HostID 找到房間。
func (d *Directory) HostedBy(userID string) []*Room {
	var rooms []*Room
	for _, room := range d.rooms {
		if room.HostID == userID {
			rooms = append(rooms, room)
		}
	}
	sortByCreation(rooms)
	return rooms
}

// ListPublic 公開房間列表
//
// 每次都從 members/seats 重新計算，不做快取。
func (d *Directory) ListPublic() []RoomSummary {
	rooms := make([]*Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}
	sortByCreation(rooms)

	result := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		result = append(result, d.summarize(room))
	}
	return result
}

func sortByCreation(rooms []*Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
}

func (d *Directory) summarize(room *Room) RoomSummary {
	hostName := ""
	if host, ok := d.users.Lookup(room.HostID); ok {
		hostName = host.Name
	}
	return RoomSummary{
		ID:             room.ID,
		Name:           room.Name,
		HostID:         room.HostID,
		HostName:       hostName,
		CurrentPlayers: len(room.members),
		ReservedSeats:  len(room.seats),
		MaxPlayers:     room.Capacity,
		Status:         room.Status,
	}
}

// generateRoomID 生成簡短房間 ID（7 位小寫英數）
func generateRoomID() string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 7)
	if _, err := rand.Read(b); err != nil {
		// 如果隨機讀取失敗，使用時間戳作為備用
		return fmt.Sprintf("r%x", time.Now().UnixNano())
	}
	for i := range b {
		b[i] = chars[int(b[i])%len(chars)]
	}
	return string(b)
}
