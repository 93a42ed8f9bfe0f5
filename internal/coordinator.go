package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// 系統設計問題：
//   連接會在任何時刻、以任何順序斷開（lobby 先斷、presence 先斷、兩條同時斷），
//   如何在這種交錯下維持房間與使用者的不變式？
//
// 核心挑戰：
//   1. 兩階段加入：選單預約席位 → 3D 場景附著後才算成員
//   2. 房主繼承：房主斷線時由最早附著的成員接手
//   3. 房間回收：沒有成員「而且」房主也不在選單時才刪除
//   4. 重複身份：同一身份同一角色的新連接取代舊連接
//
// 設計方案：
//   ✅ 單一寫鎖串行化所有狀態變更（預期規模：數十個房間、每間數十人）
//   ✅ 每個事件處理完才釋放鎖，讀取端（房間列表）看不到半完成的轉換
//   ✅ 傳輸層只做非阻塞入隊，可以在臨界區內呼叫
//
// 使用者與房間的狀態：
//
//	NotInRoom → ReservedAtLobby → ActiveMember → NotInRoom
//	               └──────────────────────────────↗
//
//   - presence 斷線：ActiveMember → NotInRoom，席位一併釋放
//   - lobby 斷線：保留席位（選單跳轉到 3D 頁面時 lobby 一定先斷）
//   - 房主離開場景後不再持有席位，但只要還在選單，房間就保留給他

// Coordinator 生命週期協調器
type Coordinator struct {
	mu        sync.RWMutex
	users     *Registry
	rooms     *Directory
	bindings  map[ConnID]binding
	evicted   map[ConnID]struct{} // 已被取代、等待傳輸層回報關閉
	transport Transport
	sink      LifecycleSink
	limits    RoomConfig
	logger    *slog.Logger
	now       func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator 創建協調器
//
// limits.ListRefresh > 0 時啟動定期廣播房間列表的 goroutine，需呼叫 Stop。
func NewCoordinator(transport Transport, sink LifecycleSink, limits RoomConfig, logger *slog.Logger) *Coordinator {
	users := NewRegistry()
	c := &Coordinator{
		users:     users,
		rooms:     NewDirectory(users),
		bindings:  make(map[ConnID]binding),
		evicted:   make(map[ConnID]struct{}),
		transport: transport,
		sink:      sink,
		limits:    limits,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}

	if limits.ListRefresh > 0 {
		c.wg.Add(1)
		go c.refreshLoop(limits.ListRefresh)
	}

	return c
}

// Stop 停止協調器
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	c.logger.Info("協調器已停止")
}

// refreshLoop 定期廣播房間列表
//
// 每次狀態變更都會立即廣播，這裡只是安全網。
func (c *Coordinator) refreshLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.RLock()
			c.broadcastRoomListLocked()
			c.mu.RUnlock()
		case <-c.stopCh:
			return
		}
	}
}

// Handle 分派客戶端請求並回覆發出請求的連接
//
// role 是傳輸層建立連接時決定的角色。
func (c *Coordinator) Handle(conn ConnID, role Role, req Request) {
	switch r := req.(type) {
	case PingRequest:
		c.transport.Send(conn, Event{Type: EventPong})

	case RegisterRequest:
		if role != RoleLobby {
			c.reject(conn, EventError, fmt.Errorf("%w: register 只能由 lobby 連接發出", ErrWrongRole))
			return
		}
		view, err := c.Register(conn, r.UserID, r.Name, r.Bio)
		switch {
		case errors.Is(err, ErrNameTaken):
			c.reject(conn, EventNameTaken, err)
		case err != nil:
			c.reject(conn, EventError, err)
		default:
			c.transport.Send(conn, Event{Type: EventRegistered, Data: view})
		}

	case CreateRoomRequest:
		created, err := c.CreateRoom(conn, r.Name, r.Capacity)
		if err != nil {
			c.reject(conn, EventError, err)
			return
		}
		c.transport.Send(conn, Event{Type: EventRoomCreated, Data: created})

	case JoinRoomRequest:
		roster, err := c.JoinRoom(conn, r.RoomID)
		if err != nil {
			c.reject(conn, EventError, err)
			return
		}
		c.transport.Send(conn, Event{Type: EventJoined, Data: roster})

	case LeaveRoomRequest:
		left, err := c.LeaveRoom(conn)
		if err != nil {
			c.reject(conn, EventError, err)
			return
		}
		c.transport.Send(conn, Event{Type: EventLeft, Data: left})

	case PresenceAttachRequest:
		if role != RolePresence {
			c.reject(conn, EventError, fmt.Errorf("%w: presence_attach 只能由 presence 連接發出", ErrWrongRole))
			return
		}
		// 成功時 current_members 已在附著時送出
		if _, err := c.AttachPresence(conn, r.UserID, r.RoomID, r.Name); err != nil {
			c.reject(conn, EventRedirected, err)
		}

	case UpdateStateRequest:
		// 不回覆發送者
		if err := c.UpdateState(conn, r.State); err != nil {
			c.logger.Debug("忽略狀態更新", "conn_id", conn, "error", err)
		}

	case ChatRequest:
		if err := c.Chat(conn, r.Text); err != nil {
			c.reject(conn, EventError, err)
		}

	case DeleteRoomRequest:
		if err := c.DeleteRoom(conn, r.RoomID); err != nil {
			c.reject(conn, EventError, err)
		}

	default:
		c.reject(conn, EventError, fmt.Errorf("%w: %s", ErrInvalidRequest, req.Type()))
	}
}

func (c *Coordinator) reject(conn ConnID, eventType string, err error) {
	c.logger.Debug("請求被拒絕",
		"conn_id", conn,
		"code", ErrorCode(err),
		"error", err)
	c.transport.Send(conn, errorEvent(eventType, err))
}

// Register 註冊身份並綁定 lobby 連接
//
// 名稱檢查與綁定在同一個臨界區內完成，兩位使用者不會同時取得同一個名稱。
func (c *Coordinator) Register(conn ConnID, userID, name, bio string) (UserView, error) {
	name = strings.TrimSpace(name)
	if err := c.checkName(name, "名稱"); err != nil {
		return UserView{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	self := userID
	if self == "" {
		if b, ok := c.bindings[conn]; ok {
			self = b.userID
		}
	}
	if holder, taken := c.users.NameHolder(name, self); taken {
		return UserView{}, fmt.Errorf("%w: %s", ErrNameTaken, holder.Name)
	}

	u, err := c.bind(conn, userID, RoleLobby, name)
	if err != nil {
		return UserView{}, err
	}
	if err := c.users.RegisterName(u.ID, name, bio); err != nil {
		return UserView{}, err
	}

	c.logger.Info("使用者已註冊",
		"user_id", u.ID,
		"name", u.Name,
		"conn_id", conn)

	c.broadcastRoomListLocked()
	return UserView{UserID: u.ID, Name: u.Name, Bio: u.Bio}, nil
}

// CreateRoom 創建房間，創建者成為房主並佔第一個席位
func (c *Coordinator) CreateRoom(conn ConnID, name string, capacity int) (RoomCreated, error) {
	name = strings.TrimSpace(name)
	if err := c.checkName(name, "房間名稱"); err != nil {
		return RoomCreated{}, err
	}
	if capacity == 0 {
		capacity = c.limits.DefaultCapacity
	}
	if capacity < c.limits.MinCapacity || capacity > c.limits.MaxCapacity {
		return RoomCreated{}, fmt.Errorf("%w: 玩家數量必須在 %d-%d 之間",
			ErrInvalidRequest, c.limits.MinCapacity, c.limits.MaxCapacity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := c.userFor(conn, RoleLobby)
	if err != nil {
		return RoomCreated{}, err
	}

	room, err := c.rooms.Create(u, name, capacity)
	if err != nil {
		return RoomCreated{}, err
	}

	c.logger.Info("房間已創建",
		"room_id", room.ID,
		"name", room.Name,
		"capacity", room.Capacity,
		"host_id", u.ID)
	c.publish(LifecycleEvent{Kind: LifecycleRoomCreated, RoomID: room.ID, UserID: u.ID, Detail: room.Name})
	c.abandonHosted(u, room.ID)

	// 房主的 3D 場景已經在線
	if _, ok := u.Conn(RolePresence); ok {
		c.activate(room, u)
	}

	c.broadcastRoomListLocked()
	return RoomCreated{RoomID: room.ID, RoomName: room.Name}, nil
}

// JoinRoom 從選單預約席位
//
// 先驗證目標房間，再離開舊房間：被拒絕的請求不會改變任何狀態。
// presence 連接已在線時直接成為成員。
func (c *Coordinator) JoinRoom(conn ConnID, roomID string) (RoomRoster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := c.userFor(conn, RoleLobby)
	if err != nil {
		return RoomRoster{}, err
	}

	room, ok := c.rooms.Get(roomID)
	if !ok {
		return RoomRoster{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if u.RoomID == room.ID {
		return c.roster(room), nil
	}
	if room.Occupancy() >= room.Capacity {
		return RoomRoster{}, fmt.Errorf("%w: %s", ErrRoomFull, room.Name)
	}

	if u.RoomID != "" {
		c.leaveLocked(u)
	}
	if err := c.reserve(room, u); err != nil {
		return RoomRoster{}, err
	}
	if _, ok := u.Conn(RolePresence); ok {
		c.activate(room, u)
	}

	c.broadcastRoomListLocked()
	return c.roster(room), nil
}

// LeaveRoom 主動離開房間
func (c *Coordinator) LeaveRoom(conn ConnID) (LeftRoom, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := c.userFor(conn)
	if err != nil {
		return LeftRoom{}, err
	}
	if u.RoomID == "" {
		return LeftRoom{}, ErrNotInRoom
	}

	roomID := u.RoomID
	c.leaveLocked(u)

	c.broadcastRoomListLocked()
	return LeftRoom{RoomID: roomID}, nil
}

// AttachPresence 3D 場景連接附著到房間
//
// 先驗證目標房間，通過後才綁定 presence 槽位（必要時驅逐舊連接）：
//   - 已持有該房間席位：直接成為成員（含重連回到進行中的遊戲）
//   - 沒有席位：等同先從選單加入再附著
//   - 房間已不存在：清除記住的房間，回傳 ErrStaleRoomReference 讓客戶端回到選單
//
// 被拒絕的附著不綁定連接，也不驅逐既有的 presence 連接。
func (c *Coordinator) AttachPresence(conn ConnID, userID, roomID, name string) (RoomRoster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, gone := c.evicted[conn]; gone {
		return RoomRoster{}, ErrConnectionClosed
	}

	existing, known := c.users.Lookup(userID)
	if !known {
		if b, ok := c.bindings[conn]; ok && userID == "" {
			existing, known = c.users.Lookup(b.userID)
		}
	}

	target := roomID
	if target == "" && known {
		target = existing.RoomID
	}
	if target == "" {
		return RoomRoster{}, fmt.Errorf("%w: 沒有可進入的房間", ErrRoomNotFound)
	}

	room, ok := c.rooms.Get(target)
	if !ok {
		if known && existing.RoomID == target {
			existing.RoomID = ""
			c.maybeRelease(existing)
		}
		c.logger.Warn("重連的房間已不存在，導回選單",
			"user_id", userID,
			"room_id", target)
		return RoomRoster{}, fmt.Errorf("%w: %s", ErrStaleRoomReference, target)
	}
	if !(known && room.HasSeat(existing.ID)) && room.Occupancy() >= room.Capacity {
		return RoomRoster{}, fmt.Errorf("%w: %s", ErrRoomFull, room.Name)
	}

	u, err := c.bind(conn, userID, RolePresence, "")
	if err != nil {
		return RoomRoster{}, err
	}

	if name = strings.TrimSpace(name); name != "" && !u.Registered() && c.checkName(name, "名稱") == nil {
		if err := c.users.RegisterName(u.ID, name, u.Bio); err != nil {
			c.logger.Debug("沿用臨時名稱", "user_id", u.ID, "error", err)
		}
	}

	// 綁定時處理舊槽位可能回收了目標房間
	if room, ok = c.rooms.Get(target); !ok {
		c.broadcastRoomListLocked()
		return RoomRoster{}, fmt.Errorf("%w: %s", ErrStaleRoomReference, target)
	}

	if u.RoomID != room.ID {
		if u.RoomID != "" {
			c.leaveLocked(u)
		}
		if err := c.reserve(room, u); err != nil {
			c.broadcastRoomListLocked()
			return RoomRoster{}, err
		}
	}

	c.activate(room, u)

	c.broadcastRoomListLocked()
	return c.roster(room), nil
}

// UpdateState 更新即時狀態並廣播給同房間的其他成員
func (c *Coordinator) UpdateState(conn ConnID, state LiveState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := c.userFor(conn, RolePresence)
	if err != nil {
		return err
	}
	room, ok := c.rooms.Get(u.RoomID)
	if !ok || !room.IsMember(u.ID) {
		return ErrNotInRoom
	}

	u.State = state
	u.HasState = true
	c.rooms.Touch(room.ID)

	c.transport.Broadcast(c.presenceAudience(room, u.ID), Event{
		Type: EventStateUpdated,
		Data: StateUpdate{UserID: u.ID, State: state},
	})
	return nil
}

// Chat 房間聊天（包含發送者自己）
func (c *Coordinator) Chat(conn ConnID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := c.userFor(conn)
	if err != nil {
		return err
	}
	room, ok := c.rooms.Get(u.RoomID)
	if !ok {
		return ErrNotInRoom
	}

	c.rooms.Touch(room.ID)
	c.transport.Broadcast(c.roomAudience(room, ""), Event{
		Type: EventChatMessage,
		Data: ChatMessage{
			RoomID:     room.ID,
			SenderID:   u.ID,
			SenderName: u.Name,
			Text:       text,
			SentAt:     c.now(),
		},
	})
	return nil
}

// DeleteRoom 房主刪除房間
func (c *Coordinator) DeleteRoom(conn ConnID, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := c.userFor(conn)
	if err != nil {
		return err
	}
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if room.HostID != u.ID {
		return ErrNotHost
	}

	c.deleteRoomLocked(room, fmt.Sprintf("房間「%s」已被房主刪除", room.Name))

	c.broadcastRoomListLocked()
	return nil
}

// Detach 傳輸層回報連接斷開
func (c *Coordinator) Detach(conn ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detachLocked(conn) {
		c.broadcastRoomListLocked()
	}
}

// presenceDetached presence 斷線，成員直接回到 NotInRoom
func (c *Coordinator) presenceDetached(u *LogicalUser) {
	room, ok := c.rooms.Get(u.RoomID)
	if !ok {
		u.RoomID = ""
		return
	}
	if !c.rooms.DetachMember(room.ID, u.ID) {
		// presence 已綁定但從未附著
		return
	}

	c.transport.Broadcast(c.presenceAudience(room, u.ID), Event{
		Type: EventMemberDisconnected,
		Data: MemberRef{RoomID: room.ID, UserID: u.ID, Name: u.Name},
	})
	c.publish(LifecycleEvent{Kind: LifecycleMemberDetached, RoomID: room.ID, UserID: u.ID})
	c.logger.Info("成員已斷線",
		"room_id", room.ID,
		"user_id", u.ID)

	c.vacate(room, u)

	if room.HostID == u.ID {
		c.succeed(room, true)
	} else {
		c.collect(room)
	}
}

// lobbyDetached lobby 斷線，席位保留
//
// 房主在選單裡保留的空房間（不一定還持有席位）在這一步處理。
func (c *Coordinator) lobbyDetached(u *LogicalUser) {
	for _, room := range c.rooms.HostedBy(u.ID) {
		if room.IsMember(u.ID) {
			continue
		}
		c.succeed(room, true)
	}

	if room, ok := c.rooms.Get(u.RoomID); ok {
		c.collect(room)
	}
}

// leaveLocked 離開目前的房間
//
// 主動離開的房主放棄房間，不保留給選單。
func (c *Coordinator) leaveLocked(u *LogicalUser) {
	room, ok := c.rooms.Get(u.RoomID)
	if !ok {
		u.RoomID = ""
		return
	}

	c.vacate(room, u)

	if room.HostID == u.ID {
		c.succeed(room, false)
	} else {
		c.collect(room)
	}
}

// abandonHosted 房主進入另一個房間時，交出原本保留在選單的房間
func (c *Coordinator) abandonHosted(u *LogicalUser, keepRoomID string) {
	for _, room := range c.rooms.HostedBy(u.ID) {
		if room.ID != keepRoomID {
			c.succeed(room, false)
		}
	}
}

// reserve 預約席位並通知房間
func (c *Coordinator) reserve(room *Room, u *LogicalUser) error {
	if err := c.rooms.TryJoin(room.ID, u); err != nil {
		return err
	}
	c.abandonHosted(u, room.ID)

	c.transport.Broadcast(c.roomAudience(room, u.ID), Event{
		Type: EventMemberJoined,
		Data: c.memberView(room, u),
	})
	c.publish(LifecycleEvent{Kind: LifecycleSeatReserved, RoomID: room.ID, UserID: u.ID})
	c.logger.Info("玩家加入房間",
		"room_id", room.ID,
		"user_id", u.ID,
		"name", u.Name)
	return nil
}

// vacate 釋放席位並通知房間
func (c *Coordinator) vacate(room *Room, u *LogicalUser) {
	if !c.rooms.Vacate(room.ID, u.ID) {
		return
	}

	c.transport.Broadcast(c.roomAudience(room, u.ID), Event{
		Type: EventMemberLeft,
		Data: MemberRef{RoomID: room.ID, UserID: u.ID, Name: u.Name},
	})
	c.publish(LifecycleEvent{Kind: LifecycleSeatReleased, RoomID: room.ID, UserID: u.ID})
	c.logger.Info("玩家離開房間",
		"room_id", room.ID,
		"user_id", u.ID)
}

// activate 持有席位的使用者成為在線成員
//
// 重新附著（重連）與首次附著發出相同的事件。
func (c *Coordinator) activate(room *Room, u *LogicalUser) {
	if err := c.rooms.Attach(room.ID, u.ID); err != nil {
		c.logger.Error("附著失敗", "room_id", room.ID, "user_id", u.ID, "error", err)
		return
	}

	if conn, ok := u.Conn(RolePresence); ok {
		c.transport.Send(conn, Event{Type: EventCurrentMembers, Data: c.roster(room)})
	}
	c.transport.Broadcast(c.presenceAudience(room, u.ID), Event{
		Type: EventMemberConnected,
		Data: c.memberView(room, u),
	})
	c.publish(LifecycleEvent{Kind: LifecycleMemberAttached, RoomID: room.ID, UserID: u.ID})
	c.logger.Info("成員已進入場景",
		"room_id", room.ID,
		"user_id", u.ID)
}

// succeed 房主失去資格時的繼承
//
// 依序：最早附著的成員 → 仍在選單的原房主（keepForLobby 時）→ 刪除房間。
func (c *Coordinator) succeed(room *Room, keepForLobby bool) {
	if first, ok := room.FirstMember(); ok {
		if first != room.HostID {
			c.changeHost(room, first)
		}
		return
	}
	if keepForLobby && c.hostInLobby(room) {
		return
	}
	c.deleteRoomLocked(room, "房主已離開且房間內沒有玩家")
}

// collect 房間回收
//
// 只有「沒有成員」且「房主不在選單」同時成立才刪除；
// 只看前者會讓剛創建、還沒人進入場景的房間立刻消失。
func (c *Coordinator) collect(room *Room) {
	if len(room.members) > 0 || c.hostInLobby(room) {
		return
	}
	c.deleteRoomLocked(room, "房間內已沒有玩家")
}

// hostInLobby 房主的 lobby 連接在線，且沒有坐進其他房間
func (c *Coordinator) hostInLobby(room *Room) bool {
	host, ok := c.users.Lookup(room.HostID)
	if !ok {
		return false
	}
	if host.RoomID != "" && host.RoomID != room.ID {
		return false
	}
	_, ok = host.Conn(RoleLobby)
	return ok
}

func (c *Coordinator) changeHost(room *Room, userID string) {
	if err := c.rooms.SetHost(room.ID, userID); err != nil {
		return
	}

	hostName := ""
	if host, ok := c.users.Lookup(userID); ok {
		hostName = host.Name
	}
	c.transport.Broadcast(c.roomAudience(room, ""), Event{
		Type: EventHostChanged,
		Data: HostChanged{RoomID: room.ID, HostID: userID, HostName: hostName},
	})
	c.publish(LifecycleEvent{Kind: LifecycleHostChanged, RoomID: room.ID, UserID: userID})
	c.logger.Info("房主已變更",
		"room_id", room.ID,
		"host_id", userID)
}

// deleteRoomLocked 通知所有席位持有者後刪除房間
func (c *Coordinator) deleteRoomLocked(room *Room, reason string) {
	c.transport.Broadcast(c.roomAudience(room, ""), Event{
		Type: EventRoomDeleted,
		Data: RoomDeleted{RoomID: room.ID, Reason: reason},
	})

	seats := room.Seats()
	if _, ok := c.rooms.Delete(room.ID); !ok {
		return
	}
	for _, userID := range seats {
		if u, ok := c.users.Lookup(userID); ok {
			c.maybeRelease(u)
		}
	}

	c.publish(LifecycleEvent{Kind: LifecycleRoomDeleted, RoomID: room.ID, Detail: reason})
	c.logger.Info("房間已刪除",
		"room_id", room.ID,
		"reason", reason)
}

// roomAudience 所有席位持有者的所有連接
func (c *Coordinator) roomAudience(room *Room, excludeUserID string) []ConnID {
	conns := make([]ConnID, 0, len(room.seats)*2)
	for _, userID := range room.seats {
		if userID == excludeUserID {
			continue
		}
		if u, ok := c.users.Lookup(userID); ok {
			conns = append(conns, u.Conns()...)
		}
	}
	return conns
}

// presenceAudience 在線成員的 presence 連接
func (c *Coordinator) presenceAudience(room *Room, excludeUserID string) []ConnID {
	conns := make([]ConnID, 0, len(room.members))
	for _, userID := range room.members {
		if userID == excludeUserID {
			continue
		}
		if u, ok := c.users.Lookup(userID); ok {
			if conn, ok := u.Conn(RolePresence); ok {
				conns = append(conns, conn)
			}
		}
	}
	return conns
}

func (c *Coordinator) memberView(room *Room, u *LogicalUser) MemberView {
	view := MemberView{
		UserID: u.ID,
		Name:   u.Name,
		Bio:    u.Bio,
		Active: room.IsMember(u.ID),
	}
	if view.Active || u.HasState {
		state := u.State
		view.State = &state
	}
	return view
}

func (c *Coordinator) roster(room *Room) RoomRoster {
	members := make([]MemberView, 0, len(room.seats))
	for _, userID := range room.seats {
		if u, ok := c.users.Lookup(userID); ok {
			members = append(members, c.memberView(room, u))
		}
	}
	return RoomRoster{
		RoomID:   room.ID,
		RoomName: room.Name,
		HostID:   room.HostID,
		Capacity: room.Capacity,
		Members:  members,
	}
}

func (c *Coordinator) broadcastRoomListLocked() {
	c.transport.BroadcastAll(Event{Type: EventRoomList, Data: c.rooms.ListPublic()})
}

func (c *Coordinator) publish(ev LifecycleEvent) {
	if c.sink == nil {
		return
	}
	ev.At = c.now()
	c.sink.Publish(ev)
}

func (c *Coordinator) checkName(name, field string) error {
	if name == "" {
		return fmt.Errorf("%w: %s不能為空", ErrInvalidRequest, field)
	}
	if utf8.RuneCountInString(name) > c.limits.MaxNameLength {
		return fmt.Errorf("%w: %s不能超過 %d 個字", ErrInvalidRequest, field, c.limits.MaxNameLength)
	}
	return nil
}

// RoomDetail 房間詳情
type RoomDetail struct {
	RoomSummary
	Seats        []string     `json:"seats"`
	Members      []string     `json:"members"`
	Roster       []MemberView `json:"roster"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
}

// UserDetail 使用者快照
type UserDetail struct {
	ID         string `json:"user_id"`
	Name       string `json:"name"`
	Bio        string `json:"bio"`
	RoomID     string `json:"room_id,omitempty"`
	Registered bool   `json:"registered"`
	Lobby      bool   `json:"lobby"`
	Presence   bool   `json:"presence"`
}

// ListPublic 公開房間列表
func (c *Coordinator) ListPublic() []RoomSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms.ListPublic()
}

// RoomDetail 獲取房間詳情
func (c *Coordinator) RoomDetail(roomID string) (RoomDetail, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	room, ok := c.rooms.Get(roomID)
	if !ok {
		return RoomDetail{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return RoomDetail{
		RoomSummary:  c.rooms.summarize(room),
		Seats:        room.Seats(),
		Members:      room.Members(),
		Roster:       c.roster(room).Members,
		CreatedAt:    room.CreatedAt,
		LastActivity: room.LastActivity,
	}, nil
}

// User 獲取使用者快照
func (c *Coordinator) User(userID string) (UserDetail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, ok := c.users.Lookup(userID)
	if !ok {
		return UserDetail{}, false
	}
	_, lobby := u.Conn(RoleLobby)
	_, presence := u.Conn(RolePresence)
	return UserDetail{
		ID:         u.ID,
		Name:       u.Name,
		Bio:        u.Bio,
		RoomID:     u.RoomID,
		Registered: u.Registered(),
		Lobby:      lobby,
		Presence:   presence,
	}, true
}

// Stats 獲取統計資訊
func (c *Coordinator) Stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statusCount := make(map[RoomStatus]int)
	members, seats := 0, 0
	for _, summary := range c.rooms.ListPublic() {
		statusCount[summary.Status]++
		members += summary.CurrentPlayers
		seats += summary.ReservedSeats
	}

	return map[string]any{
		"total_rooms":       c.rooms.Len(),
		"total_users":       c.users.Len(),
		"total_connections": len(c.bindings),
		"active_members":    members,
		"reserved_seats":    seats,
		"by_status":         statusCount,
	}
}
