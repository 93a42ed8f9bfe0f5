package internal

// 連接綁定
//
// 每條傳輸連接最多佔一個 (user, role) 槽位；同一槽位只保留最新的連接。
// 以下方法都必須在持有 c.mu 寫鎖時呼叫，驅逐與安裝在同一個臨界區內完成，
// 同一身份的其他事件不會插在「通知舊連接 → 關閉 → 綁定新連接」之間。

// binding 連接所在的槽位
type binding struct {
	userID string
	role   Role
}

// bind 將連接綁定到使用者的角色槽位
//
// userID 為空且連接已綁定同一角色時，沿用原本的使用者（重複註冊）。
// 連接若已綁在其他槽位，先按斷線處理舊槽位。
// 已被驅逐的連接在傳輸層回報關閉前仍可能送來請求，一律拒絕。
func (c *Coordinator) bind(conn ConnID, userID string, role Role, proposedName string) (*LogicalUser, error) {
	if _, gone := c.evicted[conn]; gone {
		return nil, ErrConnectionClosed
	}

	if b, ok := c.bindings[conn]; ok {
		if b.role == role && (userID == "" || userID == b.userID) {
			if u, ok := c.users.Lookup(b.userID); ok {
				return u, nil
			}
		}
		c.detachLocked(conn)
	}

	u := c.users.ResolveOrCreate(userID, proposedName)

	// 離線期間名稱可能已被別人註冊
	if !c.users.ReclaimName(u.ID) {
		c.logger.Info("名稱已被佔用，改用臨時名稱",
			"user_id", u.ID,
			"name", u.Name)
	}

	if prev, ok := u.Conn(role); ok && prev != conn {
		c.evict(u, role, prev)
	}

	// 使用者剛由 ResolveOrCreate 取得，BindConn 不會失敗
	_, _ = c.users.BindConn(u.ID, role, conn)
	c.bindings[conn] = binding{userID: u.ID, role: role}

	c.logger.Debug("連接已綁定",
		"conn_id", conn,
		"user_id", u.ID,
		"role", role)

	return u, nil
}

// evict 驅逐佔用槽位的舊連接
//
// 順序固定：通知 → 關閉 → 解除綁定。只是換連接，不視為斷線，
// 房間成員資格保持不變，由新連接直接接手。
func (c *Coordinator) evict(u *LogicalUser, role Role, prev ConnID) {
	c.transport.Send(prev, Event{
		Type: EventEvicted,
		Data: Evicted{Reason: "此身份已在其他地方連線"},
	})
	c.transport.Disconnect(prev)

	c.users.UnbindConn(u.ID, role, prev)
	delete(c.bindings, prev)
	c.evicted[prev] = struct{}{}

	c.logger.Info("舊連接已被取代",
		"conn_id", prev,
		"user_id", u.ID,
		"role", role)
	c.publish(LifecycleEvent{Kind: LifecycleEvicted, UserID: u.ID, Detail: string(role)})
}

// detachLocked 處理連接斷開，返回是否有狀態變更
//
// 永不失敗：連接、使用者或房間已被其他事件移除時直接跳過。
func (c *Coordinator) detachLocked(conn ConnID) bool {
	delete(c.evicted, conn)

	b, ok := c.bindings[conn]
	if !ok {
		return false
	}
	delete(c.bindings, conn)

	u, ok := c.users.Lookup(b.userID)
	if !ok {
		return true
	}
	if !c.users.UnbindConn(u.ID, b.role, conn) {
		return true
	}

	switch b.role {
	case RolePresence:
		c.presenceDetached(u)
	case RoleLobby:
		c.lobbyDetached(u)
	}

	c.maybeRelease(u)
	return true
}

// userFor 查詢連接綁定的使用者，可限制角色
func (c *Coordinator) userFor(conn ConnID, roles ...Role) (*LogicalUser, error) {
	b, ok := c.bindings[conn]
	if !ok {
		return nil, ErrNotRegistered
	}
	if len(roles) > 0 {
		allowed := false
		for _, role := range roles {
			if b.role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, ErrWrongRole
		}
	}
	u, ok := c.users.Lookup(b.userID)
	if !ok {
		return nil, ErrNotRegistered
	}
	return u, nil
}

// maybeRelease 沒有連接也沒有席位的使用者才刪除
func (c *Coordinator) maybeRelease(u *LogicalUser) {
	if u.IsLive() || u.RoomID != "" {
		return
	}
	if current, ok := c.users.Lookup(u.ID); !ok || current != u {
		return
	}
	c.users.Release(u.ID)
	c.logger.Debug("使用者已釋放", "user_id", u.ID)
	c.publish(LifecycleEvent{Kind: LifecycleUserReleased, UserID: u.ID})
}

