package internal_test

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/koopa0/system-design/presence-coordinator/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectory(t *testing.T, userIDs ...string) (*internal.Directory, map[string]*internal.LogicalUser) {
	t.Helper()
	users := internal.NewRegistry()
	byID := make(map[string]*internal.LogicalUser, len(userIDs))
	for _, id := range userIDs {
		byID[id] = users.ResolveOrCreate(id, "name-"+id)
	}
	return internal.NewDirectory(users), byID
}

// TestDirectory_Create 測試創建房間
func TestDirectory_Create(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		preRoom  string
		wantErr  error
	}{
		{name: "valid room", capacity: 4},
		{name: "single seat room", capacity: 1},
		{name: "zero capacity", capacity: 0, wantErr: internal.ErrInvalidRequest},
		{name: "host already seated", capacity: 4, preRoom: "elsewhere", wantErr: internal.ErrAlreadyInRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, users := newDirectory(t, "host")
			host := users["host"]
			host.RoomID = tt.preRoom

			room, err := d.Create(host, "測試房間", tt.capacity)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, d.Len())
				return
			}
			require.NoError(t, err)

			assert.Equal(t, "測試房間", room.Name)
			assert.Equal(t, "host", room.HostID)
			assert.Equal(t, tt.capacity, room.Capacity)
			assert.Equal(t, []string{"host"}, room.Seats())
			assert.Empty(t, room.Members(), "房主要附著 presence 才算成員")
			assert.Equal(t, room.ID, host.RoomID)
			assert.False(t, room.CreatedAt.IsZero())
		})
	}
}

// TestDirectory_RoomIDs 房間 ID 簡短且不重複
func TestDirectory_RoomIDs(t *testing.T) {
	const n = 200
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("host-%d", i))
	}
	d, users := newDirectory(t, ids...)

	pattern := regexp.MustCompile(`^[a-z0-9]{7}$`)
	seen := make(map[string]bool, n)
	for _, id := range ids {
		room, err := d.Create(users[id], "R", 2)
		require.NoError(t, err)
		assert.Regexp(t, pattern, room.ID)
		assert.False(t, seen[room.ID], "重複的房間 ID: %s", room.ID)
		seen[room.ID] = true
	}
	assert.Equal(t, n, d.Len())
}

// TestDirectory_TryJoin 測試預約席位
func TestDirectory_TryJoin(t *testing.T) {
	d, users := newDirectory(t, "host", "a", "b", "c")
	room, err := d.Create(users["host"], "R", 3)
	require.NoError(t, err)
	other, err := d.Create(users["c"], "Other", 3)
	require.NoError(t, err)

	require.NoError(t, d.TryJoin(room.ID, users["a"]))
	assert.Equal(t, room.ID, users["a"].RoomID)
	assert.Empty(t, room.Members(), "加入只預約席位")

	// 已持有席位視為成功
	require.NoError(t, d.TryJoin(room.ID, users["a"]))
	assert.Equal(t, 2, room.Occupancy())

	assert.ErrorIs(t, d.TryJoin("missing", users["b"]), internal.ErrRoomNotFound)
	assert.ErrorIs(t, d.TryJoin(room.ID, users["c"]), internal.ErrAlreadyInRoom)
	assert.Equal(t, other.ID, users["c"].RoomID)

	require.NoError(t, d.TryJoin(room.ID, users["b"]))
	assert.Equal(t, internal.StatusFull, room.Status)

	d2, more := newDirectory(t, "h", "x")
	full, err := d2.Create(more["h"], "Solo", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, d2.TryJoin(full.ID, more["x"]), internal.ErrRoomFull)
	assert.Empty(t, more["x"].RoomID)
	assert.Equal(t, 1, full.Occupancy())
}

// TestDirectory_Membership 測試附著、斷線與釋放席位
func TestDirectory_Membership(t *testing.T) {
	d, users := newDirectory(t, "host", "a", "outsider")
	room, err := d.Create(users["host"], "R", 3)
	require.NoError(t, err)
	require.NoError(t, d.TryJoin(room.ID, users["a"]))

	assert.ErrorIs(t, d.Attach(room.ID, "outsider"), internal.ErrNotInRoom)
	assert.ErrorIs(t, d.Attach("missing", "a"), internal.ErrRoomNotFound)

	require.NoError(t, d.Attach(room.ID, "a"))
	require.NoError(t, d.Attach(room.ID, "host"))
	require.NoError(t, d.Attach(room.ID, "a"))
	assert.Equal(t, []string{"a", "host"}, room.Members(), "重複附著不改變順序")
	assert.Equal(t, internal.StatusPlaying, room.Status)

	first, ok := room.FirstMember()
	require.True(t, ok)
	assert.Equal(t, "a", first)

	assert.True(t, d.DetachMember(room.ID, "a"))
	assert.False(t, d.DetachMember(room.ID, "a"))
	assert.True(t, room.HasSeat("a"))
	assert.False(t, room.IsMember("a"))

	assert.True(t, d.Vacate(room.ID, "host"))
	assert.False(t, room.HasSeat("host"))
	assert.False(t, room.IsMember("host"))
	assert.Empty(t, users["host"].RoomID)
	assert.False(t, d.Vacate(room.ID, "host"))
	assert.Equal(t, internal.StatusWaiting, room.Status)

	_, ok = room.FirstMember()
	assert.False(t, ok)
}

// TestDirectory_StatusTransitions 測試狀態轉換
func TestDirectory_StatusTransitions(t *testing.T) {
	d, users := newDirectory(t, "host", "a")
	room, err := d.Create(users["host"], "R", 2)
	require.NoError(t, err)
	assert.Equal(t, internal.StatusWaiting, room.Status)

	require.NoError(t, d.TryJoin(room.ID, users["a"]))
	assert.Equal(t, internal.StatusFull, room.Status)

	require.NoError(t, d.Attach(room.ID, "a"))
	assert.Equal(t, internal.StatusFull, room.Status, "席位已滿優先於進行中")

	require.True(t, d.Vacate(room.ID, "host"))
	assert.Equal(t, internal.StatusPlaying, room.Status)

	require.True(t, d.DetachMember(room.ID, "a"))
	assert.Equal(t, internal.StatusWaiting, room.Status)
}

// TestDirectory_SetHostAndDelete 測試更換房主與刪除
func TestDirectory_SetHostAndDelete(t *testing.T) {
	d, users := newDirectory(t, "host", "a")
	room, err := d.Create(users["host"], "R", 3)
	require.NoError(t, err)
	require.NoError(t, d.TryJoin(room.ID, users["a"]))

	before := room.LastActivity
	require.NoError(t, d.SetHost(room.ID, "a"))
	assert.Equal(t, "a", room.HostID)
	assert.False(t, room.LastActivity.Before(before))
	assert.ErrorIs(t, d.SetHost("missing", "a"), internal.ErrRoomNotFound)

	deleted, ok := d.Delete(room.ID)
	require.True(t, ok)
	assert.Same(t, room, deleted)
	assert.Empty(t, users["host"].RoomID)
	assert.Empty(t, users["a"].RoomID)

	_, ok = d.Get(room.ID)
	assert.False(t, ok)
	_, ok = d.Delete(room.ID)
	assert.False(t, ok)
}

// TestDirectory_ListPublic 房間列表即時計算
func TestDirectory_ListPublic(t *testing.T) {
	d, users := newDirectory(t, "h1", "h2", "a")
	r1, err := d.Create(users["h1"], "One", 4)
	require.NoError(t, err)
	r2, err := d.Create(users["h2"], "Two", 2)
	require.NoError(t, err)

	require.NoError(t, d.TryJoin(r1.ID, users["a"]))
	require.NoError(t, d.Attach(r1.ID, "a"))

	assert.ElementsMatch(t, []internal.RoomSummary{
		{
			ID:             r1.ID,
			Name:           "One",
			HostID:         "h1",
			HostName:       "name-h1",
			CurrentPlayers: 1,
			ReservedSeats:  2,
			MaxPlayers:     4,
			Status:         internal.StatusPlaying,
		},
		{
			ID:             r2.ID,
			Name:           "Two",
			HostID:         "h2",
			HostName:       "name-h2",
			CurrentPlayers: 0,
			ReservedSeats:  1,
			MaxPlayers:     2,
			Status:         internal.StatusWaiting,
		},
	}, d.ListPublic())

	require.True(t, d.DetachMember(r1.ID, "a"))
	for _, summary := range d.ListPublic() {
		if summary.ID == r1.ID {
			assert.Equal(t, 0, summary.CurrentPlayers)
		}
	}
}
