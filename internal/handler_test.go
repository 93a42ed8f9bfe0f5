package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/presence-coordinator/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	handler := internal.NewHandler(f.coord, nil, testLogger())
	return handler.Routes(), f
}

func getJSON(t *testing.T, router http.Handler, url string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

// TestHandler_ListRooms 測試房間列表 API
func TestHandler_ListRooms(t *testing.T) {
	router, f := newTestRouter(t)

	status, resp := getJSON(t, router, "/api/v1/rooms")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), resp["total"])

	_, err := f.coord.Register("lobby-1", "u1", "Alice", "")
	require.NoError(t, err)
	created, err := f.coord.CreateRoom("lobby-1", "測試房間", 4)
	require.NoError(t, err)

	status, resp = getJSON(t, router, "/api/v1/rooms")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp["total"])

	rooms, ok := resp["rooms"].([]any)
	require.True(t, ok)
	require.Len(t, rooms, 1)
	room := rooms[0].(map[string]any)
	assert.Equal(t, created.RoomID, room["room_id"])
	assert.Equal(t, "測試房間", room["room_name"])
	assert.Equal(t, "Alice", room["host_name"])
	assert.Equal(t, float64(0), room["current_players"])
	assert.Equal(t, float64(4), room["max_players"])
	assert.Equal(t, "waiting", room["status"])
}

// TestHandler_GetRoomDetail 測試房間詳情 API
func TestHandler_GetRoomDetail(t *testing.T) {
	router, f := newTestRouter(t)

	_, err := f.coord.Register("lobby-1", "u1", "Alice", "")
	require.NoError(t, err)
	created, err := f.coord.CreateRoom("lobby-1", "R", 4)
	require.NoError(t, err)
	_, err = f.coord.AttachPresence("game-1", "u1", created.RoomID, "")
	require.NoError(t, err)

	tests := []struct {
		name           string
		roomID         string
		expectedStatus int
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:           "existing room",
			roomID:         created.RoomID,
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, created.RoomID, resp["room_id"])
				assert.Equal(t, []any{"u1"}, resp["members"])
				assert.Equal(t, []any{"u1"}, resp["seats"])
				assert.Equal(t, "playing", resp["status"])
				assert.NotEmpty(t, resp["created_at"])
			},
		},
		{
			name:           "missing room",
			roomID:         "missing",
			expectedStatus: http.StatusNotFound,
			validate: func(t *testing.T, resp map[string]any) {
				assert.Equal(t, "room_not_found", resp["code"])
				assert.Contains(t, resp["reason"], "房間不存在")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := getJSON(t, router, "/api/v1/rooms/"+tt.roomID)
			assert.Equal(t, tt.expectedStatus, status)
			tt.validate(t, resp)
		})
	}
}

// TestHandler_GetUser 測試使用者查詢 API
func TestHandler_GetUser(t *testing.T) {
	router, f := newTestRouter(t)

	_, err := f.coord.Register("lobby-1", "u1", "Alice", "hello")
	require.NoError(t, err)

	status, resp := getJSON(t, router, "/api/v1/users/u1")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Alice", resp["name"])
	assert.Equal(t, "hello", resp["bio"])
	assert.Equal(t, true, resp["lobby"])
	assert.Equal(t, false, resp["presence"])
	assert.Nil(t, resp["room_id"])

	status, resp = getJSON(t, router, "/api/v1/users/nobody")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_registered", resp["code"])
}

// TestHandler_Health 測試健康檢查 API
func TestHandler_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	status, resp := getJSON(t, router, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", resp["status"])
	assert.NotNil(t, resp["time"])
	assert.NotEmpty(t, resp["uptime"])
}

// TestHandler_Stats 測試統計 API
func TestHandler_Stats(t *testing.T) {
	router, f := newTestRouter(t)
	c := f.coord

	_, err := c.Register("lobby-1", "u1", "One", "")
	require.NoError(t, err)
	r1, err := c.CreateRoom("lobby-1", "房間1", 4)
	require.NoError(t, err)
	_, err = c.AttachPresence("game-1", "u1", r1.RoomID, "")
	require.NoError(t, err)

	_, err = c.Register("lobby-2", "u2", "Two", "")
	require.NoError(t, err)
	_, err = c.CreateRoom("lobby-2", "房間2", 2)
	require.NoError(t, err)

	_, err = c.Register("lobby-3", "u3", "Three", "")
	require.NoError(t, err)
	_, err = c.JoinRoom("lobby-3", r1.RoomID)
	require.NoError(t, err)

	status, resp := getJSON(t, router, "/stats")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), resp["total_rooms"])
	assert.Equal(t, float64(3), resp["total_users"])
	assert.Equal(t, float64(4), resp["total_connections"])
	assert.Equal(t, float64(1), resp["active_members"])
	assert.Equal(t, float64(3), resp["reserved_seats"])

	byStatus, ok := resp["by_status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), byStatus["playing"])
	assert.Equal(t, float64(1), byStatus["waiting"])
	assert.NotContains(t, resp, "connections_by_role", "沒有 Hub 時不回報連接數")
}

// TestHandler_MethodNotAllowed 只提供查詢
func TestHandler_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, url := range []string{"/api/v1/rooms", "/health"} {
		req := httptest.NewRequest(http.MethodPost, url, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, url)
	}
}
