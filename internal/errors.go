package internal

import "errors"

// 請求層級錯誤
//
// 全部都是可恢復的錯誤：同步回傳給發出請求的連接，不會影響共享狀態。
// 呼叫端用 fmt.Errorf("%w: ...") 附加上下文，用 errors.Is 判斷種類。
var (
	// ErrNameTaken 名稱已被另一位在線使用者佔用（不分大小寫）
	ErrNameTaken = errors.New("名稱已被使用")
	// ErrNotRegistered 連接尚未綁定任何使用者
	ErrNotRegistered = errors.New("尚未註冊使用者")
	// ErrAlreadyInRoom 使用者已持有某個房間的席位
	ErrAlreadyInRoom = errors.New("已在房間中")
	// ErrRoomNotFound 房間不存在
	ErrRoomNotFound = errors.New("房間不存在")
	// ErrRoomFull 房間席位已滿
	ErrRoomFull = errors.New("房間已滿")
	// ErrNotHost 只有房主可以執行
	ErrNotHost = errors.New("只有房主可以執行此操作")
	// ErrStaleRoomReference 重連時記住的房間已不存在
	ErrStaleRoomReference = errors.New("房間已關閉")
	// ErrNotInRoom 使用者不在任何房間
	ErrNotInRoom = errors.New("不在任何房間中")
	// ErrWrongRole 請求不能由此角色的連接發出
	ErrWrongRole = errors.New("連接角色不允許此請求")
	// ErrInvalidRequest 請求格式或參數錯誤
	ErrInvalidRequest = errors.New("無效的請求")
	// ErrConnectionClosed 連接已被取代，關閉前送達的請求一律忽略
	ErrConnectionClosed = errors.New("連接已被取代")
)

// ErrorCode 將錯誤映射為穩定的客戶端代碼
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNameTaken):
		return "name_taken"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrAlreadyInRoom):
		return "already_in_room"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrStaleRoomReference):
		return "stale_room_reference"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrWrongRole):
		return "wrong_role"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrConnectionClosed):
		return "connection_closed"
	default:
		return "internal"
	}
}
