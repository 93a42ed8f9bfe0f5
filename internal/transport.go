package internal

// Transport 傳輸層（廣播基底）
//
// Coordinator 在臨界區內呼叫這些方法，實作必須是非阻塞的：
// 只把訊息放進每條連接的發送佇列，實際 I/O 在各自的 goroutine 完成。
// 房間廣播的名單由 Coordinator 從 Room Directory 取得後傳入。
type Transport interface {
	// Send 單播
	Send(conn ConnID, ev Event)
	// Broadcast 多播到指定連接
	Broadcast(conns []ConnID, ev Event)
	// BroadcastAll 多播到所有在線連接（房間列表）
	BroadcastAll(ev Event)
	// Disconnect 強制關閉連接，已排入佇列的訊息會先送出
	Disconnect(conn ConnID)
}
