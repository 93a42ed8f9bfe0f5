// Package internal 提供多人 3D 空間的在線狀態協調服務。
//
// 每位使用者同時擁有兩條 WebSocket 連接：選單（lobby）負責註冊、
// 瀏覽與加入房間；3D 場景（presence）負責附著到房間並同步即時狀態。
// 兩條連接以 user_id 綁定成同一個邏輯使用者。
//
// # 身份與連接
//
// Registry 保存邏輯使用者：
//   - 每個 (user, role) 只保留最新的連接，舊連接先收到 evicted 再被關閉
//   - 名稱全域唯一，斷線且沒有席位的使用者會被釋放，名稱隨之讓出
//   - 只用 presence 連接進入的使用者先拿到臨時名稱
//
// # 房間
//
// Directory 管理房間與席位。加入分兩階段：
//
//	join_room（lobby）      → 預約席位，計入 reserved_seats
//	presence_attach（3D）   → 成為成員，計入 current_players
//
// 容量以席位計算，房主佔第一個席位。
//
// # 生命週期
//
// 所有狀態變更都由 Coordinator 的單一寫鎖串行化：
//   - presence 斷線：移出成員並釋放席位，使用者回到選單
//   - lobby 斷線：保留席位，讓使用者可以從 3D 場景重連
//   - 房主離開場景但仍在選單時保留空房間；lobby 斷線、創建或加入其他房間時放棄
//   - 房主失去資格：交給最早附著的成員，否則保留給仍在選單的房主，否則刪除房間
//   - 沒有成員且房主不在選單的房間會被回收
//
// 生命週期事件透過 LifecycleSink 發布，可接到 NATS 或只寫日誌。
//
// # 傳輸
//
// WebSocketHub 實作 Transport。Coordinator 在臨界區內呼叫的方法只把訊息
// 放入每條連接的發送佇列；佇列滿時丟棄並記錄警告，不會阻塞其他使用者。
//
// # 使用範例
//
//	cfg, _ := internal.LoadConfig("config.yaml")
//	hub := internal.NewWebSocketHub(cfg.WebSocket, cfg.Server.AllowedOrigin, logger)
//	coordinator := internal.NewCoordinator(hub, internal.NewLogSink(logger), cfg.Rooms, logger)
//	hub.SetHandler(coordinator)
//
//	handler := internal.NewHandler(coordinator, hub, logger)
//	http.ListenAndServe(":3000", handler.Routes())
//
// 客戶端訊息格式為 {"type": ..., "data": ...}，伺服器事件為 {"event": ..., "data": ...}。
//
// # 配置選項
//
//   - -config：YAML 配置檔
//   - -port：服務監聽端口（預設 3000）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//   - -nats-url：NATS 位址
package internal
