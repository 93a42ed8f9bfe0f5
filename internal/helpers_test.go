package internal_test

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/koopa0/system-design/presence-coordinator/internal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // 測試時只顯示錯誤
	}))
}

func testLimits() internal.RoomConfig {
	return internal.RoomConfig{
		MinCapacity:     1,
		MaxCapacity:     16,
		DefaultCapacity: 6,
		MaxNameLength:   32,
	}
}

type delivery struct {
	conn internal.ConnID
	ev   internal.Event
}

// recordingTransport 記錄所有送出的事件，順序與呼叫順序一致
type recordingTransport struct {
	mu           sync.Mutex
	deliveries   []delivery
	global       []internal.Event
	disconnected []internal.ConnID
	trace        []string
}

func (t *recordingTransport) Send(conn internal.ConnID, ev internal.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deliveries = append(t.deliveries, delivery{conn: conn, ev: ev})
	t.trace = append(t.trace, fmt.Sprintf("send:%s:%s", conn, ev.Type))
}

func (t *recordingTransport) Broadcast(conns []internal.ConnID, ev internal.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, conn := range conns {
		t.deliveries = append(t.deliveries, delivery{conn: conn, ev: ev})
		t.trace = append(t.trace, fmt.Sprintf("send:%s:%s", conn, ev.Type))
	}
}

func (t *recordingTransport) BroadcastAll(ev internal.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.global = append(t.global, ev)
}

func (t *recordingTransport) Disconnect(conn internal.ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = append(t.disconnected, conn)
	t.trace = append(t.trace, fmt.Sprintf("disconnect:%s", conn))
}

// events 某連接收到的事件類型（依序）
func (t *recordingTransport) events(conn internal.ConnID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var types []string
	for _, d := range t.deliveries {
		if d.conn == conn {
			types = append(types, d.ev.Type)
		}
	}
	return types
}

// last 某連接最後一次收到的指定類型事件
func (t *recordingTransport) last(conn internal.ConnID, eventType string) (internal.Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.deliveries) - 1; i >= 0; i-- {
		d := t.deliveries[i]
		if d.conn == conn && d.ev.Type == eventType {
			return d.ev, true
		}
	}
	return internal.Event{}, false
}

func (t *recordingTransport) count(conn internal.ConnID, eventType string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, d := range t.deliveries {
		if d.conn == conn && d.ev.Type == eventType {
			n++
		}
	}
	return n
}

func (t *recordingTransport) lastGlobal() (internal.Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.global) == 0 {
		return internal.Event{}, false
	}
	return t.global[len(t.global)-1], true
}

func (t *recordingTransport) traceFor(conn internal.ConnID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, entry := range t.trace {
		if entry == "disconnect:"+string(conn) || strings.HasPrefix(entry, "send:"+string(conn)+":") {
			out = append(out, entry)
		}
	}
	return out
}

// recordingSink 記錄生命週期事件
type recordingSink struct {
	mu     sync.Mutex
	events []internal.LifecycleEvent
}

func (s *recordingSink) Publish(ev internal.LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

type fixture struct {
	coord     *internal.Coordinator
	transport *recordingTransport
	sink      *recordingSink
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	transport := &recordingTransport{}
	sink := &recordingSink{}
	coord := internal.NewCoordinator(transport, sink, testLimits(), testLogger())
	t.Cleanup(coord.Stop)
	return &fixture{coord: coord, transport: transport, sink: sink}
}
