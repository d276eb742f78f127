package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *AlertHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.Serve))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Serve 在握手返回后才登记连接，等登记完成再广播
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestBroadcastDeliversToSubscriber(t *testing.T) {
	hub := NewAlertHub()
	conn := dialHub(t, hub)

	hub.Broadcast(map[string]string{"kind": "unusual_activity"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "unusual_activity") {
		t.Fatalf("payload = %s", data)
	}
}

// 定时扫描和 API 请求会同时调用 Broadcast，
// 同一连接上的写必须串行，否则 gorilla 直接 panic。
func TestBroadcastConcurrent(t *testing.T) {
	hub := NewAlertHub()
	conn := dialHub(t, hub)

	const writers, perWriter = 8, 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				hub.Broadcast(map[string]int{"writer": id, "seq": j})
			}
		}(i)
	}

	got := 0
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for got < writers*perWriter {
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("read failed after %d messages: %v", got, err)
		}
		got++
	}
	wg.Wait()

	if n := hub.Subscribers(); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
}
