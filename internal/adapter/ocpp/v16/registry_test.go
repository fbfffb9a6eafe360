package v16

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	onSend func(frame []byte)
	closed bool
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	f.frames = append(f.frames, data)
	cb := f.onSend
	f.mu.Unlock()
	if cb != nil {
		cb(data)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) lastFrame(t *testing.T) []json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		t.Fatal("no frames sent")
	}
	var msg []json.RawMessage
	if err := json.Unmarshal(f.frames[len(f.frames)-1], &msg); err != nil {
		t.Fatalf("sent frame is not a JSON array: %v", err)
	}
	return msg
}

func TestAllocateRequestIDSeed(t *testing.T) {
	r := NewRegistry(time.Second, zap.NewNop())

	if got := r.AllocateRequestID("CP1"); got != "900000001" {
		t.Errorf("first request id = %s, want 900000001", got)
	}
	if got := r.AllocateRequestID("CP1"); got != "900000002" {
		t.Errorf("second request id = %s, want 900000002", got)
	}
	// Counters are per station.
	if got := r.AllocateRequestID("CP2"); got != "900000001" {
		t.Errorf("other station first id = %s, want 900000001", got)
	}
}

func TestCallDeliversResult(t *testing.T) {
	r := NewRegistry(2*time.Second, zap.NewNop())
	transport := &fakeTransport{}

	// Reply as soon as the frame goes out, like a fast station.
	transport.onSend = func(frame []byte) {
		var msg []json.RawMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Errorf("bad outbound frame: %v", err)
			return
		}
		var requestID string
		json.Unmarshal(msg[1], &requestID)
		go r.Deliver("CP1", requestID, json.RawMessage(`{"status":"Accepted"}`), nil)
	}
	r.Register("CP1", transport)

	payload, err := r.Call(context.Background(), "CP1", "RemoteStartTransaction", map[string]interface{}{
		"connectorId": 1,
		"idTag":       "ANON",
	})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("result payload: %v", err)
	}
	if result["status"] != "Accepted" {
		t.Errorf("status = %s, want Accepted", result["status"])
	}

	msg := transport.lastFrame(t)
	if len(msg) != 4 {
		t.Fatalf("outbound call has %d elements, want 4", len(msg))
	}
	var msgType int
	json.Unmarshal(msg[0], &msgType)
	if msgType != CallMessage {
		t.Errorf("message type = %d, want %d", msgType, CallMessage)
	}
	var action string
	json.Unmarshal(msg[2], &action)
	if action != "RemoteStartTransaction" {
		t.Errorf("action = %s", action)
	}
}

func TestCallDeliversCallError(t *testing.T) {
	r := NewRegistry(2*time.Second, zap.NewNop())
	transport := &fakeTransport{}
	transport.onSend = func(frame []byte) {
		var msg []json.RawMessage
		json.Unmarshal(frame, &msg)
		var requestID string
		json.Unmarshal(msg[1], &requestID)
		go r.Deliver("CP1", requestID, nil, &CallError{Code: "NotSupported", Description: "nope"})
	}
	r.Register("CP1", transport)

	_, err := r.Call(context.Background(), "CP1", "RemoteStopTransaction", map[string]interface{}{"transactionId": 7})
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error = %v, want *CallError", err)
	}
	if callErr.Code != "NotSupported" {
		t.Errorf("code = %s", callErr.Code)
	}
}

func TestCallTimeoutRemovesWaiter(t *testing.T) {
	r := NewRegistry(50*time.Millisecond, zap.NewNop())
	transport := &fakeTransport{}
	r.Register("CP1", transport)

	_, err := r.Call(context.Background(), "CP1", "RemoteStartTransaction", map[string]interface{}{})
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("error = %v, want ErrCallTimeout", err)
	}

	r.mu.Lock()
	pending := len(r.waiters)
	r.mu.Unlock()
	if pending != 0 {
		t.Errorf("waiters left after timeout: %d", pending)
	}

	// A late station reply must be a silent no-op.
	msg := transport.lastFrame(t)
	var requestID string
	json.Unmarshal(msg[1], &requestID)
	r.Deliver("CP1", requestID, json.RawMessage(`{}`), nil)
}

func TestCallWithoutTransport(t *testing.T) {
	r := NewRegistry(time.Second, zap.NewNop())
	_, err := r.Call(context.Background(), "GHOST", "RemoteStartTransaction", map[string]interface{}{})
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("error = %v, want ErrNoTransport", err)
	}
}

func TestUnregisterIfSameCancelsWaiters(t *testing.T) {
	r := NewRegistry(5*time.Second, zap.NewNop())
	transport := &fakeTransport{}
	r.Register("CP1", transport)

	errCh := make(chan error, 1)
	transport.onSend = func([]byte) {
		go r.UnregisterIfSame("CP1", transport)
	}
	go func() {
		_, err := r.Call(context.Background(), "CP1", "RemoteStartTransaction", map[string]interface{}{})
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrTransportClosed) {
			t.Fatalf("error = %v, want ErrTransportClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not fail after teardown")
	}

	if r.Get("CP1") != nil {
		t.Error("transport still registered after teardown")
	}
}

func TestUnregisterIfSameIgnoresStaleTransport(t *testing.T) {
	r := NewRegistry(time.Second, zap.NewNop())
	old := &fakeTransport{}
	fresh := &fakeTransport{}

	r.Register("CP1", old)
	r.Register("CP1", fresh)

	// The old connection's teardown must not evict the reconnect.
	r.UnregisterIfSame("CP1", old)
	if r.Get("CP1") != fresh {
		t.Fatal("stale teardown evicted fresh transport")
	}

	r.UnregisterIfSame("CP1", fresh)
	if r.Get("CP1") != nil {
		t.Fatal("fresh transport not removed")
	}
}

func TestDeliverUnknownCorrelationIsDropped(t *testing.T) {
	r := NewRegistry(time.Second, zap.NewNop())
	// Must not panic or block.
	r.Deliver("CP1", "12345", json.RawMessage(`{}`), nil)
}
