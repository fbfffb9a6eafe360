package v16

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/observability/telemetry"
)

// OCPP 1.6 message types
const (
	CallMessage       = 2
	CallResultMessage = 3
	CallErrorMessage  = 4
)

// requestIDSeed keeps backend-minted request ids far above the small
// integers stations pick for their own calls.
const requestIDSeed = 900_000_000

// DefaultCallTimeout bounds how long an outbound call waits for the
// station's reply.
const DefaultCallTimeout = 12 * time.Second

var (
	ErrNoTransport     = errors.New("no active transport for charge point")
	ErrCallTimeout     = errors.New("timed out waiting for station reply")
	ErrTransportClosed = errors.New("transport closed while call pending")
)

// CallError is a station's CALLERROR reply to one of our calls.
type CallError struct {
	Code        string
	Description string
	Details     map[string]interface{}
}

func (e *CallError) Error() string {
	return fmt.Sprintf("station call error %s: %s", e.Code, e.Description)
}

// Transport is the write side of one station connection. Writes must be
// safe to call from multiple goroutines.
type Transport interface {
	Send(data []byte) error
	Close() error
}

type callOutcome struct {
	payload json.RawMessage
	err     error
}

type waiterKey struct {
	identity  string
	requestID string
}

// Registry maps station identities to live transports and correlates
// outbound calls with their replies. All map access happens under one
// lock held only across map operations, never across I/O.
type Registry struct {
	mu       sync.Mutex
	clients  map[string]Transport
	counters map[string]uint64
	waiters  map[waiterKey]chan callOutcome

	callTimeout time.Duration
	log         *zap.Logger
}

func NewRegistry(callTimeout time.Duration, log *zap.Logger) *Registry {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Registry{
		clients:     make(map[string]Transport),
		counters:    make(map[string]uint64),
		waiters:     make(map[waiterKey]chan callOutcome),
		callTimeout: callTimeout,
		log:         log,
	}
}

// Register installs the transport for an identity, replacing any prior
// entry. Reconnecting stations simply overwrite their stale handle.
func (r *Registry) Register(identity string, t Transport) {
	r.mu.Lock()
	_, existed := r.clients[identity]
	r.clients[identity] = t
	r.mu.Unlock()

	if !existed {
		telemetry.OCPPConnectedStations.Inc()
	}
	r.log.Info("Charge point registered", zap.String("charge_point_id", identity))
}

// UnregisterIfSame removes the identity's entry only when it still
// points at t, so a late teardown cannot evict a fresh reconnection.
// All pending waiters for the identity are cancelled either way the
// entry was removed.
func (r *Registry) UnregisterIfSame(identity string, t Transport) {
	r.mu.Lock()
	current, ok := r.clients[identity]
	if !ok || current != t {
		r.mu.Unlock()
		return
	}
	delete(r.clients, identity)

	cancelled := 0
	for key, ch := range r.waiters {
		if key.identity != identity {
			continue
		}
		delete(r.waiters, key)
		select {
		case ch <- callOutcome{err: ErrTransportClosed}:
		default:
		}
		cancelled++
	}
	r.mu.Unlock()

	telemetry.OCPPConnectedStations.Dec()
	r.log.Info("Charge point unregistered",
		zap.String("charge_point_id", identity),
		zap.Int("cancelled_calls", cancelled),
	)
}

// Get returns the live transport for an identity, or nil.
func (r *Registry) Get(identity string) Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[identity]
}

// Connected reports whether the identity has a live transport.
func (r *Registry) Connected(identity string) bool {
	return r.Get(identity) != nil
}

// AllocateRequestID mints the next request id for an identity as a
// decimal string, monotonic per station.
func (r *Registry) AllocateRequestID(identity string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters[identity] == 0 {
		r.counters[identity] = requestIDSeed
	}
	r.counters[identity]++
	return strconv.FormatUint(r.counters[identity], 10)
}

func (r *Registry) installWaiter(identity, requestID string) chan callOutcome {
	ch := make(chan callOutcome, 1)
	r.mu.Lock()
	r.waiters[waiterKey{identity, requestID}] = ch
	r.mu.Unlock()
	return ch
}

func (r *Registry) removeWaiter(identity, requestID string) {
	r.mu.Lock()
	delete(r.waiters, waiterKey{identity, requestID})
	r.mu.Unlock()
}

// Deliver completes the waiter for (identity, requestID), if one is
// still pending. Unknown correlations are silently dropped; a reply
// arriving after timeout or cancellation is a no-op.
func (r *Registry) Deliver(identity, requestID string, payload json.RawMessage, callErr *CallError) {
	r.mu.Lock()
	key := waiterKey{identity, requestID}
	ch, ok := r.waiters[key]
	if ok {
		delete(r.waiters, key)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	out := callOutcome{payload: payload}
	if callErr != nil {
		out.err = callErr
	}
	select {
	case ch <- out:
	default:
	}
}

// Call sends [2, id, action, payload] over the identity's transport and
// waits for the matching result. The correlation entry is removed on
// every exit path.
func (r *Registry) Call(ctx context.Context, identity, action string, payload interface{}) (json.RawMessage, error) {
	t := r.Get(identity)
	if t == nil {
		return nil, ErrNoTransport
	}

	requestID := r.AllocateRequestID(identity)
	frame, err := json.Marshal([]interface{}{CallMessage, requestID, action, payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s call: %w", action, err)
	}

	ch := r.installWaiter(identity, requestID)
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "out").Inc()

	if err := t.Send(frame); err != nil {
		r.removeWaiter(identity, requestID)
		return nil, fmt.Errorf("send %s call: %w", action, err)
	}

	timer := time.NewTimer(r.callTimeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.payload, nil
	case <-timer.C:
		r.removeWaiter(identity, requestID)
		return nil, ErrCallTimeout
	case <-ctx.Done():
		r.removeWaiter(identity, requestID)
		return nil, ctx.Err()
	}
}
