package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/volthu/csms/internal/observability/telemetry"
)

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"ocpp1.6"},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

// wsTransport wraps one station connection. gorilla/websocket allows a
// single concurrent writer, so replies from the read loop and outbound
// calls from the payment bridge serialize on the mutex.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// Server accepts OCPP 1.6-J WebSocket connections. Stations connect at
// /ocpp/{id}; legacy stations connect at /ocpp and are identified from
// their first BootNotification.
type Server struct {
	registry *Registry
	handlers *Handlers
	log      *zap.Logger

	httpServer *http.Server
}

func NewServer(registry *Registry, handlers *Handlers, log *zap.Logger) *Server {
	return &Server{
		registry: registry,
		handlers: handlers,
		log:      log,
	}
}

// Start blocks serving WebSocket upgrades until Shutdown.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocpp", s.handleWebSocket)
	mux.HandleFunc("/ocpp/", s.handleWebSocket)

	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	s.log.Info("Starting OCPP 1.6 WebSocket server", zap.String("addr", addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/ocpp"), "/")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	transport := &wsTransport{conn: conn}

	if identity != "" {
		s.registry.Register(identity, transport)
	} else {
		s.log.Info("Anonymous OCPP connection, awaiting BootNotification")
	}

	defer func() {
		conn.Close()
		if identity != "" {
			s.registry.UnregisterIfSame(identity, transport)
		}
		s.log.Info("OCPP charge point disconnected", zap.String("charge_point_id", identity))
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Error("WebSocket read error",
					zap.String("charge_point_id", identity),
					zap.Error(err),
				)
			}
			return
		}

		response, err := s.processMessage(r.Context(), &identity, transport, message)
		if err != nil {
			// Malformed frames are logged and skipped; stations are
			// bursty and the connection survives.
			s.log.Warn("Skipping unprocessable OCPP frame",
				zap.String("charge_point_id", identity),
				zap.Error(err),
			)
			continue
		}

		if response != nil {
			if err := transport.Send(response); err != nil {
				s.log.Error("Failed to send OCPP reply",
					zap.String("charge_point_id", identity),
					zap.Error(err),
				)
				return
			}
		}
	}
}

// processMessage parses one frame and routes it. identity is updated in
// place when an anonymous connection identifies itself via
// BootNotification.
//
// Frame shapes: [2, id, action, payload], [3, id, payload],
// [4, id, errorCode, errorDescription, errorDetails].
func (s *Server) processMessage(ctx context.Context, identity *string, transport Transport, raw []byte) ([]byte, error) {
	var msg []json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid OCPP message format: %w", err)
	}
	if len(msg) < 2 {
		return nil, fmt.Errorf("OCPP message too short")
	}

	var msgType int
	if err := json.Unmarshal(msg[0], &msgType); err != nil {
		return nil, fmt.Errorf("invalid message type: %w", err)
	}
	var uniqueID string
	if err := json.Unmarshal(msg[1], &uniqueID); err != nil {
		return nil, fmt.Errorf("invalid unique ID: %w", err)
	}

	switch msgType {
	case CallResultMessage:
		payload := json.RawMessage("{}")
		if len(msg) >= 3 {
			payload = msg[2]
		}
		s.registry.Deliver(*identity, uniqueID, payload, nil)
		return nil, nil

	case CallErrorMessage:
		callErr := &CallError{}
		if len(msg) >= 3 {
			json.Unmarshal(msg[2], &callErr.Code)
		}
		if len(msg) >= 4 {
			json.Unmarshal(msg[3], &callErr.Description)
		}
		if len(msg) >= 5 {
			json.Unmarshal(msg[4], &callErr.Details)
		}
		s.registry.Deliver(*identity, uniqueID, nil, callErr)
		return nil, nil

	case CallMessage:
		if len(msg) < 4 {
			return nil, fmt.Errorf("OCPP call too short")
		}
		var action string
		if err := json.Unmarshal(msg[2], &action); err != nil {
			return nil, fmt.Errorf("invalid action: %w", err)
		}
		return s.handleCall(ctx, identity, transport, uniqueID, action, msg[3])

	default:
		return nil, fmt.Errorf("unsupported message type %d", msgType)
	}
}

func (s *Server) handleCall(ctx context.Context, identity *string, transport Transport, uniqueID, action string, payload json.RawMessage) ([]byte, error) {
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "in").Inc()

	// Anonymous connections identify themselves through the serial in
	// their BootNotification.
	if *identity == "" && action == "BootNotification" {
		if extracted := ExtractChargePointID(payload); extracted != "" {
			*identity = extracted
			s.registry.Register(extracted, transport)
		}
	}

	if *identity == "" {
		s.log.Warn("Dropping call from unidentified connection", zap.String("action", action))
		return json.Marshal([]interface{}{CallResultMessage, uniqueID, map[string]interface{}{}})
	}

	result, err := s.handlers.HandleMessage(ctx, *identity, action, payload)
	if err != nil {
		// Domain failures never reach the station; an empty ack keeps
		// it from flapping.
		s.log.Error("OCPP handler failed",
			zap.String("charge_point_id", *identity),
			zap.String("action", action),
			zap.Error(err),
		)
		result = map[string]interface{}{}
	}

	return json.Marshal([]interface{}{CallResultMessage, uniqueID, result})
}
