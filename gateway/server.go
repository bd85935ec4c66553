package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/fieldops/stream"
)

// Server is the FWP server that handles WebSocket and HTTP RPC
// connections. It bridges clients to the coordinator through the
// handler and fans broker events out to subscribed connections.
type Server struct {
	broker       *stream.Broker
	handler      *Handler
	auth         Authenticator
	defaultCodec Codec
	conns        *ConnectionManager
	logger       *slog.Logger
	basePath     string
}

// NewServer creates a new FWP server.
func NewServer(broker *stream.Broker, handler *Handler, opts ...Option) *Server {
	s := &Server{
		broker:       broker,
		handler:      handler,
		defaultCodec: &JSONCodec{},
		conns:        NewConnectionManager(),
		logger:       slog.Default(),
		basePath:     "/fwp",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = &NoopAuthenticator{}
	}
	return s
}

// Broker returns the underlying stream broker.
func (s *Server) Broker() *stream.Broker { return s.broker }

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// BasePath returns the mount path for FWP endpoints.
func (s *Server) BasePath() string { return s.basePath }

// ServeHTTP routes FWP endpoints: WebSocket upgrades on the base path
// and one-shot RPC on basePath + "/rpc".
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case s.basePath:
		s.handleUpgrade(w, r)
	case s.basePath + "/rpc":
		s.handleHTTPRPC(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleUpgrade upgrades the HTTP request to a WebSocket and runs the
// frame loop until the peer disconnects.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	go func() {
		defer conn.Close()
		if serveErr := s.serveConn(conn); serveErr != nil {
			s.logger.Debug("websocket session ended", slog.String("error", serveErr.Error()))
		}
	}()
}

// serveConn runs the authenticated frame loop for one WebSocket peer.
func (s *Server) serveConn(conn net.Conn) error {
	connID := generateFrameID()

	// Wait for the auth frame. Auth frames are always JSON (before
	// codec negotiation).
	authData, _, readErr := wsutil.ReadClientData(conn)
	if readErr != nil {
		return fmt.Errorf("gateway: read auth frame: %w", readErr)
	}

	var authFrame Frame
	if err := json.Unmarshal(authData, &authFrame); err != nil {
		s.writeJSON(conn, NewErrorFrame("", ErrCodeBadRequest, "invalid auth frame"))
		return fmt.Errorf("gateway: unmarshal auth frame: %w", err)
	}

	if authFrame.Method != MethodAuth {
		s.writeJSON(conn, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "first frame must be auth"))
		return fmt.Errorf("gateway: expected auth frame, got %q", authFrame.Method)
	}

	var authReq AuthRequest
	if len(authFrame.Data) > 0 {
		if err := json.Unmarshal(authFrame.Data, &authReq); err != nil {
			s.writeJSON(conn, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "invalid auth data"))
			return err
		}
	}

	token := authReq.Token
	if token == "" {
		token = authFrame.Token
	}
	identity, authErr := s.auth.Authenticate(context.Background(), token)
	if authErr != nil {
		s.writeJSON(conn, NewErrorFrame(authFrame.ID, ErrCodeUnauthorized, "authentication failed"))
		return fmt.Errorf("gateway: auth failed: %w", authErr)
	}

	codec := s.defaultCodec
	if authReq.Format != "" {
		codec = GetCodec(authReq.Format)
	}

	fwpConn := NewConnection(connID, identity, codec)
	s.conns.Add(fwpConn)
	defer func() {
		s.broker.RemoveSubscriber(connID)
		s.conns.Remove(connID)
		s.logger.Info("fwp disconnected", slog.String("conn_id", connID))
	}()

	resp, respErr := NewResponseFrame(authFrame.ID, AuthResponse{
		Format:    codec.Name(),
		SessionID: connID,
	})
	if respErr != nil {
		return fmt.Errorf("gateway: marshal auth response: %w", respErr)
	}
	if err := s.writeFrame(conn, codec, resp); err != nil {
		return err
	}

	s.logger.Info("fwp authenticated",
		slog.String("conn_id", connID),
		slog.String("subject", identity.Subject),
		slog.String("codec", codec.Name()),
	)

	// Forward broker events to the WebSocket.
	sub := s.broker.Subscribe(connID)
	go s.forwardEvents(conn, codec, sub)

	return s.frameLoop(conn, codec, fwpConn, sub, identity)
}

// frameLoop reads, authorizes, and dispatches frames until the
// connection closes.
func (s *Server) frameLoop(conn net.Conn, codec Codec, fwpConn *Connection, sub *stream.Subscriber, identity *Identity) error {
	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return nil // Connection closed.
		}

		fwpConn.Touch()

		frame, decErr := codec.Decode(data)
		if decErr != nil {
			s.writeFrameLogged(conn, codec, NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+decErr.Error()))
			continue
		}

		if frame.Type == FramePing {
			pong := &Frame{
				ID:        generateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			}
			s.writeFrameLogged(conn, codec, pong)
			continue
		}

		if frame.Method != "" {
			reqScope := RequiredScope(frame.Method)
			if reqScope != "" && !identity.HasScope(reqScope) {
				s.writeFrameLogged(conn, codec, NewErrorFrame(frame.ID, ErrCodeForbidden, "insufficient permissions"))
				continue
			}
		}

		if frame.Credits > 0 {
			sub.AddCredits(int64(frame.Credits))
			continue
		}

		respFrame := s.handler.Handle(context.Background(), frame, fwpConn)
		if respFrame == nil {
			continue
		}

		// Subscribe/unsubscribe take effect after a successful response.
		if frame.Method == MethodSubscribe && respFrame.Type == FrameResponse {
			var subReq SubscribeRequest
			if json.Unmarshal(frame.Data, &subReq) == nil {
				s.broker.SubscribeTo(fwpConn.ID, subReq.Channel)
				fwpConn.AddSubscription(subReq.Channel)
				if subReq.Credits > 0 {
					sub.AddCredits(int64(subReq.Credits))
				}
			}
		} else if frame.Method == MethodUnsubscribe && respFrame.Type == FrameResponse {
			var unsubReq UnsubscribeRequest
			if json.Unmarshal(frame.Data, &unsubReq) == nil {
				s.broker.Unsubscribe(fwpConn.ID, unsubReq.Channel)
				fwpConn.RemoveSubscription(unsubReq.Channel)
			}
		}

		s.writeFrameLogged(conn, codec, respFrame)
	}
}

// forwardEvents reads from the subscriber channel and writes events to
// the WebSocket connection.
func (s *Server) forwardEvents(conn net.Conn, codec Codec, sub *stream.Subscriber) {
	for evt := range sub.C() {
		evtFrame, err := NewEventFrame(evt.Topic, evt)
		if err != nil {
			continue
		}
		if writeErr := s.writeFrame(conn, codec, evtFrame); writeErr != nil {
			return // Connection gone.
		}
	}
}

// writeFrame encodes and writes a frame: text for JSON, binary for
// msgpack.
func (s *Server) writeFrame(conn net.Conn, codec Codec, frame *Frame) error {
	data, err := codec.Encode(frame)
	if err != nil {
		return err
	}
	if codec.Name() == CodecNameJSON {
		return wsutil.WriteServerText(conn, data)
	}
	return wsutil.WriteServerBinary(conn, data)
}

// writeFrameLogged writes a frame and logs write failures instead of
// tearing down the loop.
func (s *Server) writeFrameLogged(conn net.Conn, codec Codec, frame *Frame) {
	if err := s.writeFrame(conn, codec, frame); err != nil {
		s.logger.Warn("fwp write failed", slog.String("error", err.Error()))
	}
}

// writeJSON is the pre-negotiation write path (auth errors).
func (s *Server) writeJSON(conn net.Conn, frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	//nolint:errcheck // best-effort error response before disconnect
	wsutil.WriteServerText(conn, data)
}

// handleHTTPRPC handles one-shot HTTP RPC requests for simple
// operations.
func (s *Server) handleHTTPRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var frame Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		writeRPCResponse(w, http.StatusBadRequest, NewErrorFrame("", ErrCodeBadRequest, "invalid request body"))
		return
	}

	token := frame.Token
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	identity, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeRPCResponse(w, http.StatusUnauthorized, NewErrorFrame(frame.ID, ErrCodeUnauthorized, "unauthorized"))
		return
	}

	reqScope := RequiredScope(frame.Method)
	if reqScope != "" && !identity.HasScope(reqScope) {
		writeRPCResponse(w, http.StatusForbidden, NewErrorFrame(frame.ID, ErrCodeForbidden, "forbidden"))
		return
	}

	conn := NewConnection("rpc-"+generateFrameID(), identity, &JSONCodec{})

	resp := s.handler.Handle(r.Context(), &frame, conn)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	status := http.StatusOK
	if resp.Type == FrameErr && resp.Error != nil {
		status = resp.Error.Code
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}
	}

	writeRPCResponse(w, status, resp)
}

func writeRPCResponse(w http.ResponseWriter, status int, frame *Frame) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // response write failures are not recoverable
	json.NewEncoder(w).Encode(frame)
}
