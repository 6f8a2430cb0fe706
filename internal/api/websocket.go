package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/landforge/server/internal/auth"
	"github.com/landforge/server/internal/compression"
	"github.com/landforge/server/internal/performance"
	"github.com/landforge/server/internal/reconcile"
	"github.com/landforge/server/internal/record"
	"github.com/landforge/server/internal/streaming"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "landforge-v1"

	// Default ping interval (30 seconds)
	defaultPingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second
)

// WebSocketConnection represents an active WebSocket connection
type WebSocketConnection struct {
	id       string
	conn     *websocket.Conn
	userID   int64
	username string
	role     string
	version  string
	send     chan []byte
	hub      *WebSocketHub
}

// WebSocketHub manages all active WebSocket connections, keyed by
// connection id so tile-scoped broadcasts can address exact subscribers.
type WebSocketHub struct {
	connections map[string]*WebSocketConnection
	register    chan *WebSocketConnection
	unregister  chan *WebSocketConnection
	mu          sync.RWMutex
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		connections: make(map[string]*WebSocketConnection),
		register:    make(chan *WebSocketConnection),
		unregister:  make(chan *WebSocketConnection),
	}
}

// Run starts the hub's main loop
func (h *WebSocketHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.id] = conn
			h.mu.Unlock()
			log.Printf("WebSocket connection registered: conn=%s, user_id=%d, version=%s", conn.id, conn.userID, conn.version)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.id]; ok {
				delete(h.connections, conn.id)
				close(conn.send)
			}
			h.mu.Unlock()
			log.Printf("WebSocket connection unregistered: conn=%s, user_id=%d", conn.id, conn.userID)
		}
	}
}

// SendTo queues a message for a set of connection ids. Connections with a
// full send buffer are dropped.
func (h *WebSocketHub) SendTo(connIDs []string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range connIDs {
		conn, ok := h.connections[id]
		if !ok {
			continue
		}
		select {
		case conn.send <- message:
		default:
			close(conn.send)
			delete(h.connections, id)
		}
	}
}

// WebSocketHandlers handles WebSocket connections
type WebSocketHandlers struct {
	hub           *WebSocketHub
	jwtService    *auth.JWTService
	store         record.Store
	reconciler    *reconcile.Reconciler
	claims        ClaimGate
	streamManager *streaming.Manager
	profiler      *performance.Profiler
	format        string
	upgrader      websocket.Upgrader
}

// NewWebSocketHandlers creates a new WebSocket handlers instance
func NewWebSocketHandlers(deps *Deps) *WebSocketHandlers {
	var claims ClaimGate
	if deps.Claims != nil {
		claims = deps.Claims
	}

	return &WebSocketHandlers{
		hub:           NewWebSocketHub(),
		jwtService:    auth.NewJWTService(deps.Config),
		store:         deps.Store,
		reconciler:    deps.Reconciler,
		claims:        claims,
		streamManager: deps.Streaming,
		profiler:      deps.Profiler,
		format:        deps.Config.Compression.Format,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header.
				return origin == "" || originAllowed(origin)
			},
		},
	}
}

// GetHub returns the WebSocket hub (for use in other packages)
func (h *WebSocketHandlers) GetHub() *WebSocketHub {
	return h.hub
}

// SetupWebSocketRoutes registers the sync endpoint and starts the hub loop.
func SetupWebSocketRoutes(mux *http.ServeMux, deps *Deps) *WebSocketHandlers {
	handlers := NewWebSocketHandlers(deps)
	go handlers.hub.Run()
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
	return handlers
}

// HandleWebSocket handles WebSocket connection upgrades
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, err := h.extractToken(r)
	if err != nil {
		log.Printf("WebSocket authentication failed: %v", err)
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(token)
	if err != nil {
		log.Printf("WebSocket token validation failed: %v", err)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	requestedVersions := r.Header.Get("Sec-WebSocket-Protocol")
	selectedVersion := h.negotiateVersion(requestedVersions)
	if selectedVersion == "" {
		log.Printf("WebSocket version negotiation failed: requested=%s", requestedVersions)
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	responseHeaders := http.Header{}
	responseHeaders.Set("Sec-WebSocket-Protocol", selectedVersion)

	conn, err := h.upgrader.Upgrade(w, r, responseHeaders)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := &WebSocketConnection{
		id:       generateConnID(),
		conn:     conn,
		userID:   claims.UserID,
		username: claims.Username,
		role:     claims.Role,
		version:  selectedVersion,
		send:     make(chan []byte, 256),
		hub:      h.hub,
	}

	h.hub.register <- wsConn

	go wsConn.writePump()
	go wsConn.readPump(h)
}

func generateConnID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("conn-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// extractToken extracts JWT token from request (query param or header)
func (h *WebSocketHandlers) extractToken(r *http.Request) (string, error) {
	// Query parameter first (common for WebSocket)
	token := r.URL.Query().Get("token")
	if token != "" {
		return token, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
	}

	return "", fmt.Errorf("missing authentication token")
}

// negotiateVersion selects the highest supported protocol version
func (h *WebSocketHandlers) negotiateVersion(requested string) string {
	if requested == "" {
		return ProtocolVersion1
	}

	requestedVersions := strings.Split(requested, ",")
	for i := range requestedVersions {
		requestedVersions[i] = strings.TrimSpace(requestedVersions[i])
	}

	supportedVersions := []string{ProtocolVersion1}

	for _, supported := range supportedVersions {
		for _, req := range requestedVersions {
			if req == supported {
				return supported
			}
		}
	}

	return ""
}

// readPump handles incoming messages from the WebSocket connection
func (c *WebSocketConnection) readPump(handlers *WebSocketHandlers) {
	defer func() {
		if handlers.streamManager != nil {
			handlers.streamManager.Unsubscribe(c.id)
		}
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			log.Printf("Failed to close connection: %v", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("invalid_message", "Invalid message format", "InvalidMessageFormat")
			continue
		}

		handlers.handleMessage(c, &msg)
	}
}

// writePump handles outgoing messages to the WebSocket connection
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			log.Printf("Failed to close connection: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("Failed to set write deadline: %v", err)
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					log.Printf("Failed to write close message: %v", err)
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("Failed to set write deadline for ping: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError sends an error message to the client
func (c *WebSocketConnection) sendError(id, errorMsg, code string) {
	errorResp := WebSocketError{
		Type:    "error",
		ID:      id,
		Error:   errorMsg,
		Message: errorMsg,
		Code:    code,
	}

	messageBytes, err := json.Marshal(errorResp)
	if err != nil {
		log.Printf("Failed to marshal error message: %v", err)
		return
	}

	select {
	case c.send <- messageBytes:
	default:
		log.Printf("Failed to send error message: channel full")
	}
}

// sendMessage marshals a payload into the message envelope and queues it.
func (c *WebSocketConnection) sendMessage(msgType, id string, payload interface{}) {
	response := WebSocketMessage{Type: msgType, ID: id}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("Failed to marshal %s payload: %v", msgType, err)
			return
		}
		response.Data = data
	}

	responseBytes, err := json.Marshal(response)
	if err != nil {
		log.Printf("Failed to marshal %s response: %v", msgType, err)
		return
	}

	select {
	case c.send <- responseBytes:
	default:
		log.Printf("Failed to send %s: channel full", msgType)
	}
}

// handleMessage routes messages to appropriate handlers
func (h *WebSocketHandlers) handleMessage(conn *WebSocketConnection, msg *WebSocketMessage) {
	switch msg.Type {
	case "ping":
		conn.sendMessage("pong", msg.ID, nil)
	case "tile_subscribe":
		h.handleTileSubscribe(conn, msg)
	case "pose_update":
		h.handlePoseUpdate(conn, msg)
	case "landblock_save":
		h.handleLandblockSave(conn, msg)
	default:
		conn.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
	}
}

// tileSubscribeData is the payload of a tile_subscribe message.
type tileSubscribeData struct {
	Pose   streaming.EditorPose `json:"pose"`
	Radius int                  `json:"radius"`
}

// tileListPayload carries a set of tile ids (hex) in an ack or unload.
type tileListPayload struct {
	Tiles []string `json:"tiles"`
}

func tileList(tiles []uint16) tileListPayload {
	out := tileListPayload{Tiles: make([]string, 0, len(tiles))}
	for _, t := range tiles {
		out.Tiles = append(out.Tiles, formatTile(t))
	}
	return out
}

// tileDataPayload is one tile's metadata record, binary-encoded and
// compressed for transmission.
type tileDataPayload struct {
	Tile    string                         `json:"tile"`
	Payload *compression.CompressedPayload `json:"payload"`
}

// handleTileSubscribe registers the connection's tile window and pushes the
// initial tile data.
func (h *WebSocketHandlers) handleTileSubscribe(conn *WebSocketConnection, msg *WebSocketMessage) {
	if h.streamManager == nil {
		conn.sendError(msg.ID, "Streaming manager unavailable", "InternalError")
		return
	}

	var req tileSubscribeData
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid tile_subscribe payload", "InvalidMessageFormat")
		return
	}

	tiles, err := h.streamManager.Subscribe(conn.id, conn.userID, req.Pose, req.Radius)
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}

	log.Printf("WebSocket: conn=%s subscribed to %d tiles (radius %d)", conn.id, len(tiles), req.Radius)
	conn.sendMessage("subscribe_ack", msg.ID, tileList(tiles))

	go h.pushTiles(conn, tiles)
}

// handlePoseUpdate recomputes the window and pushes the delta.
func (h *WebSocketHandlers) handlePoseUpdate(conn *WebSocketConnection, msg *WebSocketMessage) {
	if h.streamManager == nil {
		conn.sendError(msg.ID, "Streaming manager unavailable", "InternalError")
		return
	}

	var pose struct {
		Pose streaming.EditorPose `json:"pose"`
	}
	if err := json.Unmarshal(msg.Data, &pose); err != nil {
		conn.sendError(msg.ID, "Invalid pose_update payload", "InvalidMessageFormat")
		return
	}

	delta, err := h.streamManager.UpdatePose(conn.id, pose.Pose)
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}

	conn.sendMessage("pose_ack", msg.ID, struct {
		Added   []string `json:"added"`
		Removed []string `json:"removed"`
	}{
		Added:   tileList(delta.AddedTiles).Tiles,
		Removed: tileList(delta.RemovedTiles).Tiles,
	})

	if len(delta.RemovedTiles) > 0 {
		conn.sendMessage("tile_unload", "", tileList(delta.RemovedTiles))
	}
	if len(delta.AddedTiles) > 0 {
		go h.pushTiles(conn, delta.AddedTiles)
	}
}

// pushTiles sends a tile_data message for every tile in the set that has a
// metadata record. Tiles without one are silently skipped; the client treats
// absence as an empty tile.
func (h *WebSocketHandlers) pushTiles(conn *WebSocketConnection, tiles []uint16) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WebSocket: recovered while pushing tiles to conn=%s: %v", conn.id, r)
		}
	}()

	for _, tile := range tiles {
		payload, err := h.encodeTile(tile)
		if err != nil {
			continue
		}
		conn.sendMessage("tile_data", "", payload)
	}
}

// encodeTile loads, binary-encodes, and compresses one tile's metadata
// record.
func (h *WebSocketHandlers) encodeTile(tile uint16) (*tileDataPayload, error) {
	info, err := h.store.LandblockInfo(tile)
	if err != nil {
		return nil, err
	}
	raw, err := record.EncodeLandblockInfo(info)
	if err != nil {
		log.Printf("WebSocket: failed to encode tile 0x%04X: %v", tile, err)
		return nil, err
	}
	compressed, err := compression.Compress(raw, h.format)
	if err != nil {
		log.Printf("WebSocket: failed to compress tile 0x%04X: %v", tile, err)
		return nil, err
	}
	return &tileDataPayload{Tile: formatTile(tile), Payload: compressed}, nil
}

// landblockSaveData is the payload of a landblock_save message.
type landblockSaveData struct {
	Tile    string             `json:"tile"`
	Objects []staticObjectJSON `json:"objects"`
}

// saveResultPayload reports the outcome of a landblock_save to the sender.
type saveResultPayload struct {
	Tile    string           `json:"tile"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
	Stats   *reconcile.Stats `json:"stats,omitempty"`
}

// landblockChangedPayload notifies other subscribers of a saved tile.
type landblockChangedPayload struct {
	Tile    string          `json:"tile"`
	SavedBy string          `json:"saved_by"`
	Stats   reconcile.Stats `json:"stats"`
}

// handleLandblockSave runs the reconciler for an edited object list received
// over the sync channel, answers the sender with save_result, and notifies
// every other subscriber of the tile with landblock_changed plus fresh tile
// data.
func (h *WebSocketHandlers) handleLandblockSave(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req landblockSaveData
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid landblock_save payload", "InvalidMessageFormat")
		return
	}

	tile, err := parseTileID(req.Tile)
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidMessageFormat")
		return
	}

	if h.claims != nil && conn.role != auth.RoleAdmin {
		covered, err := h.claims.ClaimCovering(tile, conn.userID)
		if err != nil {
			log.Printf("WebSocket: claim check for tile 0x%04X failed: %v", tile, err)
			conn.sendError(msg.ID, "Failed to check tile claim", "InternalError")
			return
		}
		if !covered {
			conn.sendMessage("save_result", msg.ID, saveResultPayload{
				Tile:  formatTile(tile),
				Error: "tile is not covered by one of your claims",
			})
			return
		}
	}

	edited := make([]record.StaticObject, 0, len(req.Objects))
	for _, obj := range req.Objects {
		so, err := obj.toStaticObject()
		if err != nil {
			conn.sendError(msg.ID, err.Error(), "InvalidMessageFormat")
			return
		}
		edited = append(edited, so)
	}

	result, err := h.reconciler.ReconcileTile(tile, edited)
	if err != nil {
		log.Printf("WebSocket: reconciliation of tile 0x%04X aborted: %v", tile, err)
		conn.sendMessage("save_result", msg.ID, saveResultPayload{
			Tile:  formatTile(tile),
			Error: err.Error(),
		})
		return
	}

	conn.sendMessage("save_result", msg.ID, saveResultPayload{
		Tile:    formatTile(tile),
		Success: true,
		Stats:   &result.Stats,
	})

	h.notifyTileChanged(conn, tile, result.Stats)
}

// notifyTileChanged broadcasts landblock_changed (and refreshed tile data)
// to every subscriber of the tile except the saving connection.
func (h *WebSocketHandlers) notifyTileChanged(sender *WebSocketConnection, tile uint16, stats reconcile.Stats) {
	if h.streamManager == nil {
		return
	}

	var others []string
	for _, id := range h.streamManager.Subscribers(tile) {
		if id != sender.id {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return
	}

	changed := WebSocketMessage{Type: "landblock_changed"}
	data, err := json.Marshal(landblockChangedPayload{
		Tile:    formatTile(tile),
		SavedBy: sender.username,
		Stats:   stats,
	})
	if err != nil {
		log.Printf("Failed to marshal landblock_changed payload: %v", err)
		return
	}
	changed.Data = data

	messageBytes, err := json.Marshal(changed)
	if err != nil {
		log.Printf("Failed to marshal landblock_changed message: %v", err)
		return
	}
	h.hub.SendTo(others, messageBytes)

	if payload, err := h.encodeTile(tile); err == nil {
		tileMsg := WebSocketMessage{Type: "tile_data"}
		if data, err := json.Marshal(payload); err == nil {
			tileMsg.Data = data
			if messageBytes, err := json.Marshal(tileMsg); err == nil {
				h.hub.SendTo(others, messageBytes)
			}
		}
	}
}
