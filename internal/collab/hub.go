// Package collab fans the editor's state out to connected surfaces over
// websockets. Presentation surfaces are read-only; editor surfaces may also
// submit worker commands.
package collab

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/mapworker"
	"github.com/mapwright/mapwright/internal/protocol"
	"github.com/mapwright/mapwright/internal/view"
)

var ErrHubStopped = errors.New("collab: hub stopped")

// Source is the read side a room serves refreshes from.
type Source interface {
	Snapshot() *document.Map
	Status() view.Status
}

// CommandSink receives commands from editor surfaces.
type CommandSink interface {
	Send(ctx context.Context, cmd mapworker.Command) error
}

type Room struct {
	hub      *Hub
	id       string
	source   Source
	sink     CommandSink
	seq      atomic.Int64
	clients  map[string]*Client // clientID -> client
	presence *PresenceManager
}

func (r *Room) ID() string { return r.id }

// PublishStatus implements view.Link.
func (r *Room) PublishStatus(s view.Status) {
	msg, err := newMessage(TypePresentationStatus, s)
	if err != nil {
		r.hub.logger.Error("marshal status", "error", err)
		return
	}
	r.broadcast(msg, nil)
}

// PublishSnapshot implements view.Link.
func (r *Room) PublishSnapshot(m *document.Map) {
	msg, err := docSyncMessage(m)
	if err != nil {
		r.hub.logger.Error("marshal snapshot", "error", err)
		return
	}
	r.broadcast(msg, nil)
}

// PublishNotification forwards worker notifications to editor surfaces.
func (r *Room) PublishNotification(n mapworker.Notification) {
	env, err := protocol.EncodeNotification(n)
	if err != nil {
		r.hub.logger.Error("encode notification", "type", n.NotificationType(), "error", err)
		return
	}
	msg := &Message{Type: TypeEditorNotification, Payload: env}
	r.broadcast(msg, func(c *Client) bool { return c.Participant.Editor })
}

func (r *Room) broadcast(msg *Message, include func(*Client) bool) {
	msg.Room = r.id
	msg.Seq = r.seq.Add(1)
	for _, c := range r.hub.roomClients(r.id, "") {
		if include == nil || include(c) {
			c.Send(msg)
		}
	}
}

func docSyncMessage(m *document.Map) (*Message, error) {
	data, err := document.Encode(m)
	if err != nil {
		return nil, err
	}
	return &Message{Type: TypeDocSync, Payload: data}, nil
}

type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // roomID -> room
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	origins    []string
	logger     *slog.Logger
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOriginPatterns lists the browser origins allowed to connect.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddRoom creates a room served by source. sink may be nil, in which case
// every surface in the room is read-only.
func (h *Hub) AddRoom(id string, source Source, sink CommandSink) *Room {
	r := &Room{
		hub:      h,
		id:       id,
		source:   source,
		sink:     sink,
		clients:  make(map[string]*Client),
		presence: NewPresenceManager(),
	}
	h.mu.Lock()
	h.rooms[id] = r
	h.mu.Unlock()
	return r
}

func (h *Hub) room(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// Run serves registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, r := range h.rooms {
			for id, c := range r.clients {
				c.close()
				delete(r.clients, id)
			}
		}
	}()
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.Room]
	if !ok {
		h.mu.Unlock()
		client.close()
		h.logger.Warn("client for unknown room", "room", client.Room)
		return
	}
	room.clients[client.ClientID] = client
	room.presence.Add(client.ClientID, client.Participant)
	h.mu.Unlock()

	if msg, err := newMessage(TypeWelcome, WelcomePayload{
		ClientID:    client.ClientID,
		Room:        room.id,
		Participant: client.Participant,
	}); err == nil {
		client.Send(msg)
	}

	// Send current presence state and document to the new client
	if stateMsg := room.presence.StateMessage(); stateMsg != nil {
		client.Send(stateMsg)
	}
	h.sendRefresh(room, client)

	joinMsg, err := newMessage(TypePresenceJoin, PresenceJoinPayload{Participant: client.Participant})
	if err == nil {
		joinMsg.ViewerID = client.Participant.ID
		h.broadcastToRoom(room.id, joinMsg, client.ClientID)
	}

	h.logger.Info("client joined", "viewer", client.Participant.ID, "room", room.id, "editor", client.Participant.Editor)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.Room]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ClientID)
	client.close()
	room.presence.Remove(client.ClientID)
	stillHere := room.presence.Connected(client.Participant.ID)
	h.mu.Unlock()

	if !stillHere {
		leaveMsg, err := newMessage(TypePresenceLeave, PresenceLeavePayload{ViewerID: client.Participant.ID})
		if err == nil {
			leaveMsg.ViewerID = client.Participant.ID
			h.broadcastToRoom(room.id, leaveMsg, "")
		}
	}

	h.logger.Info("client left", "viewer", client.Participant.ID, "room", room.id)
}

func (h *Hub) handleMessage(ctx context.Context, sender *Client, msg *Message) {
	room, ok := h.room(sender.Room)
	if !ok {
		return
	}
	switch msg.Type {
	case TypePresentationRefresh:
		h.sendRefresh(room, sender)
	case TypeEditorCommand:
		h.handleCommand(ctx, room, sender, msg)
	default:
		h.logger.Warn("unknown message type", "type", msg.Type, "viewer", sender.Participant.ID)
		sendError(sender, "unknown message type "+msg.Type)
	}
}

func (h *Hub) handleCommand(ctx context.Context, room *Room, sender *Client, msg *Message) {
	if !sender.Participant.Editor || room.sink == nil {
		sendError(sender, "read-only surface")
		return
	}
	cmd, err := protocol.DecodeCommand(msg.Payload)
	if err != nil {
		sendError(sender, err.Error())
		return
	}
	if err := room.sink.Send(ctx, cmd); err != nil {
		h.logger.Warn("command rejected", "type", cmd.CommandType(), "error", err)
		sendError(sender, err.Error())
	}
}

// sendRefresh sends the full document and status to one client.
func (h *Hub) sendRefresh(room *Room, client *Client) {
	if room.source == nil {
		return
	}
	if msg, err := docSyncMessage(room.source.Snapshot()); err == nil {
		msg.Room = room.id
		client.Send(msg)
	} else {
		h.logger.Error("marshal snapshot", "error", err)
	}
	if msg, err := newMessage(TypePresentationStatus, room.source.Status()); err == nil {
		msg.Room = room.id
		client.Send(msg)
	}
}

func sendError(c *Client, text string) {
	if msg, err := newMessage(TypeError, ErrorPayload{Message: text}); err == nil {
		c.Send(msg)
	}
}

func (h *Hub) roomClients(roomID, excludeClientID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	return clients
}

func (h *Hub) broadcastToRoom(roomID string, msg *Message, excludeClientID string) {
	for _, c := range h.roomClients(roomID, excludeClientID) {
		c.Send(msg)
	}
}

// Accept upgrades the request and serves p in room until the connection
// closes.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, roomID string, p Participant) {
	if _, ok := h.room(roomID); !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h, conn, p, roomID, uuid.New().String())
	if err := h.Register(client); err != nil {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
