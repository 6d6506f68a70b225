package collab

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// PresenceManager tracks who is connected to a room, keyed by client.
type PresenceManager struct {
	mu      sync.RWMutex
	clients map[string]Participant // clientID -> participant
}

func NewPresenceManager() *PresenceManager {
	return &PresenceManager{
		clients: make(map[string]Participant),
	}
}

func (pm *PresenceManager) Add(clientID string, p Participant) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.clients[clientID] = p
}

func (pm *PresenceManager) Remove(clientID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.clients, clientID)
}

// GetAll lists participants once each, ordered by display name. A viewer
// with two tabs open is one participant.
func (pm *PresenceManager) GetAll() []Participant {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	seen := make(map[string]bool, len(pm.clients))
	result := make([]Participant, 0, len(pm.clients))
	for _, p := range pm.clients {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b Participant) int {
		if c := strings.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

// Connected reports whether viewerID still has a client in the room.
func (pm *PresenceManager) Connected(viewerID string) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	for _, p := range pm.clients {
		if p.ID == viewerID {
			return true
		}
	}
	return false
}

func (pm *PresenceManager) StateMessage() *Message {
	msg, err := newMessage(TypePresenceState, PresenceStatePayload{Participants: pm.GetAll()})
	if err != nil {
		slog.Error("marshal presence state", "error", err)
		return nil
	}
	return msg
}
