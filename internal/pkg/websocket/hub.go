package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/classsetup/internal/app/services"
)

// EventClassSetupChanged is the only event type pushed to subscribers.
const EventClassSetupChanged = "class_setup_changed"

// Hub maintains the set of active subscribers and fans committed class setup
// changes out to everyone watching the affected offering.
type Hub struct {
	// Registered subscribers organized by offering ID
	subscribers map[int64]map[*Subscriber]bool

	// Committed changes waiting to be fanned out
	broadcast chan *ChangeEvent

	// Register requests from the subscribers
	register chan *Subscriber

	// Unregister requests from subscribers
	unregister chan *Subscriber

	// Mutex for concurrent access to subscribers map
	mu sync.RWMutex

	// Closed once Run returns
	done chan struct{}

	listenersMu sync.RWMutex
	listeners   []chan *ChangeEvent

	logger zerolog.Logger
}

// ChangeEvent is the message sent over the websocket after a commit.
type ChangeEvent struct {
	Type            string    `json:"type"`
	TxID            string    `json:"txId"`
	OfferingID      int64     `json:"offeringId"`
	ConfigurationID int64     `json:"configurationId"`
	ManagerID       int64     `json:"managerId"`
	Created         []int64   `json:"created"`
	Updated         []int64   `json:"updated"`
	Deleted         []int64   `json:"deleted"`
	SubpartsReowned []int64   `json:"subpartsReowned"`
	ConfigChanged   bool      `json:"configChanged"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewChangeEvent builds the wire event for a committed transaction.
func NewChangeEvent(offeringID int64, summary services.TransactionSummary) *ChangeEvent {
	return &ChangeEvent{
		Type:            EventClassSetupChanged,
		TxID:            summary.TxID,
		OfferingID:      offeringID,
		ConfigurationID: summary.ConfigurationID,
		ManagerID:       summary.Actor.ManagerID,
		Created:         summary.CreatedIDs,
		Updated:         summary.UpdatedIDs,
		Deleted:         summary.DeletedIDs,
		SubpartsReowned: summary.ReownedSubparts,
		ConfigChanged:   summary.ConfigChanged,
		Timestamp:       summary.Timestamp,
	}
}

// NewHub creates a new Hub instance
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:   make(chan *ChangeEvent, 64),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		subscribers: make(map[int64]map[*Subscriber]bool),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run handles registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case sub := <-h.register:
			h.registerSubscriber(sub)

		case sub := <-h.unregister:
			h.unregisterSubscriber(sub)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// PublishOfferingChange queues a committed change for delivery. It never
// blocks the caller; when the queue is full the event is dropped.
func (h *Hub) PublishOfferingChange(offeringID int64, summary services.TransactionSummary) {
	select {
	case h.broadcast <- NewChangeEvent(offeringID, summary):
	default:
		h.logger.Warn().
			Int64("offeringID", offeringID).
			Str("txID", summary.TxID).
			Msg("Change feed queue full, dropping event")
	}
}

func (h *Hub) registerSubscriber(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	offeringID := sub.offeringID
	if _, ok := h.subscribers[offeringID]; !ok {
		h.subscribers[offeringID] = make(map[*Subscriber]bool)
	}
	h.subscribers[offeringID][sub] = true

	h.logger.Info().
		Int64("offeringID", offeringID).
		Int64("managerID", sub.managerID).
		Msg("Change feed subscriber registered")
}

func (h *Hub) unregisterSubscriber(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// removeLocked drops sub; h.mu must be held for writing.
func (h *Hub) removeLocked(sub *Subscriber) {
	offeringID := sub.offeringID
	subs, ok := h.subscribers[offeringID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.subscribers, offeringID)
	}

	h.logger.Info().
		Int64("offeringID", offeringID).
		Int64("managerID", sub.managerID).
		Msg("Change feed subscriber unregistered")
}

func (h *Hub) broadcastEvent(event *ChangeEvent) {
	h.notifyListeners(event)

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().
			Err(err).
			Int64("offeringID", event.OfferingID).
			Msg("Failed to marshal change event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Subscriber
	for sub := range h.subscribers[event.OfferingID] {
		select {
		case sub.send <- data:
		default:
			slow = append(slow, sub)
		}
	}
	// Subscribers that cannot keep up are disconnected
	for _, sub := range slow {
		h.removeLocked(sub)
	}

	h.logger.Debug().
		Int64("offeringID", event.OfferingID).
		Int("subscribers", len(h.subscribers[event.OfferingID])).
		Msg("Change event broadcast")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.subscribers {
		for sub := range subs {
			h.removeLocked(sub)
		}
	}
}

func (h *Hub) notifyListeners(event *ChangeEvent) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()

	for _, listener := range h.listeners {
		select {
		case listener <- event:
		default:
			h.logger.Warn().Msg("Skipped slow change listener")
		}
	}
}

// SubscriberCount returns the number of connected subscribers for an offering
func (h *Hub) SubscriberCount(offeringID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[offeringID])
}

// AddListener registers a channel to receive every broadcast event.
func (h *Hub) AddListener(listener chan *ChangeEvent) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, listener)
}

// RemoveListener removes a listener from the hub
func (h *Hub) RemoveListener(listener chan *ChangeEvent) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()

	for i, l := range h.listeners {
		if l == listener {
			h.listeners[i] = h.listeners[len(h.listeners)-1]
			h.listeners = h.listeners[:len(h.listeners)-1]
			break
		}
	}
}
