package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTickReceived     EventType = "TICK_RECEIVED"
	EventSignalGenerated  EventType = "SIGNAL_GENERATED"
	EventTradeOpened      EventType = "TRADE_OPENED"
	EventTradeSettled     EventType = "TRADE_SETTLED"
	EventSessionActivated EventType = "SESSION_ACTIVATED"
	EventSessionStopped   EventType = "SESSION_STOPPED"
	EventMarketDataDown   EventType = "MARKET_DATA_DOWN"
	EventMarketDataUp     EventType = "MARKET_DATA_UP"
	EventBotStarted       EventType = "BOT_STARTED"
	EventBotStopped       EventType = "BOT_STOPPED"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. The copy-trading
// fanout and external notifiers attach here; the core never calls them
// directly.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // never block the publisher
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeSettled publishes a settled-contract event. This is the hook
// the copy-trading fanout consumes.
func (eb *EventBus) PublishTradeSettled(userID string, tradeID int64, symbol, side, status string, stake, profit float64) {
	eb.Publish(Event{
		Type: EventTradeSettled,
		Data: map[string]interface{}{
			"user_id":  userID,
			"trade_id": tradeID,
			"symbol":   symbol,
			"side":     side,
			"status":   status,
			"stake":    stake,
			"profit":   profit,
		},
	})
}

// PublishSessionStopped publishes a session terminal-status event
func (eb *EventBus) PublishSessionStopped(userID string, sessionID int64, status, reason string) {
	eb.Publish(Event{
		Type: EventSessionStopped,
		Data: map[string]interface{}{
			"user_id":    userID,
			"session_id": sessionID,
			"status":     status,
			"reason":     reason,
		},
	})
}

// PublishSignal publishes a generated signal event
func (eb *EventBus) PublishSignal(userID, symbol, direction string, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"user_id":    userID,
			"symbol":     symbol,
			"direction":  direction,
			"confidence": confidence,
		},
	})
}
