package services

import (
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Subscription topics. A subscriber gets the full current result set for
// its topic re-delivered after every matching mutation, mirroring a
// document-store snapshot listener.
func PracticesTopic(groupID uint) string        { return fmt.Sprintf("practices:%d", groupID) }
func DriveRequestsTopic(groupID uint) string    { return fmt.Sprintf("drive_requests:%d", groupID) }
func GroupJoinRequestsTopic(groupID uint) string { return fmt.Sprintf("join_requests:group:%d", groupID) }
func UserJoinRequestsTopic(userID uint) string  { return fmt.Sprintf("join_requests:user:%d", userID) }

// SubscriptionMessage is the wire frame pushed to subscribers.
type SubscriptionMessage struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
}

// SubscriptionHub tracks active WebSocket subscribers per topic.
//
// Publishing never blocks the triggering write: a subscriber whose
// connection is gone is dropped and the mutation still completes.
type SubscriptionHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*websocket.Conn]bool
}

func NewSubscriptionHub() *SubscriptionHub {
	return &SubscriptionHub{subscribers: make(map[string]map[*websocket.Conn]bool)}
}

// Hub is the process-wide hub, shared by all routes.
var Hub = NewSubscriptionHub()

func (h *SubscriptionHub) Subscribe(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[topic] == nil {
		h.subscribers[topic] = make(map[*websocket.Conn]bool)
	}
	h.subscribers[topic][conn] = true
}

func (h *SubscriptionHub) Unsubscribe(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[topic], conn)
	if len(h.subscribers[topic]) == 0 {
		delete(h.subscribers, topic)
	}
}

// Publish sends the current result set for a topic to every subscriber.
// Dead connections are closed and removed.
func (h *SubscriptionHub) Publish(topic string, data interface{}) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subscribers[topic]))
	for conn := range h.subscribers[topic] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	msg := SubscriptionMessage{Topic: topic, Data: data}
	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("subscriber write failed on %s, dropping: %v", topic, err)
			conn.Close()
			h.Unsubscribe(topic, conn)
		}
	}
}

// SubscriberCount reports active subscriber connections for a topic.
func (h *SubscriptionHub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
