package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventDocumentChanged = "document-change"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceBackend        = "notenest-documents"
)

// RealtimeMessage announces a change of one stored document.
type RealtimeMessage struct {
	DocumentID string
	EventType  string
	Revision   int64
	Deleted    bool
	Timestamp  time.Time
}

// RealtimeDispatcher fans document changes out to stream subscribers of that document.
// Slow subscribers miss messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a subscriber for documentID until ctx is done or the cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, documentID string) (<-chan RealtimeMessage, func()) {
	if documentID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(documentID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(documentID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to every current subscriber of its document.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.DocumentID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.DocumentID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams currently follow documentID.
func (d *RealtimeDispatcher) SubscriberCount(documentID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[documentID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(documentID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[documentID]; !ok {
		d.subscribers[documentID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[documentID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(documentID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[documentID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, documentID)
		}
	}
	d.mu.Unlock()
}
