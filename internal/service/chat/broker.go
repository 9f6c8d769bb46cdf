package chat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/metrics"
	"github.com/zhouzirui/chatbot/internal/model/chat"
)

type subscriber struct {
	ch      chan chat.Message
	closing bool
}

// broker fans appended messages out to per-session subscribers. Delivery
// never blocks: a subscriber whose buffer is full misses the message.
type broker struct {
	sync.Mutex
	nextID  int
	buffer  int
	subs    map[string]map[int]*subscriber
	log     *zap.Logger
	metrics *metrics.Metrics
}

func newBroker(buffer int, log *zap.Logger, m *metrics.Metrics) *broker {
	return &broker{
		buffer:  buffer,
		subs:    make(map[string]map[int]*subscriber),
		log:     log,
		metrics: m,
	}
}

func (b *broker) subscribe(sessionID string) (<-chan chat.Message, func()) {
	b.Lock()
	defer b.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{ch: make(chan chat.Message, b.buffer)}

	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]*subscriber)
	}
	b.subs[sessionID][id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(sessionID, id) })
	}
	return sub.ch, cancel
}

func (b *broker) unsubscribe(sessionID string, id int) {
	b.Lock()
	defer b.Unlock()

	subs := b.subs[sessionID]
	sub, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.subs, sessionID)
	}
	b.closeLocked(sub)
}

func (b *broker) publish(msg chat.Message) {
	b.Lock()
	defer b.Unlock()

	for id, sub := range b.subs[msg.SessionID] {
		if sub.closing {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			if b.metrics != nil {
				b.metrics.DroppedDeliveries.Inc()
			}
			b.log.Warn("subscriber buffer full, dropping message",
				zap.String("session", msg.SessionID),
				zap.Int("subscriber", id),
				zap.Int64("id", msg.ID),
			)
		}
	}
}

func (b *broker) closeSession(sessionID string) {
	b.Lock()
	defer b.Unlock()

	for _, sub := range b.subs[sessionID] {
		b.closeLocked(sub)
	}
	delete(b.subs, sessionID)
}

func (b *broker) closeLocked(sub *subscriber) {
	if !sub.closing {
		sub.closing = true
		close(sub.ch)
	}
}
