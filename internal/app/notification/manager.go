// Package notification delivers player events to guild text channels and in-process subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/playback"
)

// Sender posts a message to a text channel.
type Sender interface {
	SendMessage(ctx context.Context, channelID snowflake.ID, msg Message) error
}

// Notification is a delivered event as seen by subscribers.
type Notification struct {
	SequenceNo uint64       `json:"sequence_no"`
	GuildID    snowflake.ID `json:"guild_id"`
	ChannelID  snowflake.ID `json:"channel_id"`
	Type       string       `json:"type"`
	Text       string       `json:"text"`
	Time       time.Time    `json:"time"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager formats player events and fans them out to the text channel and subscribers.
type Manager struct {
	sender   Sender
	messages func(code string) string
	timeout  time.Duration

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex

	wg sync.WaitGroup
}

// NewManager creates a new notification manager.
// messages maps message codes to user-facing text.
func NewManager(sender Sender, messages func(code string) string) *Manager {
	return &Manager{
		sender:        sender,
		messages:      messages,
		timeout:       5 * time.Second,
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Notify implements playback.Notifier. It never blocks the caller.
func (m *Manager) Notify(channelID snowflake.ID, e playback.Event) {
	msg := Format(e, m.messages)

	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n := Notification{
		SequenceNo: m.sequenceNo,
		GuildID:    e.GuildID,
		ChannelID:  channelID,
		Type:       e.Type.String(),
		Text:       msg.Text(),
		Time:       time.Now(),
	}
	m.sequenceNoMu.Unlock()

	m.broadcast(n)

	if m.sender == nil || channelID == 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.sender.SendMessage(ctx, channelID, msg); err != nil {
			zlog.Warn().Msgf("notification: send failed: guild_id=%s type=%s err=%v", e.GuildID, n.Type, err)
		}
	}()
}

// broadcast sends n to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (m *Manager) broadcast(n Notification) {
	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		m.wg.Add(1)
		go func(s *subscription) {
			defer m.wg.Done()
			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: subscriber send failed: id=%s err=%v", s.id, err)
				}
			case <-time.After(500 * time.Millisecond):
				zlog.Debug().Msgf("notification: subscriber send timed out: id=%s", s.id)
			}
		}(sub)
	}
}

// Wait blocks until every pending delivery has finished or timed out.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close waits for pending deliveries and removes all subscriptions.
func (m *Manager) Close() {
	m.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
