package store

import (
	"sync"
	"time"

	"conversekit/core"
	"conversekit/events/message"
)

// Config holds configuration for the message store.
type Config struct {
	// DeliveryDelay is how long after submission a sent message flips to
	// delivered. Purely cosmetic: it never gates and is never gated by
	// generation. Default: 2s.
	DeliveryDelay time.Duration `json:"delivery_delay"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DeliveryDelay: 2 * time.Second}
}

// MessageStore is the append-only transcript. Messages are never
// reordered; deletion removes by id and never touches an in-flight
// turn's bookkeeping.
type MessageStore struct {
	mu       sync.Mutex
	messages []*core.Message
	index    map[string]*core.Message

	sink   core.EventSink
	config Config
	logger *core.Logger
}

func NewMessageStore(cfg Config, sink core.EventSink, logger *core.Logger) *MessageStore {
	if cfg.DeliveryDelay == 0 {
		cfg.DeliveryDelay = 2 * time.Second
	}
	if sink == nil {
		sink = core.NopSink{}
	}
	return &MessageStore{
		index:  make(map[string]*core.Message),
		sink:   sink,
		config: cfg,
		logger: logger,
	}
}

// AppendSent appends a user message and arms the read-receipt timer.
func (s *MessageStore) AppendSent(text string) string {
	msg := &core.Message{
		ID:        core.NewID(),
		Direction: core.DirectionSent,
		Text:      text,
		Delivery:  core.DeliverySent,
		Animation: core.AnimationComplete,
		SentAt:    time.Now(),
	}
	s.append(msg)
	s.armDeliveryTimer(msg.ID)
	return msg.ID
}

// AppendSentAttachment echoes an attached file into the transcript as
// its own message, after the text message that referenced it.
func (s *MessageStore) AppendSentAttachment(att core.Attachment) string {
	msg := &core.Message{
		ID:         core.NewID(),
		Direction:  core.DirectionSent,
		Attachment: &att,
		Delivery:   core.DeliverySent,
		Animation:  core.AnimationComplete,
		SentAt:     time.Now(),
	}
	s.append(msg)
	s.armDeliveryTimer(msg.ID)
	return msg.ID
}

// AppendReceived appends an assistant message whose text will be
// revealed incrementally. It starts with empty content and a pending
// animation.
func (s *MessageStore) AppendReceived() string {
	msg := &core.Message{
		ID:        core.NewID(),
		Direction: core.DirectionReceived,
		Animation: core.AnimationPending,
		SentAt:    time.Now(),
	}
	s.append(msg)
	return msg.ID
}

// AppendNotice appends a complete assistant-style message in one step —
// system notices, apologies and the stopped-by-user marker.
func (s *MessageStore) AppendNotice(text string) string {
	msg := &core.Message{
		ID:        core.NewID(),
		Direction: core.DirectionReceived,
		Text:      text,
		Animation: core.AnimationComplete,
		SentAt:    time.Now(),
	}
	s.append(msg)
	return msg.ID
}

// AppendReceivedImage appends a generated-image message.
func (s *MessageStore) AppendReceivedImage(url string) string {
	msg := &core.Message{
		ID:        core.NewID(),
		Direction: core.DirectionReceived,
		ImageURL:  url,
		Animation: core.AnimationComplete,
		SentAt:    time.Now(),
	}
	s.append(msg)
	return msg.ID
}

// Reveal appends one animation increment to a received message. The
// first increment moves the animation from pending to animating.
// Increments after the animation completed are dropped: the state only
// moves forward.
func (s *MessageStore) Reveal(id, chunk string) bool {
	s.mu.Lock()
	msg, ok := s.index[id]
	if !ok || msg.Animation == core.AnimationComplete {
		s.mu.Unlock()
		return false
	}
	msg.Animation = core.AnimationAnimating
	msg.Text += chunk
	s.mu.Unlock()

	s.sink.Publish(core.NewEventPacket(&message.RevealEvent{
		MessageID: id,
		Chunk:     chunk,
	}, "MessageStore"))
	return true
}

// CompleteAnimation finalizes a received message with whatever content
// has been revealed so far. Safe to call more than once.
func (s *MessageStore) CompleteAnimation(id string) {
	s.mu.Lock()
	msg, ok := s.index[id]
	if !ok || msg.Animation == core.AnimationComplete {
		s.mu.Unlock()
		return
	}
	msg.Animation = core.AnimationComplete
	s.mu.Unlock()

	s.sink.Publish(core.NewEventPacket(&message.AnimationCompleteEvent{
		MessageID: id,
	}, "MessageStore"))
}

// Delete removes messages by id. forEveryone restricts the operation to
// sent messages, mirroring the delete-for-everyone UI rule.
func (s *MessageStore) Delete(ids []string, forEveryone bool) []string {
	s.mu.Lock()
	var removed []string
	keep := s.messages[:0]
	toDelete := make(map[string]bool, len(ids))
	for _, id := range ids {
		toDelete[id] = true
	}
	for _, msg := range s.messages {
		if toDelete[msg.ID] && (!forEveryone || msg.Direction == core.DirectionSent) {
			delete(s.index, msg.ID)
			removed = append(removed, msg.ID)
			continue
		}
		keep = append(keep, msg)
	}
	s.messages = keep
	s.mu.Unlock()

	if len(removed) > 0 {
		s.sink.Publish(core.NewEventPacket(&message.DeletedEvent{
			MessageIDs:  removed,
			ForEveryone: forEveryone,
		}, "MessageStore"))
	}
	return removed
}

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(id string) (core.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.index[id]
	if !ok {
		return core.Message{}, false
	}
	return *msg, true
}

// Messages returns a snapshot of the transcript in append order.
func (s *MessageStore) Messages() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = *msg
	}
	return out
}

// Reset clears the transcript for an explicit "new conversation".
func (s *MessageStore) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.index = make(map[string]*core.Message)
	s.mu.Unlock()
}

func (s *MessageStore) append(msg *core.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.index[msg.ID] = msg
	snapshot := *msg
	s.mu.Unlock()

	s.sink.Publish(core.NewEventPacket(&message.AppendedEvent{
		Message: snapshot,
	}, "MessageStore"))
}

func (s *MessageStore) armDeliveryTimer(id string) {
	time.AfterFunc(s.config.DeliveryDelay, func() {
		s.mu.Lock()
		msg, ok := s.index[id]
		if !ok || msg.Delivery == core.DeliveryDelivered {
			s.mu.Unlock()
			return
		}
		msg.Delivery = core.DeliveryDelivered
		s.mu.Unlock()

		s.sink.Publish(core.NewEventPacket(&message.DeliveredEvent{
			MessageID: id,
		}, "MessageStore"))
	})
}
