package chathub_test

import (
	"accord/backend/internal/aibridge"
	"accord/backend/internal/chathub"
	"accord/backend/internal/models"
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockClient records every event sent to it.
type MockClient struct {
	id       string
	identity models.Identity
	lang     string

	mu       sync.Mutex
	events   []models.OutboundEvent
	closed   bool
	sendErr  error
	closedCh chan struct{}
}

func newMockClient(id string) *MockClient {
	return &MockClient{id: id, lang: "en", closedCh: make(chan struct{})}
}

func newIdentifiedClient(id, userID, name string) *MockClient {
	c := newMockClient(id)
	c.identity = models.Identity{UserID: userID, DisplayName: name}
	return c
}

func (c *MockClient) GetID() string                { return c.id }
func (c *MockClient) GetIdentity() models.Identity { return c.identity }
func (c *MockClient) GetLanguage() string          { return c.lang }
func (c *MockClient) Run()                         {}

func (c *MockClient) Send(evt models.OutboundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return chathub.ErrConnectionClosed
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClient) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Events returns a copy of everything received so far.
func (c *MockClient) Events() []models.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.OutboundEvent(nil), c.events...)
}

// Named returns the received events with the given name.
func (c *MockClient) Named(name string) []models.OutboundEvent {
	var out []models.OutboundEvent
	for _, evt := range c.Events() {
		if evt.Event == name {
			out = append(out, evt)
		}
	}
	return out
}

// EventNames returns the names of the received events in order.
func (c *MockClient) EventNames() []string {
	var out []string
	for _, evt := range c.Events() {
		out = append(out, evt.Event)
	}
	return out
}

// memStore is an in-memory storage.Storage with failure injection.
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	messages []models.Message
	receipts map[uint]map[string]bool
	analyses map[string]*models.AnalysisResult

	insertErr  func(msg models.Message) error
	readErr    error
	analyzeErr error
}

func newMemStore() *memStore {
	return &memStore{
		receipts: make(map[uint]map[string]bool),
		analyses: make(map[string]*models.AnalysisResult),
	}
}

func (s *memStore) InsertMessage(_ context.Context, msg models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		if err := s.insertErr(msg); err != nil {
			return nil, err
		}
	}
	s.nextID++
	msg.ID = s.nextID
	msg.Timestamp = time.Now().UTC()
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *memStore) FetchHistory(_ context.Context, chatID string, limit int, order models.HistoryOrder) iter.Seq2[models.Message, error] {
	return func(yield func(models.Message, error) bool) {
		s.mu.Lock()
		var msgs []models.Message
		for _, m := range s.messages {
			if m.ChatID == chatID {
				msgs = append(msgs, m)
			}
		}
		s.mu.Unlock()

		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		if order == models.OrderNewestFirst {
			sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
		}
		for _, m := range msgs {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (s *memStore) RecordRead(_ context.Context, messageID uint, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return s.readErr
	}
	if s.receipts[messageID] == nil {
		s.receipts[messageID] = make(map[string]bool)
	}
	s.receipts[messageID][userID] = true
	return nil
}

func (s *memStore) GetLatestAnalysis(_ context.Context, chatID string) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyses[chatID], nil
}

func (s *memStore) SaveAnalysis(_ context.Context, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analyzeErr != nil {
		return s.analyzeErr
	}
	copied := *result
	s.analyses[result.RoomID] = &copied
	return nil
}

// Messages returns the committed messages of a chat.
func (s *memStore) Messages(chatID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// MockBridge stands in for the AI service.
type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) Ask(ctx context.Context, req aibridge.Request) (*aibridge.Response, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*aibridge.Response)
	return res, args.Error(1)
}

// blockingBridge answers only after release is closed or ctx ends.
type blockingBridge struct {
	release chan struct{}
}

func (b *blockingBridge) Ask(ctx context.Context, req aibridge.Request) (*aibridge.Response, error) {
	select {
	case <-b.release:
		return &aibridge.Response{Answer: "late answer"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recordingTyping captures typing state writes.
type recordingTyping struct {
	mu    sync.Mutex
	state map[string]bool
}

func (r *recordingTyping) SetTyping(_ context.Context, roomID, senderName string, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		r.state = make(map[string]bool)
	}
	r.state[roomID+"/"+senderName] = typing
	return nil
}

func (r *recordingTyping) Get(roomID, senderName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[roomID+"/"+senderName]
}

// stubTranslator prefixes codes with the language.
type stubTranslator struct{}

func (stubTranslator) GetString(lang, key string) string { return lang + ":" + key }
