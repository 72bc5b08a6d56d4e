package chathub

import (
	"accord/backend/internal/aibridge"
	"accord/backend/internal/config"
	"accord/backend/internal/models"
	"accord/backend/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Assistant answers @ai questions and analyzes rooms. analysis.Service is
// the production implementation.
type Assistant interface {
	Answer(ctx context.Context, chatID, question string) (*aibridge.Response, error)
	Analyze(ctx context.Context, chatID string) (*models.AnalysisResult, error)
}

// TypingRecorder stores ephemeral typing state.
type TypingRecorder interface {
	SetTyping(ctx context.Context, roomID, senderName string, typing bool) error
}

// Translator renders error codes in a client's language.
type Translator interface {
	GetString(lang, key string) string
}

// Pipeline turns inbound client events into commits, broadcasts and AI tasks.
type Pipeline struct {
	registry   *Registry
	dispatcher *Dispatcher
	store      storage.Storage
	assistant  Assistant
	log        zerolog.Logger

	typing     TypingRecorder
	translator Translator

	seq *sequencer

	// typists remembers the name each connection typed under, per room, so a
	// disconnect can clear it.
	typistsMu sync.Mutex
	typists   map[string]map[string]string

	// AI and analysis tasks run on taskCtx and are tracked by tasks.
	taskCtx    context.Context
	cancelTask context.CancelFunc
	tasks      sync.WaitGroup
	tasksMu    sync.Mutex
	closing    bool
}

// NewPipeline Constructor
func NewPipeline(registry *Registry, dispatcher *Dispatcher, store storage.Storage, assistant Assistant, log zerolog.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		registry:   registry,
		dispatcher: dispatcher,
		store:      store,
		assistant:  assistant,
		log:        log,
		seq:        newSequencer(config.SequencerStripes),
		typists:    make(map[string]map[string]string),
		taskCtx:    ctx,
		cancelTask: cancel,
	}
}

// SetTypingRecorder enables persistence of typing state.
func (p *Pipeline) SetTypingRecorder(t TypingRecorder) {
	p.typing = t
}

// SetTranslator enables localized error texts.
func (p *Pipeline) SetTranslator(t Translator) {
	p.translator = t
}

// HandleEvent dispatches one inbound event. Failures are reported to c as an
// errorMessage; the returned error is for logging and tests.
func (p *Pipeline) HandleEvent(ctx context.Context, c Client, evt models.InboundEvent) error {
	var (
		roomID string
		err    error
	)

	switch evt.Event {
	case models.EventJoinRoom, models.EventLeaveRoom, models.EventAnalyzeChat:
		var ref models.RoomRef
		if err = decode(evt.Data, &ref); err != nil {
			break
		}
		roomID = ref.RoomID
		switch evt.Event {
		case models.EventJoinRoom:
			err = p.JoinRoom(c, ref.RoomID)
		case models.EventLeaveRoom:
			err = p.LeaveRoom(c, ref.RoomID)
		default:
			err = p.AnalyzeChat(c, ref.RoomID)
		}

	case models.EventSendMessage:
		var payload models.SendMessagePayload
		if err = decode(evt.Data, &payload); err != nil {
			break
		}
		roomID = payload.RoomID
		_, err = p.SendMessage(ctx, c, payload)

	case models.EventTypingStart, models.EventTypingStop:
		var payload models.TypingPayload
		if err = decode(evt.Data, &payload); err != nil {
			break
		}
		roomID = payload.RoomID
		err = p.Typing(ctx, c, payload, evt.Event == models.EventTypingStart)

	case models.EventMessageRead:
		var payload models.MessageReadPayload
		if err = decode(evt.Data, &payload); err != nil {
			break
		}
		roomID = payload.RoomID
		err = p.MarkRead(ctx, c, payload)

	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Event)
	}

	if err != nil {
		p.reportError(c, strings.TrimSpace(roomID), err)
	}
	return err
}

func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// JoinRoom subscribes c to roomID.
func (p *Pipeline) JoinRoom(c Client, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fmt.Errorf("%w: %w: roomId", ErrInvalidPayload, models.ErrMissingField)
	}
	p.registry.Join(c, roomID)
	p.log.Debug().Str("conn_id", c.GetID()).Str("room_id", roomID).Msg("joined room")
	return nil
}

// LeaveRoom unsubscribes c from roomID and clears any typing marker it left.
func (p *Pipeline) LeaveRoom(c Client, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fmt.Errorf("%w: %w: roomId", ErrInvalidPayload, models.ErrMissingField)
	}
	p.registry.Leave(c, roomID)
	p.clearTyping(c, roomID)
	p.log.Debug().Str("conn_id", c.GetID()).Str("room_id", roomID).Msg("left room")
	return nil
}

// SendMessage validates, commits and broadcasts a chat message. A message
// starting with the AI trigger also starts an AI task once the message is
// out. The committed message is returned.
func (p *Pipeline) SendMessage(ctx context.Context, c Client, payload models.SendMessagePayload) (*models.Message, error) {
	payload.Normalize()
	if id := c.GetIdentity(); !id.IsZero() {
		payload.SenderID = id.UserID
		if payload.SenderName == "" {
			payload.SenderName = id.DisplayName
		}
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	question, asksAI := aiQuestion(payload.Text)
	var follow []models.OutboundEvent
	if asksAI {
		follow = append(follow, models.OutboundEvent{
			Event: models.EventAIThinking,
			Data:  models.AIThinkingData{RoomID: payload.RoomID},
		})
	}

	msg, err := p.commitAndBroadcast(ctx, models.Message{
		ChatID:     payload.RoomID,
		SenderID:   payload.SenderID,
		SenderName: payload.SenderName,
		Text:       payload.Text,
	}, payload.PendingID, follow...)
	if err != nil {
		return nil, err
	}

	if asksAI {
		p.startAITask(c, payload.RoomID, question)
	}
	return msg, nil
}

// aiQuestion reports whether text addresses the assistant and returns the
// question that follows the trigger.
func aiQuestion(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len(config.AITrigger) || !strings.EqualFold(trimmed[:len(config.AITrigger)], config.AITrigger) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(config.AITrigger):]), true
}

// commitAndBroadcast stores msg and fans it out, followed by any extra
// events. The room's sequencing lock is held throughout so every member sees
// the room's messages in commit order.
func (p *Pipeline) commitAndBroadcast(ctx context.Context, msg models.Message, pendingID string, follow ...models.OutboundEvent) (*models.Message, error) {
	unlock := p.seq.lock(msg.ChatID)
	defer unlock()

	saved, err := p.store.InsertMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	delivered := p.dispatcher.Broadcast(saved.ChatID, models.OutboundEvent{
		Event: models.EventNewMessage,
		Data:  models.NewMessageData{Message: *saved, PendingID: pendingID},
	}, nil)
	for _, evt := range follow {
		p.dispatcher.Broadcast(saved.ChatID, evt, nil)
	}

	p.log.Debug().
		Str("room_id", saved.ChatID).
		Uint("message_id", saved.ID).
		Int("delivered", delivered).
		Msg("message committed")
	return saved, nil
}

// startAITask answers question in the background. Exactly one of an AI
// message broadcast or an AiUnavailable notice to c follows.
func (p *Pipeline) startAITask(c Client, roomID, question string) {
	if !p.track() {
		p.reportError(c, roomID, fmt.Errorf("%w: shutting down", ErrAIUnavailable))
		return
	}

	go func() {
		defer p.tasks.Done()
		done := false
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Str("room_id", roomID).Msg("ai task panicked")
			}
			if !done {
				p.reportError(c, roomID, fmt.Errorf("%w: ai task aborted", ErrAIUnavailable))
			}
		}()

		resp, err := p.assistant.Answer(p.taskCtx, roomID, question)
		if err != nil {
			p.log.Error().Err(err).Str("room_id", roomID).Msg("ai request failed")
			done = true
			p.reportError(c, roomID, fmt.Errorf("%w: %w", ErrAIUnavailable, err))
			return
		}

		answer := models.Message{
			ChatID:     roomID,
			SenderID:   config.AISenderID,
			SenderName: config.AISenderName,
			Text:       resp.Answer,
		}
		if resp.Attachment != nil {
			answer.FileURL = &resp.Attachment.URL
			answer.FileType = &resp.Attachment.Type
		}

		_, err = p.commitAndBroadcast(p.taskCtx, answer, "")
		done = true
		if err != nil {
			p.log.Error().Err(err).Str("room_id", roomID).Msg("ai answer not saved")
			p.reportError(c, roomID, fmt.Errorf("%w: %w", ErrAIUnavailable, err))
		}
	}()
}

// AnalyzeChat runs the room analysis in the background and reports the
// result to c only.
func (p *Pipeline) AnalyzeChat(c Client, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fmt.Errorf("%w: %w: roomId", ErrInvalidPayload, models.ErrMissingField)
	}
	if !p.track() {
		return fmt.Errorf("%w: shutting down", ErrAnalysisFailed)
	}

	go func() {
		defer p.tasks.Done()
		done := false
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Str("room_id", roomID).Msg("analysis task panicked")
			}
			if !done {
				p.reportError(c, roomID, fmt.Errorf("%w: analysis aborted", ErrAnalysisFailed))
			}
		}()

		result, err := p.assistant.Analyze(p.taskCtx, roomID)
		done = true
		if err != nil {
			p.log.Error().Err(err).Str("room_id", roomID).Msg("analysis failed")
			p.reportError(c, roomID, fmt.Errorf("%w: %w", ErrAnalysisFailed, err))
			return
		}

		p.dispatcher.SendTo(c, models.OutboundEvent{
			Event: models.EventAnalysisComplete,
			Data:  models.AnalysisCompleteData{RoomID: roomID, Analysis: result.AnalysisText},
		})
		p.log.Info().Str("room_id", roomID).Msg("analysis completed")
	}()
	return nil
}

// Typing records a typing marker and tells the rest of the room.
func (p *Pipeline) Typing(ctx context.Context, c Client, payload models.TypingPayload, typing bool) error {
	roomID := strings.TrimSpace(payload.RoomID)
	name := strings.TrimSpace(payload.SenderName)
	if name == "" {
		name = c.GetIdentity().DisplayName
	}
	if roomID == "" || name == "" {
		return fmt.Errorf("%w: %w: roomId and senderName", ErrInvalidPayload, models.ErrMissingField)
	}

	p.typistsMu.Lock()
	rooms, ok := p.typists[c.GetID()]
	if typing {
		if !ok {
			rooms = make(map[string]string)
			p.typists[c.GetID()] = rooms
		}
		rooms[roomID] = name
	} else if ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(p.typists, c.GetID())
		}
	}
	p.typistsMu.Unlock()

	p.setTyping(ctx, c, roomID, name, typing)
	return nil
}

func (p *Pipeline) setTyping(ctx context.Context, sender Client, roomID, name string, typing bool) {
	if p.typing != nil {
		if err := p.typing.SetTyping(ctx, roomID, name, typing); err != nil {
			p.log.Warn().Err(err).Str("room_id", roomID).Msg("typing state not stored")
		}
	}
	p.dispatcher.Broadcast(roomID, models.OutboundEvent{
		Event: models.EventUserTyping,
		Data:  models.UserTypingData{RoomID: roomID, SenderName: name, IsTyping: typing},
	}, sender)
}

// clearTyping stops c's typing marker in roomID, if it has one.
func (p *Pipeline) clearTyping(c Client, roomID string) {
	p.typistsMu.Lock()
	name, ok := p.typists[c.GetID()][roomID]
	if ok {
		delete(p.typists[c.GetID()], roomID)
		if len(p.typists[c.GetID()]) == 0 {
			delete(p.typists, c.GetID())
		}
	}
	p.typistsMu.Unlock()

	if ok {
		p.setTyping(context.Background(), c, roomID, name, false)
	}
}

// MarkRead stores a read receipt and tells the rest of the room.
func (p *Pipeline) MarkRead(ctx context.Context, c Client, payload models.MessageReadPayload) error {
	if id := c.GetIdentity(); !id.IsZero() {
		payload.UserID = id.UserID
	}
	payload.RoomID = strings.TrimSpace(payload.RoomID)
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if err := p.store.RecordRead(ctx, payload.MessageID, payload.UserID); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	p.dispatcher.Broadcast(payload.RoomID, models.OutboundEvent{
		Event: models.EventMessageReadUpdate,
		Data: models.MessageReadUpdateData{
			RoomID:    payload.RoomID,
			MessageID: payload.MessageID,
			UserID:    payload.UserID,
		},
	}, c)
	return nil
}

// Disconnect removes c from every room. Every room it was typing in is told
// it stopped.
func (p *Pipeline) Disconnect(c Client) []string {
	left := p.registry.RemoveConnection(c)

	p.typistsMu.Lock()
	typing := p.typists[c.GetID()]
	delete(p.typists, c.GetID())
	p.typistsMu.Unlock()

	for roomID, name := range typing {
		p.setTyping(context.Background(), c, roomID, name, false)
	}
	return left
}

// track registers a background task unless the pipeline is shutting down.
func (p *Pipeline) track() bool {
	p.tasksMu.Lock()
	defer p.tasksMu.Unlock()
	if p.closing {
		return false
	}
	p.tasks.Add(1)
	return true
}

// Shutdown refuses new background tasks and waits for running ones. When ctx
// expires first, running tasks are cancelled and still awaited so each one
// delivers its terminal notice.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.tasksMu.Lock()
	p.closing = true
	p.tasksMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelTask()
		return nil
	case <-ctx.Done():
		p.cancelTask()
		<-done
		return ctx.Err()
	}
}

// Wait blocks until every background task has finished.
func (p *Pipeline) Wait() {
	p.tasks.Wait()
}

// reportError sends err to c as an errorMessage.
func (p *Pipeline) reportError(c Client, roomID string, err error) {
	code := ErrorCode(err)
	text := code
	if p.translator != nil {
		text = p.translator.GetString(c.GetLanguage(), code)
	}

	evt := p.log.Debug()
	if !errors.Is(err, ErrInvalidPayload) && !errors.Is(err, ErrUnknownEvent) {
		evt = p.log.Warn()
	}
	evt.Err(err).Str("conn_id", c.GetID()).Str("room_id", roomID).Str("code", code).Msg("event rejected")

	p.dispatcher.SendTo(c, models.OutboundEvent{
		Event: models.EventErrorMessage,
		Data:  models.ErrorData{Error: text, Code: code, RoomID: roomID},
	})
}

// RejectFrame reports a frame that is not a valid event envelope.
func (p *Pipeline) RejectFrame(c Client, err error) {
	p.reportError(c, "", fmt.Errorf("%w: %w", ErrInvalidPayload, err))
}
