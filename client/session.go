package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	apperrors "knowledge-agent/errors"
	"knowledge-agent/stream"
	"knowledge-agent/web/types"

	"go.uber.org/zap"
)

// SessionState enumerates the lifecycle of one streaming chat turn. The
// three terminal states are absorbing: once reached, no further events are
// applied and no further transitions occur.
type SessionState int

const (
	StateIdle SessionState = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// StreamError carries a server-reported failure. Error() returns the server
// message verbatim so callers can surface it unchanged; errors.Is matches
// against ErrStreamFailed.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return e.Message }

func (e *StreamError) Unwrap() error { return apperrors.ErrStreamFailed }

// Turn is the frozen result of a completed session.
type Turn struct {
	ConversationID string
	Message        types.Message
}

// Session owns one in-flight chat turn: it reads the response body, frames
// and decodes events, applies them to its accumulators in arrival order, and
// resolves to Completed, Failed, or Cancelled. Each session has its own frame
// decoder and answer buffer; sessions for different conversations share no
// state.
type Session struct {
	request types.ChatRequest
	logger  *zap.Logger
	cancel  context.CancelFunc

	events chan stream.Event
	done   chan struct{}

	mu              sync.Mutex
	state           SessionState
	cancelRequested bool
	conversationID  string
	stage           stream.StatusEvent
	sources         []types.SourceCitation
	sourcesSet      bool
	agent           *types.AgentDescriptor
	questions       []string
	questionsSet    bool
	answer          strings.Builder
	turn            *Turn
	err             error
}

func newSession(req types.ChatRequest, logger *zap.Logger, cancel context.CancelFunc) *Session {
	return &Session{
		request: req,
		logger:  logger,
		cancel:  cancel,
		state:   StateIdle,
		events:  make(chan stream.Event, 16),
		done:    make(chan struct{}),
	}
}

// Events returns the ordered sequence of applied events for this turn. The
// channel is closed when the session reaches a terminal state. Callers must
// drain it (or cancel the session); events are delivered in exactly the
// order they were framed.
func (s *Session) Events() <-chan stream.Event {
	return s.events
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel aborts the transport read. Events applied before cancellation stay
// valid; no further events are dispatched and the terminal projection never
// happens. Cancelling a finished session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state == StateCompleted || s.state == StateFailed || s.state == StateCancelled {
		s.mu.Unlock()
		return
	}
	s.cancelRequested = true
	s.mu.Unlock()
	s.cancel()
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Answer returns the answer text accumulated so far. Every chunk append is
// observable here as soon as it is applied.
func (s *Session) Answer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer.String()
}

// ConversationID returns the identity assigned by the server, or "" until
// the conversation_id event arrives.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Stage returns the most recent status event. Statuses overwrite each other;
// they are never buffered.
func (s *Session) Stage() (stage, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage.Stage, s.stage.Detail
}

// Sources returns the citation list for the turn, nil until it arrives.
func (s *Session) Sources() []types.SourceCitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources
}

// Agent returns the agent descriptor, nil if none was announced.
func (s *Session) Agent() *types.AgentDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// SuggestedQuestions returns follow-up prompts, nil if none arrived.
func (s *Session) SuggestedQuestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions
}

// Result returns the frozen turn after Done is closed. It returns a nil turn
// with a nil error for a cancelled session.
func (s *Session) Result() (*Turn, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn, s.err
}

// Wait blocks until the session resolves or ctx expires.
func (s *Session) Wait(ctx context.Context) (*Turn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return s.Result()
	}
}

// run drives the transport for this turn. doRequest issues the HTTP request
// and is injected by the Client so the session stays transport-agnostic.
func (s *Session) run(ctx context.Context, doRequest func() (*http.Response, error)) {
	s.setState(StateSending)

	resp, err := doRequest()
	if err != nil {
		if ctx.Err() != nil && s.wasCancelled() {
			s.finishCancelled()
			return
		}
		s.finishFailed(fmt.Errorf("send chat request: %w", err))
		return
	}
	if resp.Body == nil {
		s.finishFailed(fmt.Errorf("response body is absent"))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		s.finishFailed(fmt.Errorf("HTTP error! status: %d", resp.StatusCode))
		return
	}

	s.readLoop(ctx, resp.Body)
}

// readLoop is the only point of suspension: each iteration awaits the next
// chunk of bytes. Framing and dispatch of a received chunk are synchronous.
func (s *Session) readLoop(ctx context.Context, body io.Reader) {
	decoder := stream.NewFrameDecoder()
	buf := make([]byte, 4096)
	streaming := false

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if !streaming {
				streaming = true
				s.setState(StateStreaming)
			}
			for _, frame := range decoder.Decode(buf[:n]) {
				event, decodeErr := stream.DecodeEvent([]byte(frame))
				if decodeErr != nil {
					// One corrupt line must not sink the answer.
					s.logger.Warn("Dropping malformed event frame", zap.Error(decodeErr))
					continue
				}
				if event == nil {
					continue
				}
				if terminal := s.apply(ctx, event); terminal {
					return
				}
			}
		}
		if err != nil {
			if s.wasCancelled() || ctx.Err() != nil {
				s.finishCancelled()
				return
			}
			if err == io.EOF {
				// Transport closed without a terminal event. An unterminated
				// trailing line is dropped as harmless truncation, but a turn
				// with no done/error cannot be trusted as complete.
				s.finishFailed(fmt.Errorf("stream ended without terminal event"))
				return
			}
			s.finishFailed(fmt.Errorf("read stream: %w", err))
			return
		}
	}
}

// apply updates the accumulators for one event and forwards it to the
// consumer. It returns true when the event was terminal.
func (s *Session) apply(ctx context.Context, event stream.Event) bool {
	s.mu.Lock()
	switch ev := event.(type) {
	case stream.ConversationIDEvent:
		if s.conversationID != "" && s.conversationID != ev.ConversationID {
			s.logger.Warn("Duplicate conversation_id event ignored",
				zap.String("have", s.conversationID),
				zap.String("got", ev.ConversationID))
			s.mu.Unlock()
			return false
		}
		s.conversationID = ev.ConversationID
	case stream.StatusEvent:
		s.stage = ev
	case stream.SourcesEvent:
		if s.sourcesSet {
			// Protocol violation: the first sources event wins.
			s.logger.Warn("Duplicate sources event ignored",
				zap.Int("kept", len(s.sources)),
				zap.Int("dropped", len(ev.Sources)))
			s.mu.Unlock()
			return false
		}
		s.sources = ev.Sources
		s.sourcesSet = true
	case stream.AgentEvent:
		if s.agent != nil {
			s.logger.Warn("Duplicate agent event ignored")
			s.mu.Unlock()
			return false
		}
		agent := ev.Agent
		s.agent = &agent
	case stream.ChunkEvent:
		s.answer.WriteString(ev.Content)
	case stream.SuggestedQuestionsEvent:
		if s.questionsSet {
			s.logger.Warn("Duplicate suggested_questions event ignored")
			s.mu.Unlock()
			return false
		}
		s.questions = ev.Questions
		s.questionsSet = true
	case stream.DoneEvent:
		s.mu.Unlock()
		s.forward(ctx, event)
		s.finishCompleted(ev.MessageID)
		return true
	case stream.ErrorEvent:
		s.mu.Unlock()
		s.forward(ctx, event)
		s.finishFailed(&StreamError{Message: ev.Message})
		return true
	}
	s.mu.Unlock()

	s.forward(ctx, event)
	return false
}

func (s *Session) forward(ctx context.Context, event stream.Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) wasCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

// finishCompleted freezes the accumulated answer, sources, agent, and
// suggested questions into an immutable message.
func (s *Session) finishCompleted(messageID string) {
	s.mu.Lock()
	s.state = StateCompleted
	s.turn = &Turn{
		ConversationID: s.conversationID,
		Message: types.Message{
			ID:                 messageID,
			Role:               types.RoleAssistant,
			Content:            s.answer.String(),
			Sources:            s.sources,
			SuggestedQuestions: s.questions,
			ModelUsed:          s.request.Model,
		},
	}
	s.mu.Unlock()
	s.close()
}

// finishFailed discards the partial answer: a truncated answer without its
// trailing caveats and citations is worse than no answer.
func (s *Session) finishFailed(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.answer.Reset()
	s.err = err
	s.mu.Unlock()
	s.close()
}

func (s *Session) finishCancelled() {
	s.mu.Lock()
	s.state = StateCancelled
	s.answer.Reset()
	s.mu.Unlock()
	s.close()
}

func (s *Session) close() {
	close(s.events)
	close(s.done)
	s.cancel()
}
