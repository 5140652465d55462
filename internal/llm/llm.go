// Package llm provides a provider-agnostic streaming client for text
// generation with tool calling.
package llm

import (
	"context"
	"io"
)

// Message roles replayed to a provider.
const (
	UserRole      = "user"
	AssistantRole = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// EventType tags a streaming event.
type EventType string

const (
	EventTextDelta  EventType = "text_delta"
	EventThinking   EventType = "thinking"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
)

// Event is one unit of a generation stream. Content is set for text and
// thinking deltas; ToolName/Arguments for tool calls; ToolName/Result for
// tool results.
type Event struct {
	Type      EventType
	Content   string
	ToolName  string
	Arguments map[string]any
	Result    string
}

// GenerateRequest describes a single logical generation call.
type GenerateRequest struct {
	Model        *Model
	SystemPrompt string
	Messages     []*Message
	Tools        []*Tool
	// MaxSteps caps the number of reasoning/tool-call rounds.
	MaxSteps  int
	MaxTokens int
	// ThinkingBudget enables extended thinking on providers that support it
	// (Anthropic). Zero disables it; the API requires at least 1024 tokens
	// and less than MaxTokens.
	ThinkingBudget int
}

// Stream yields generation events until io.EOF.
type Stream interface {
	Recv() (*Event, error)
	Close()
}

// Client generates streamed responses.
type Client interface {
	GenerateStream(ctx context.Context, request *GenerateRequest) (Stream, error)
}

// eventStream is a channel-backed Stream fed by a provider goroutine. The
// producer pushes events, then reports completion (or failure) exactly once
// on done. Recv is single-consumer.
type eventStream struct {
	events   chan *Event
	done     chan error
	cancel   context.CancelFunc
	finished bool
	err      error
}

func newEventStream(cancel context.CancelFunc) *eventStream {
	return &eventStream{
		events: make(chan *Event, 100),
		done:   make(chan error, 1),
		cancel: cancel,
	}
}

func (s *eventStream) Recv() (*Event, error) {
	for {
		if s.finished {
			// The producer pushes every event before sending done, so
			// anything still owed is already buffered.
			select {
			case event := <-s.events:
				return event, nil
			default:
				if s.err != nil {
					return nil, s.err
				}
				return nil, io.EOF
			}
		}
		select {
		case event := <-s.events:
			return event, nil
		case err := <-s.done:
			s.finished = true
			s.err = err
		}
	}
}

func (s *eventStream) Close() {
	s.cancel()
}

func (s *eventStream) push(ctx context.Context, event *Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}
