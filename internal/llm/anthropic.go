package llm

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

// anthropicClient wraps the go-anthropic client.
type anthropicClient struct {
	client *anthropic.Client
}

func newAnthropicClient(apiKey string) *anthropicClient {
	return &anthropicClient{client: anthropic.NewClient(apiKey)}
}

func (c *anthropicClient) generateStream(ctx context.Context, request *GenerateRequest) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream := newEventStream(cancel)
	go func() {
		stream.done <- c.run(ctx, request, stream)
	}()
	return stream, nil
}

func (c *anthropicClient) run(ctx context.Context, request *GenerateRequest, stream *eventStream) error {
	messages := make([]anthropic.Message, 0, len(request.Messages))
	for _, message := range request.Messages {
		switch message.Role {
		case AssistantRole:
			messages = append(messages, anthropic.NewAssistantTextMessage(message.Content))
		default:
			messages = append(messages, anthropic.NewUserTextMessage(message.Content))
		}
	}

	tools := make([]anthropic.ToolDefinition, 0, len(request.Tools))
	for _, tool := range request.Tools {
		tools = append(tools, anthropic.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema(),
		})
	}

	var thinking *anthropic.Thinking
	if request.ThinkingBudget > 0 {
		thinking = &anthropic.Thinking{
			Type:         anthropic.ThinkingTypeEnabled,
			BudgetTokens: request.ThinkingBudget,
		}
	}

	for step := 0; step < request.MaxSteps; step++ {
		streamRequest := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:     anthropic.Model(request.Model.ID),
				System:    request.SystemPrompt,
				Messages:  messages,
				MaxTokens: request.MaxTokens,
				Tools:     tools,
				Thinking:  thinking,
			},
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				if data.Delta.Text != nil && *data.Delta.Text != "" {
					stream.push(ctx, &Event{Type: EventTextDelta, Content: *data.Delta.Text})
				}
				if data.Delta.MessageContentThinking != nil && data.Delta.Thinking != "" {
					stream.push(ctx, &Event{Type: EventThinking, Content: data.Delta.Thinking})
				}
			},
		}

		response, err := c.client.CreateMessagesStream(ctx, streamRequest)
		if err != nil {
			return fmt.Errorf("creating messages stream: %w", err)
		}

		if response.StopReason != anthropic.MessagesStopReasonToolUse {
			return nil
		}

		// The model requested tools: run them, report both sides of the
		// exchange, and feed the results back for the next step.
		messages = append(messages, anthropic.Message{
			Role:    anthropic.RoleAssistant,
			Content: response.Content,
		})
		for _, content := range response.Content {
			if content.Type != anthropic.MessagesContentTypeToolUse || content.MessageContentToolUse == nil {
				continue
			}
			toolUse := content.MessageContentToolUse
			arguments, result := invokeTool(request.Tools, toolUse.Name, toolUse.Input)
			stream.push(ctx, &Event{
				Type:      EventToolCall,
				ToolName:  toolUse.Name,
				Arguments: arguments,
			})
			stream.push(ctx, &Event{
				Type:     EventToolResult,
				ToolName: toolUse.Name,
				Result:   result,
			})
			messages = append(messages, anthropic.NewToolResultsMessage(toolUse.ID, result, false))
		}
	}

	return nil
}
