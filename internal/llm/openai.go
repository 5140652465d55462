package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// openaiClient serves OpenAI and any OpenAI-compatible host (OpenRouter).
type openaiClient struct {
	client *openai.Client
}

func newOpenAIClient(apiKey, apiHost string) *openaiClient {
	openAIConfig := openai.DefaultConfig(apiKey)
	if apiHost != "" {
		openAIConfig.BaseURL = apiHost
	}
	return &openaiClient{client: openai.NewClientWithConfig(openAIConfig)}
}

func (c *openaiClient) generateStream(ctx context.Context, request *GenerateRequest) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream := newEventStream(cancel)
	go func() {
		stream.done <- c.run(ctx, request, stream)
	}()
	return stream, nil
}

func (c *openaiClient) run(ctx context.Context, request *GenerateRequest, stream *eventStream) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.SystemPrompt,
		})
	}
	for _, message := range request.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}

	tools := make([]openai.Tool, 0, len(request.Tools))
	for _, tool := range request.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema(),
			},
		})
	}

	for step := 0; step < request.MaxSteps; step++ {
		openAIRequest := openai.ChatCompletionRequest{
			Model:     request.Model.ID,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: request.MaxTokens,
			Stream:    true,
		}
		completionStream, err := c.client.CreateChatCompletionStream(ctx, openAIRequest)
		if err != nil {
			return fmt.Errorf("creating completion stream: %w", err)
		}

		toolCalls, finishReason, err := c.streamTurn(ctx, completionStream, stream)
		completionStream.Close()
		if err != nil {
			return err
		}

		if finishReason != openai.FinishReasonToolCalls || len(toolCalls) == 0 {
			return nil
		}

		// The model requested tools: run them, report both sides of the
		// exchange, and feed the results back for the next step.
		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: toolCalls,
		})
		for _, toolCall := range toolCalls {
			arguments, result := invokeTool(request.Tools, toolCall.Function.Name, []byte(toolCall.Function.Arguments))
			stream.push(ctx, &Event{
				Type:      EventToolCall,
				ToolName:  toolCall.Function.Name,
				Arguments: arguments,
			})
			stream.push(ctx, &Event{
				Type:     EventToolResult,
				ToolName: toolCall.Function.Name,
				Result:   result,
			})
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: toolCall.ID,
			})
		}
	}

	return nil
}

// streamTurn forwards one model invocation's deltas and collects any tool
// calls assembled across chunks.
func (c *openaiClient) streamTurn(ctx context.Context, completionStream *openai.ChatCompletionStream, stream *eventStream) ([]openai.ToolCall, openai.FinishReason, error) {
	var toolCalls []openai.ToolCall
	var finishReason openai.FinishReason

	for {
		response, err := completionStream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, finishReason, fmt.Errorf("receiving completion chunk: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.ReasoningContent != "" {
			stream.push(ctx, &Event{Type: EventThinking, Content: choice.Delta.ReasoningContent})
		}
		if choice.Delta.Content != "" {
			stream.push(ctx, &Event{Type: EventTextDelta, Content: choice.Delta.Content})
		}

		for _, delta := range choice.Delta.ToolCalls {
			index := 0
			if delta.Index != nil {
				index = *delta.Index
			}
			for len(toolCalls) <= index {
				toolCalls = append(toolCalls, openai.ToolCall{Type: openai.ToolTypeFunction})
			}
			if delta.ID != "" {
				toolCalls[index].ID = delta.ID
			}
			if delta.Function.Name != "" {
				toolCalls[index].Function.Name = delta.Function.Name
			}
			toolCalls[index].Function.Arguments += delta.Function.Arguments
		}

		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	return toolCalls, finishReason, nil
}
