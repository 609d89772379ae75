package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/tandem/internal/agent"
)

// defaultQwenBaseURL is DashScope's OpenAI-compatible endpoint.
const defaultQwenBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// QwenProvider implements agent.LLMProvider for Qwen models served through
// an OpenAI-compatible chat completions API.
//
// Unlike Anthropic's SSE protocol, tool calls stream incrementally here: the
// id and function name arrive in the first fragment for an index, argument
// JSON arrives across subsequent fragments, and a "tool_calls" finish reason
// signals assembly is complete. The accumulation state stays inside
// processStream and is never published to history.
type QwenProvider struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
}

// QwenConfig holds configuration for creating a QwenProvider.
type QwenConfig struct {
	// APIKey is the DashScope API key (required).
	APIKey string

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string

	// DefaultModel is used when a request doesn't specify a model.
	DefaultModel string

	// MaxTokens is the default response cap. Default: 8192.
	MaxTokens int
}

// NewQwenProvider creates a Qwen provider from config.
func NewQwenProvider(config QwenConfig) (*QwenProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("qwen: API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultQwenBaseURL
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "qwen-max"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 8192
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL

	return &QwenProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: config.DefaultModel,
		maxTokens:    config.MaxTokens,
	}, nil
}

// Name returns the provider tag.
func (p *QwenProvider) Name() string { return "qwen" }

// Complete sends a completion request and streams the response. Thinking is
// not supported on this path; the flag is ignored.
func (p *QwenProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertQwenMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = p.maxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertQwenTools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks, model)
	return chunks, nil
}

func (p *QwenProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	// Accumulates tool calls by stream index until finish_reason fires.
	pending := make(map[int]*agent.ToolCall)
	var order []int

	flush := func() {
		for _, idx := range order {
			tc := pending[idx]
			if tc == nil || tc.ID == "" || tc.Name == "" {
				continue
			}
			tc.Input = finalizeToolInput(string(tc.Input))
			chunks <- &agent.CompletionChunk{ToolCall: tc}
		}
		pending = make(map[int]*agent.ToolCall)
		order = nil
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: p.wrapError(ctx.Err(), model)}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				chunks <- &agent.CompletionChunk{Done: true}
				return
			}
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if pending[index] == nil {
				pending[index] = &agent.ToolCall{}
				order = append(order, index)
			}
			if tc.ID != "" {
				pending[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				pending[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pending[index].Input = append(pending[index].Input, tc.Function.Arguments...)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

func convertQwenMessages(messages []agent.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, oaiMsg)

		default:
			// Tool results become individual role=tool messages; remaining
			// text becomes a plain user message.
			for _, tr := range msg.ToolResults {
				content := tr.Content
				if tr.IsError {
					content = "ERROR: " + content
				}
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: tr.ToolCallID,
				})
			}
			if msg.Content != "" {
				result = append(result, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: msg.Content,
				})
			}
		}
	}

	return result
}

func convertQwenTools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  json.RawMessage(tool.Schema()),
			},
		})
	}
	return result
}

func (p *QwenProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := agent.GetProviderError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := &agent.ProviderError{
			Provider: "qwen",
			Model:    model,
			Cause:    err,
			Reason:   agent.FailoverUnknown,
		}
		providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Message != "" {
			providerErr = providerErr.WithMessage(apiErr.Message)
		}
		if code, ok := apiErr.Code.(string); ok && code != "" {
			providerErr = providerErr.WithCode(code)
		}
		return providerErr
	}

	if strings.Contains(err.Error(), "stream") && errors.Is(err, io.ErrUnexpectedEOF) {
		return agent.NewProviderError("qwen", model, fmt.Errorf("stream interrupted: %w", err))
	}
	return agent.NewProviderError("qwen", model, err)
}
