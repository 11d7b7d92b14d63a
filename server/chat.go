package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageStatus tags each stored message so readers never have to guess
// whether a reply is still streaming.
type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusComplete MessageStatus = "complete"
	StatusFailed   MessageStatus = "failed"
)

const (
	noticeHistoryCleared = "历史对话已清除"
	noticeSettingsSaved  = "设置已保存"
	errorPrefix          = "错误: "
)

var (
	ErrNoAPIKey       = errors.New("请先在设置中配置API密钥")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrInvalidSetting = errors.New("invalid chat settings")
)

type Message struct {
	ID        int64         `json:"id"`
	Role      MessageRole   `json:"role"`
	Text      string        `json:"text"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ChatSettings configures the upstream OpenAI-compatible API.
type ChatSettings struct {
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model"`
}

// ChatClient streams completions from an OpenAI-compatible endpoint.
type ChatClient struct {
	httpClient *http.Client
}

func NewChatClient(timeout time.Duration) *ChatClient {
	return &ChatClient{httpClient: &http.Client{Timeout: timeout}}
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream sends prompt and calls onDelta for every content fragment as it
// arrives. It returns the concatenated reply.
func (c *ChatClient) Stream(ctx context.Context, s ChatSettings, prompt string, onDelta func(string) error) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:    s.Model,
		Messages: []completionMessage{{Role: string(RoleUser), Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("chat: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return full.String(), fmt.Errorf("chat: decode chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if err := onDelta(choice.Delta.Content); err != nil {
				return full.String(), err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("chat: read stream: %w", err)
	}
	return full.String(), nil
}

// ChatService relays prompts upstream and keeps the conversation log.
type ChatService struct {
	log       ChatLog
	client    *ChatClient
	validator *SecurityValidator
	metrics   *MetricsCollector

	mu       sync.RWMutex
	settings ChatSettings
}

// NewChatService starts from defaults, replaced by settings previously saved
// in the log.
func NewChatService(ctx context.Context, log ChatLog, client *ChatClient, validator *SecurityValidator, metrics *MetricsCollector, defaults ChatSettings) (*ChatService, error) {
	settings := defaults
	saved, ok, err := log.LoadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		settings = saved
	}

	return &ChatService{
		log:       log,
		client:    client,
		validator: validator,
		metrics:   metrics,
		settings:  settings,
	}, nil
}

func (s *ChatService) Settings() ChatSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings validates and persists new settings. All three fields are
// required.
func (s *ChatService) UpdateSettings(ctx context.Context, next ChatSettings) error {
	next.APIKey = strings.TrimSpace(next.APIKey)
	next.Model = strings.TrimSpace(next.Model)
	if next.APIKey == "" || next.Model == "" || strings.TrimSpace(next.BaseURL) == "" {
		return fmt.Errorf("%w: api key, base url and model are required", ErrInvalidSetting)
	}
	base, err := s.validator.ValidateChatEndpoint(next.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	next.BaseURL = base

	if err := s.log.SaveSettings(ctx, next); err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()

	_, err = s.log.Append(ctx, Message{Role: RoleAssistant, Text: noticeSettingsSaved, Status: StatusComplete})
	return err
}

func (s *ChatService) History(ctx context.Context) ([]Message, error) {
	return s.log.Recent(ctx)
}

// ClearHistory empties the log, leaving only the cleared notice.
func (s *ChatService) ClearHistory(ctx context.Context) ([]Message, error) {
	if err := s.log.Clear(ctx); err != nil {
		return nil, err
	}
	if _, err := s.log.Append(ctx, Message{Role: RoleAssistant, Text: noticeHistoryCleared, Status: StatusComplete}); err != nil {
		return nil, err
	}
	return s.log.Recent(ctx)
}

// Send stores the prompt, streams the reply through onDelta and records the
// reply as complete or failed. The returned message is the final reply.
func (s *ChatService) Send(ctx context.Context, text string, onDelta func(string) error) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	settings := s.Settings()
	if _, err := s.log.Append(ctx, Message{Role: RoleUser, Text: text, Status: StatusComplete}); err != nil {
		return Message{}, err
	}

	if settings.APIKey == "" {
		reply, err := s.log.Append(ctx, Message{Role: RoleAssistant, Text: errorPrefix + ErrNoAPIKey.Error(), Status: StatusFailed})
		if err != nil {
			return Message{}, err
		}
		s.metrics.RecordChatMessage(StatusFailed)
		return reply, ErrNoAPIKey
	}

	reply, err := s.log.Append(ctx, Message{Role: RoleAssistant, Status: StatusPending})
	if err != nil {
		return Message{}, err
	}

	full, streamErr := s.client.Stream(ctx, settings, text, func(delta string) error {
		s.metrics.RecordChatChunk()
		return onDelta(delta)
	})

	reply.Text, reply.Status = full, StatusComplete
	if streamErr != nil {
		reply.Text, reply.Status = errorPrefix+streamErr.Error(), StatusFailed
	}

	// The caller may have gone away; the outcome is still recorded.
	if err := s.log.Finish(context.WithoutCancel(ctx), reply.ID, reply.Text, reply.Status); err != nil {
		return reply, err
	}
	s.metrics.RecordChatMessage(reply.Status)
	return reply, streamErr
}
