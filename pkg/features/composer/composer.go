package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
	"github.com/pihlajus/bday-wisher/pkg/features/records"
)

const (
	birthdayInstruction = "You write short text messages to friends. " +
		"Be funny and teasing, but not mean. Keep it under 300 characters. " +
		"Don't mention that this is AI generated."
	replyInstruction = "You answer text messages from friends in a friendly and casual way, " +
		"as if you are a bit busy but still happy to reply. Don't make it sound too official, " +
		"keep it under 300 characters and don't reveal that you are AI."

	birthdayMaxTokens = 1000
	replyMaxTokens    = 3000
)

type ChatClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Composer generates message text. A single bounded attempt is made per call.
type Composer struct {
	Client  ChatClient
	Model   string
	Timeout time.Duration
}

func New(apiKey, baseURL, model string, timeout time.Duration) *Composer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Composer{
		Client:  openai.NewClientWithConfig(cfg),
		Model:   model,
		Timeout: timeout,
	}
}

// Inbound is the part of a received text message the reply prompt needs.
type Inbound struct {
	From string
	Body string
}

func (c *Composer) ComposeBirthday(ctx context.Context, r records.Record) (string, error) {
	prompt := fmt.Sprintf("Write a warm, personal birthday message for my friend %s.", r.Name)
	if r.Interests != "" {
		prompt += fmt.Sprintf(" Try to include references to their interests, first ones are the most important ones: %s.", r.Interests)
	}
	return c.complete(ctx, birthdayInstruction, prompt, birthdayMaxTokens)
}

// ComposeReply answers in. When sender is known and carries its own reply
// prompt, that prompt is used instead of the default one.
func (c *Composer) ComposeReply(ctx context.Context, in Inbound, sender *records.Record) (string, error) {
	prompt := fmt.Sprintf("Respond to this message: %q", in.Body)
	if sender != nil {
		if sender.ReplyPrompt != "" {
			prompt = fmt.Sprintf("%s\n\nThe message: %q", sender.ReplyPrompt, in.Body)
		}
		prompt += fmt.Sprintf("\n\nThe message is from your friend %s.", sender.Name)
	}
	return c.complete(ctx, replyInstruction, prompt, replyMaxTokens)
}

func (c *Composer) complete(ctx context.Context, instruction, prompt string, maxTokens int) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", pkgerrors.ErrGenerationFailed)
	}

	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`))
	if text == "" {
		return "", fmt.Errorf("%w: empty output", pkgerrors.ErrGenerationFailed)
	}
	return text, nil
}

// FallbackBirthday is sent when generation fails.
func FallbackBirthday(r records.Record) string {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return "Happy birthday! Hope you have a wonderful day."
	}
	return fmt.Sprintf("Happy birthday, %s! Hope you have a wonderful day.", name)
}

func FallbackReply() string {
	return "Thanks for the message! I'm a bit busy right now, talk soon."
}
