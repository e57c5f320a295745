package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/ollama/ollama/api"

	"github.com/solverpad/tutor-web-ui/internal/models"
)

// Ollama provides an implementation of the LLM interface for interacting with locally hosted models
// through an Ollama server, including multimodal ones.
type Ollama struct {
	host         string
	model        string
	systemPrompt string

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server. If the provided host URL is invalid,
// the function will panic.
func NewOllama(host, model, systemPrompt string, logger *slog.Logger) Ollama {
	u, err := url.Parse(host)
	if err != nil {
		panic(err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
		logger:       logger.With(slog.String("module", "ollama")),
	}
}

// ollamaMessages projects transcript messages into the Ollama chat shape. Image attachments are
// decoded from their data URI into raw bytes; undecodable images are skipped, not fatal.
func ollamaMessages(messages []models.Message, logger *slog.Logger) []api.Message {
	msgs := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		am := api.Message{
			Role:    string(msg.Role),
			Content: msg.Text,
		}
		if msg.Role == models.RoleUser && msg.AttachedImage != "" {
			img, err := models.ParseImageDataURI(msg.AttachedImage)
			if err == nil {
				raw, decodeErr := img.Bytes()
				err = decodeErr
				if decodeErr == nil {
					am.Images = []api.ImageData{raw}
				}
			}
			if err != nil {
				logger.Warn("Skipping undecodable image attachment", slog.String("err", err.Error()))
			}
		}
		msgs = append(msgs, am)
	}
	return msgs
}

// Chat implements the LLM interface by streaming responses from the Ollama model. It accepts a
// context for cancellation and the conversation history, and returns an iterator that yields
// response chunks as strings and potential errors.
func (o Ollama) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := ollamaMessages(messages, o.logger)
		msgs = slices.Insert(msgs, 0, api.Message{
			Role:    "system",
			Content: o.systemPrompt,
		})

		t := true
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if !yield(res.Message.Content, nil) {
				cancel()
			}
			return nil
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}
