package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
)

// ErrAIGenerationFailed - ошибка при генерации подсказки AI
var ErrAIGenerationFailed = errors.New("ошибка генерации подсказки AI")

// UsageInfo содержит информацию об использовании токенов
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIClient интерфейс для взаимодействия с AI API
type AIClient interface {
	// GenerateSuggestion генерирует подсказку по снимку входного контекста.
	// Возвращает JSON-документ результата, информацию об использовании и ошибку.
	GenerateSuggestion(ctx context.Context, model, promptVersion, inputSummary string) (string, UsageInfo, error)
}

// openAIClient реализует AIClient с использованием go-openai
type openAIClient struct {
	client       *openaigo.Client
	defaultModel string
}

// NewAIClient создает новый клиент для взаимодействия с AI.
func NewAIClient(cfg *Config) AIClient {
	openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
	openaiConfig.BaseURL = cfg.AIBaseURL
	openaiConfig.HTTPClient = &http.Client{
		Timeout: cfg.AITimeout,
	}
	client := openaigo.NewClientWithConfig(openaiConfig)
	log.Printf("OpenAI Клиент создан. Используемый BaseURL: %s, Default Model: %s, Timeout: %v", cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
	return &openAIClient{
		client:       client,
		defaultModel: cfg.AIModel,
	}
}

// GenerateSuggestion генерирует подсказку для редакционного события.
func (c *openAIClient) GenerateSuggestion(ctx context.Context, model, promptVersion, inputSummary string) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	// Задача может нести свою модель; иначе берем модель из конфига.
	if model == "" {
		model = c.defaultModel
	}

	systemPrompt := buildSystemPrompt(promptVersion)
	messages := []openaigo.ChatCompletionMessage{
		{
			Role:    openaigo.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
	}
	if inputSummary != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: inputSummary,
		})
	}

	startTime := time.Now()
	log.Printf("Отправка запроса к AI: Model=%s, PromptVersion=%s, InputSummary=%d bytes",
		model, promptVersion, len(inputSummary))

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openaigo.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			Temperature: 0.2,
		},
	)

	duration := time.Since(startTime)

	if err != nil {
		log.Printf("Ошибка от AI API за %v (model: %s): %v", duration, model, err)
		MetricsRecordAIRequest(model, "error", duration)
		return "", usageInfo, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		log.Printf("AI API вернул пустой ответ за %v (model: %s)", duration, model)
		MetricsRecordAIRequest(model, "error_empty_response", duration)
		return "", usageInfo, fmt.Errorf("%w: получен пустой ответ", ErrAIGenerationFailed)
	}

	MetricsRecordAIRequest(model, "success", duration)

	generatedText := resp.Choices[0].Message.Content
	log.Printf("Ответ от AI API получен за %v. Длина ответа: %d символов.", duration, len(generatedText))

	if resp.Usage.TotalTokens > 0 {
		usageInfo.PromptTokens = resp.Usage.PromptTokens
		usageInfo.CompletionTokens = resp.Usage.CompletionTokens
		usageInfo.TotalTokens = resp.Usage.TotalTokens
		MetricsRecordAITokens(model, resp.Usage.TotalTokens)
		log.Printf("AI Usage: PromptTokens=%d, CompletionTokens=%d, TotalTokens=%d",
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}

	return NormalizeResultDocument(generatedText), usageInfo, nil
}

// buildSystemPrompt собирает системный промпт для заданной версии.
func buildSystemPrompt(promptVersion string) string {
	base := "You are an editorial assistant. Given a summary of an editorial event, " +
		"produce a concise suggestion for the editor as a JSON object."
	if promptVersion == "" {
		return base
	}
	return base + " Prompt version: " + promptVersion + "."
}

// NormalizeResultDocument приводит ответ модели к валидному JSON-документу.
// Модели иногда отвечают голым текстом или оборачивают JSON в markdown-блок;
// такой ответ заворачивается в {"text": ...}.
func NormalizeResultDocument(raw string) string {
	trimmed := strings.TrimSpace(raw)

	// Снимаем markdown-ограждение, если модель его добавила
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	if json.Valid([]byte(trimmed)) && (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) {
		return trimmed
	}

	wrapped, err := json.Marshal(map[string]string{"text": trimmed})
	if err != nil {
		// Marshal строки не может провалиться, но на всякий случай
		return `{"text":""}`
	}
	return string(wrapped)
}
