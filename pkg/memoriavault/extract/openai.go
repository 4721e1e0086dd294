package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-backed capabilities.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	VisionModel    string `yaml:"vision_model"`
	SentimentModel string `yaml:"sentiment_model"`
}

// OpenAI provides OCR (vision), ASR (Whisper) and sentiment scoring over the
// OpenAI API.
type OpenAI struct {
	client *openai.Client
	config OpenAIConfig
	logger *slog.Logger
}

// NewOpenAI creates the adapter. It returns nil when no API key is set, so
// callers can treat the capability as not configured.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) *OpenAI {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = openai.GPT4oMini
	}
	if cfg.SentimentModel == "" {
		cfg.SentimentModel = openai.GPT4oMini
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: logger.With("component", "openai"),
	}
}

const visionOCRPrompt = "Transcribe all text visible in this image exactly as written, " +
	"including handwriting. Reply with the text only. If there is no text, reply with nothing."

// Vision returns a TextExtractor that reads text from images with a vision
// model.
func (o *OpenAI) Vision() TextExtractor {
	return TextExtractorFunc(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: o.config.VisionModel,
			Messages: []openai.ChatCompletionMessage{{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: visionOCRPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			}},
		})
		if err != nil {
			return "", fmt.Errorf("vision ocr: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("vision ocr: empty response")
		}
		return CleanText(resp.Choices[0].Message.Content), nil
	})
}

// WhisperConfig configures speech recognition.
type WhisperConfig struct {
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// Whisper returns a TextExtractor that transcribes audio.
func (o *OpenAI) Whisper(cfg WhisperConfig) TextExtractor {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return TextExtractorFunc(func(ctx context.Context, data []byte, mimeType string) (string, error) {
		resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    cfg.Model,
			FilePath: "audio" + audioExt(mimeType),
			Reader:   bytes.NewReader(data),
			Language: cfg.Language,
		})
		if err != nil {
			return "", fmt.Errorf("transcription: %w", err)
		}
		text := strings.TrimSpace(resp.Text)
		o.logger.Debug("transcription complete", "model", cfg.Model, "chars", len(text))
		return text, nil
	})
}

const sentimentPrompt = "Rate the overall sentiment of the following text on a scale from -1 " +
	"(very negative) to 1 (very positive), 0 being neutral. Reply with the number only.\n\n"

// Sentiment returns a SentimentScorer backed by a chat model.
func (o *OpenAI) Sentiment() SentimentScorer {
	return SentimentScorerFunc(func(ctx context.Context, text string) (float64, error) {
		text = CleanForSentiment(text)
		if text == "" {
			return 0, ErrNoSignal
		}
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       o.config.SentimentModel,
			Temperature: 0,
			MaxTokens:   8,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: sentimentPrompt + text},
			},
		})
		if err != nil {
			return 0, fmt.Errorf("sentiment: %w", err)
		}
		if len(resp.Choices) == 0 {
			return 0, fmt.Errorf("sentiment: empty response")
		}
		raw := strings.TrimSpace(resp.Choices[0].Message.Content)
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(score) {
			return 0, fmt.Errorf("sentiment: unparseable score %q", raw)
		}
		return RoundScore(score), nil
	})
}

// audioExt gives the transcription API a filename extension it accepts.
func audioExt(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "flac"):
		return ".flac"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	default:
		return ".mp3"
	}
}
