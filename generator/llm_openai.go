package generator

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
// It also serves OpenAI-compatible endpoints such as DeepSeek through BaseURL.
type OpenAILLM struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	Opts        []option.RequestOption
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	return &OpenAILLM{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Opts:        requestOptions(cfg.APIKey, cfg.BaseURL, cfg.TimeoutSeconds),
	}, nil
}

func requestOptions(apiKey, baseURL string, timeoutSeconds int) []option.RequestOption {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeoutSeconds > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(timeoutSeconds)*time.Second))
	}
	return opts
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	client := openai.NewClient(o.Opts...)

	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.System),
		openai.UserMessage(prompt.User),
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: msgs,
	}
	if o.Temperature > 0 {
		params.Temperature = openai.Float(o.Temperature)
	}
	if o.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.MaxTokens)
	}
	if prompt.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIImages implements ImageClient with the OpenAI Images API.
type OpenAIImages struct {
	Model string
	Size  string
	Opts  []option.RequestOption
}

func NewOpenAIImagesFromConfig(cfg *ImageSettings, timeoutSeconds int) (*OpenAIImages, error) {
	if cfg == nil {
		return nil, errors.New("image config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide image.api_key or llm.api_key")
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ImageModelDallE3)
	}
	size := cfg.Size
	if size == "" {
		size = string(openai.ImageGenerateParamsSize1024x1024)
	}
	return &OpenAIImages{
		Model: model,
		Size:  size,
		Opts:  requestOptions(cfg.APIKey, cfg.BaseURL, timeoutSeconds),
	}, nil
}

func (o *OpenAIImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	client := openai.NewClient(o.Opts...)

	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(o.Model),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize(o.Size),
	}
	// gpt-image models always answer with base64 and reject response_format.
	if strings.HasPrefix(o.Model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := client.Images.Generate(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", errors.New("openai: empty image data")
	}
	img := resp.Data[0]
	if img.B64JSON != "" {
		return PNGDataURIPrefix + img.B64JSON, nil
	}
	return img.URL, nil
}
