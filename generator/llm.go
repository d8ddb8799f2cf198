package generator

import "context"

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ImageClient 生成一张图片，返回 data URI 或 http(s) 链接。
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	MaxTokens      int64
	Temperature    float64
	TimeoutSeconds int
}

// ImageSettings 图片接口的配置。
type ImageSettings struct {
	Model   string
	Size    string
	APIKey  string
	BaseURL string
}
