package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"ai_content_pipeline/config"
	"ai_content_pipeline/exchangelog"
	"ai_content_pipeline/generator"
	"ai_content_pipeline/logging"
	"ai_content_pipeline/metrics"
	"ai_content_pipeline/pipeline"
	"ai_content_pipeline/publisher"
)

// app bundles the wired components for one process.
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	metrics   *metrics.Collector
	exchanges *exchangelog.Store
	ctrl      *pipeline.Controller
	pub       *publisher.Publisher
}

func buildApp(cfg *config.Config) (*app, error) {
	logger := logging.NewLogger(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	a := &app{cfg: cfg, log: logger, metrics: metrics.New()}

	llm, err := buildLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if cfg.ExchangeLog != "" {
		a.exchanges, err = exchangelog.Open(cfg.ExchangeLog)
		if err != nil {
			return nil, err
		}
		llm = exchangelog.NewRecorder(llm, a.exchanges, cfg.LLM.Provider, logging.Component(logger, "exchangelog"))
		logger.WithField("path", cfg.ExchangeLog).Info("recording model exchanges")
	}

	agentOpts := []generator.AgentOption{
		generator.WithTopicCount(cfg.Pipeline.TopicCount),
		generator.WithObserver(a.metrics.ObserveExchange),
		generator.WithLogger(logging.Component(logger, "generator")),
	}
	images, err := buildImages(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	if images != nil {
		agentOpts = append(agentOpts, generator.WithImageClient(images))
	}
	agent, err := generator.NewAgent(llm, agentOpts...)
	if err != nil {
		a.close()
		return nil, err
	}

	a.ctrl, err = pipeline.NewController(agent,
		pipeline.WithScoring(cfg.Pipeline.Scoring),
		pipeline.WithLogger(logging.Component(logger, "pipeline")),
		pipeline.WithRunObserver(a.metrics.ObserveRun),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.pub, err = publisher.New(cfg.OutputDir, nil, logging.Component(logger, "publisher"))
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.exchanges != nil {
		if err := a.exchanges.Close(); err != nil {
			a.log.WithError(err).Warn("close exchange log")
		}
	}
}

func buildLLM(cfg config.LLM) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider:       cfg.Provider,
		Model:          cfg.Model,
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}
	switch cfg.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek serves an OpenAI-compatible API at its own base URL.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "anthropic":
		return generator.NewAnthropicLLMFromConfig(settings)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

// buildImages returns nil when images should always be placeholders.
func buildImages(cfg *config.Config) (generator.ImageClient, error) {
	if cfg.Image.Provider != "openai" {
		return nil, nil
	}
	return generator.NewOpenAIImagesFromConfig(&generator.ImageSettings{
		Model:   cfg.Image.Model,
		Size:    cfg.Image.Size,
		APIKey:  cfg.Image.APIKey,
		BaseURL: cfg.Image.BaseURL,
	}, cfg.LLM.TimeoutSeconds)
}
