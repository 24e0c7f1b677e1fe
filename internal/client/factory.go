package client

import (
	"go.uber.org/zap"

	"github.com/archifusion/api/internal/config"
	"github.com/archifusion/api/internal/resilience"
)

// NewCapabilities picks a live adapter or a stub for each upstream once,
// at startup. Live adapters are wrapped in circuit breakers.
func NewCapabilities(cfg *config.Config, breaker *resilience.Breaker, logger *zap.Logger) Capabilities {
	caps := Capabilities{
		Inference: StubInference{},
		Vision:    StubVision{},
		Speech:    StubSpeech{},
	}

	groq := NewGroqClient(&cfg.Groq)
	if config.Live(cfg.Capabilities.Inference, cfg.Groq.APIKey) {
		caps.Inference = GuardInference(groq, breaker)
		caps.InferenceLive = true
	}
	if config.Live(cfg.Capabilities.Speech, cfg.Groq.APIKey) {
		caps.Speech = GuardSpeech(groq, breaker)
		caps.SpeechLive = true
	}

	gemini := NewGeminiClient(&cfg.Gemini)
	if config.Live(cfg.Capabilities.Vision, cfg.Gemini.APIKey) {
		caps.Vision = GuardVision(gemini, breaker)
		caps.VisionLive = true
	}

	logger.Info("capabilities selected",
		zap.String("inference", Mode(caps.InferenceLive)),
		zap.String("vision", Mode(caps.VisionLive)),
		zap.String("speech", Mode(caps.SpeechLive)),
	)
	return caps
}
