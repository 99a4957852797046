package main

import (
	"fmt"

	"github.com/menta2k/cube-segmenter/internal/config"
	"github.com/menta2k/cube-segmenter/pkg/client"
	"github.com/menta2k/cube-segmenter/pkg/detection"
	"github.com/menta2k/cube-segmenter/pkg/gemini"
	"github.com/menta2k/cube-segmenter/pkg/inference"
	"github.com/menta2k/cube-segmenter/pkg/llamacpp"
	"github.com/menta2k/cube-segmenter/pkg/ollama"
)

// buildBackend assembles the predictors named in the backend config.
// Segmentation always comes from the inference server; bounds may come
// from a vision LLM instead.
func buildBackend(cfg config.BackendConfig) (client.Backend, *inference.Client, error) {
	inf, err := inference.NewClient(cfg.InferenceURL, cfg.Confidence)
	if err != nil {
		return client.Backend{}, nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	b := client.Backend{Segmentation: inf}
	if cfg.Depth == "inference" {
		b.Depth = inf
	}

	if cfg.Bounds == "inference" {
		b.Bounds = inf
		return b, inf, nil
	}

	vision, model, err := visionClient(cfg)
	if err != nil {
		return client.Backend{}, nil, err
	}
	dc := detection.DefaultConfig(model)
	if cfg.SendSize > 0 {
		dc.SendSize = cfg.SendSize
	}
	if cfg.SendQuality > 0 {
		dc.SendQuality = cfg.SendQuality
	}
	dc.MinConfidence = cfg.Confidence
	b.Bounds = detection.NewDetector(vision, dc)
	return b, inf, nil
}

func visionClient(cfg config.BackendConfig) (client.VisionClient, string, error) {
	switch cfg.Bounds {
	case "ollama":
		c, err := ollama.NewClient(cfg.OllamaURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, cfg.Model, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.LlamaCppURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, cfg.Model, nil
	case "gemini":
		c, err := gemini.NewClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Gemini client: %w", err)
		}
		model := cfg.Model
		if model == "" || model == config.Default().Backend.Model {
			model = gemini.DefaultModel
		}
		return c, model, nil
	default:
		return nil, "", fmt.Errorf("unknown bounds backend: %s", cfg.Bounds)
	}
}
