package ocr

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Engine names accepted by NewEngine.
const (
	EngineTesseract  = "tesseract"
	EngineVision     = "vision"
	EngineDocumentAI = "documentai"
)

// EngineConfig selects and configures an engine.
type EngineConfig struct {
	Name       string
	DocumentAI DocumentAIConfig
}

// NewEngine creates the engine named in cfg. Remote engines hold a client
// connection; release it with Close.
func NewEngine(ctx context.Context, cfg EngineConfig) (Engine, error) {
	switch strings.ToLower(cfg.Name) {
	case "", EngineTesseract:
		return NewTesseractEngine(), nil
	case EngineVision:
		engine, err := NewVisionEngine(ctx)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case EngineDocumentAI:
		engine, err := NewDocumentAIEngine(ctx, cfg.DocumentAI)
		if err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, wrapError("", "NewEngine", ErrUnknownEngine, fmt.Sprintf("engine %q", cfg.Name))
	}
}

// Close releases engine resources if the engine holds any.
func Close(engine Engine) error {
	if c, ok := engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
