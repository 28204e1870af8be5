package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"invoice-extractor/internal/logger"
)

// TesseractEngine implements Engine with a local Tesseract install.
//
// A gosseract.Client is not safe for concurrent use, so every call gets its
// own client.
type TesseractEngine struct {
	log zerolog.Logger
}

// NewTesseractEngine creates a Tesseract engine.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{log: logger.WithComponent("ocr-tesseract")}
}

// Name implements Engine.
func (t *TesseractEngine) Name() string { return EngineTesseract }

// Recognize runs Tesseract on img. language uses Tesseract codes ("eng",
// "eng+deu"); an empty language means DefaultLanguage.
func (t *TesseractEngine) Recognize(ctx context.Context, img Image, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if language == "" {
		language = DefaultLanguage
	}
	if err := client.SetLanguage(splitLanguages(language)...); err != nil {
		return "", recognitionError(EngineTesseract, err, "set language "+language)
	}

	var err error
	if len(img.Data) > 0 {
		err = client.SetImageFromBytes(img.Data)
	} else if img.Path != "" {
		err = client.SetImage(img.Path)
	} else {
		err = ErrEmptyImage
	}
	if err != nil {
		return "", recognitionError(EngineTesseract, err, img.String())
	}

	text, err := client.Text()
	if err != nil {
		return "", recognitionError(EngineTesseract, err, img.String())
	}

	t.log.Debug().
		Str("image", img.String()).
		Int("chars", len(text)).
		Msg("Tesseract finished")

	return strings.TrimSpace(text), nil
}

// splitLanguages turns "eng+deu" or "eng,deu" into its codes.
func splitLanguages(language string) []string {
	fields := strings.FieldsFunc(language, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return []string{DefaultLanguage}
	}
	return fields
}
