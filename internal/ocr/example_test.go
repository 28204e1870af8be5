package ocr_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"invoice-extractor/internal/ocr"
)

// Example demonstrates recognizing a single scanned page.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine, err := ocr.NewEngine(ctx, ocr.EngineConfig{Name: ocr.EngineTesseract})
	if err != nil {
		log.Fatalf("Failed to create OCR engine: %v", err)
	}
	defer ocr.Close(engine)

	text, err := engine.Recognize(ctx, ocr.Image{Path: "scan.png"}, "eng+deu")
	if err != nil {
		log.Fatalf("Failed to recognize image: %v", err)
	}

	fmt.Printf("Recognized %d characters\n", len(text))
}

// Example_errorHandling shows how to inspect OCR failures.
func Example_errorHandling() {
	ctx := context.Background()

	engine, err := ocr.NewEngine(ctx, ocr.EngineConfig{Name: ocr.EngineVision})
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			fmt.Println("Set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS")
			return
		}
		log.Fatal(err)
	}
	defer ocr.Close(engine)

	_, err = engine.Recognize(ctx, ocr.Image{Path: "scan.png"}, "eng")
	var ocrErr *ocr.OCRError
	if errors.As(err, &ocrErr) {
		fmt.Printf("engine=%s op=%s details=%s\n", ocrErr.Engine, ocrErr.Op, ocrErr.Details)
	}
}
