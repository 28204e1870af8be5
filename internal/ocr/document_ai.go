package ocr

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"invoice-extractor/internal/logger"
)

// DocumentAIConfig identifies the Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string // e.g., "us" or "eu"
	ProcessorID      string
	ProcessorVersion string
}

// ProcessorName returns the fully qualified processor resource name.
func (c DocumentAIConfig) ProcessorName() string {
	if c.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			c.ProjectID, c.Location, c.ProcessorID, c.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		c.ProjectID, c.Location, c.ProcessorID)
}

// DocumentAIEngine implements Engine with a Document AI OCR processor.
type DocumentAIEngine struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIEngine creates a Document AI engine with credentials from environment.
func NewDocumentAIEngine(ctx context.Context, config DocumentAIConfig) (*DocumentAIEngine, error) {
	const op = "NewDocumentAIEngine"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, wrapError(EngineDocumentAI, op, ErrInvalidConfiguration, "project ID and processor ID are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	creds := credentialOptions()
	clientOptions = append(clientOptions, creds...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(creds) == 0 {
			return nil, wrapError(EngineDocumentAI, op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, wrapError(EngineDocumentAI, op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return &DocumentAIEngine{
		client: client,
		config: config,
		log:    logger.WithComponent("ocr-documentai"),
	}, nil
}

// Name implements Engine.
func (d *DocumentAIEngine) Name() string { return EngineDocumentAI }

// Recognize processes the image as a raw document and returns Document.Text.
// Document AI detects the language itself, so language is ignored.
func (d *DocumentAIEngine) Recognize(ctx context.Context, img Image, _ string) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", recognitionError(EngineDocumentAI, err, img.String())
	}
	if err := checkRemoteSize(EngineDocumentAI, data); err != nil {
		return "", err
	}

	req := &documentaipb.ProcessRequest{
		Name: d.config.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: img.ContentType(data),
			},
		},
	}

	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", d.handleProcessingError(err)
	}
	if resp.GetDocument() == nil {
		d.log.Debug().Str("image", img.String()).Msg("Document AI returned no document")
		return "", nil
	}
	return strings.TrimSpace(resp.GetDocument().GetText()), nil
}

func (d *DocumentAIEngine) handleProcessingError(err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return recognitionError(EngineDocumentAI, err, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "QUOTA_EXCEEDED"), strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return recognitionError(EngineDocumentAI, err, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NOT_FOUND"):
		return recognitionError(EngineDocumentAI, err, fmt.Sprintf("processor not found: %s", d.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"):
		return recognitionError(EngineDocumentAI, err, "image format not supported or corrupted")
	default:
		return recognitionError(EngineDocumentAI, err, "Document AI error")
	}
}

// Close closes the underlying Document AI client.
func (d *DocumentAIEngine) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
