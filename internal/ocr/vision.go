package ocr

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"

	"invoice-extractor/internal/logger"
)

// VisionEngine implements Engine using Google Cloud Vision document text detection.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewVisionEngine creates a Vision engine with credentials from environment.
func NewVisionEngine(ctx context.Context) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	opts := credentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, wrapError(EngineVision, op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, wrapError(EngineVision, op, err, "failed to create Vision client")
	}

	return NewVisionEngineWithClient(client), nil
}

// NewVisionEngineWithClient creates a Vision engine around an existing client.
func NewVisionEngineWithClient(client *vision.ImageAnnotatorClient) *VisionEngine {
	return &VisionEngine{
		client: client,
		log:    logger.WithComponent("ocr-vision"),
	}
}

// Name implements Engine.
func (v *VisionEngine) Name() string { return EngineVision }

// Recognize sends the image inline and returns the full text annotation.
func (v *VisionEngine) Recognize(ctx context.Context, img Image, language string) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", recognitionError(EngineVision, err, img.String())
	}
	if err := checkRemoteSize(EngineVision, data); err != nil {
		return "", err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{
					LanguageHints: languageHints(language),
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", recognitionError(EngineVision, err, "Vision API call failed")
	}
	if len(resp.Responses) == 0 {
		return "", recognitionError(EngineVision, ErrOCRFailed, "no response from Vision API")
	}

	imgResp := resp.Responses[0]
	if imgResp.Error != nil {
		return "", recognitionError(EngineVision, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", imgResp.Error.Message))
	}

	if imgResp.FullTextAnnotation == nil {
		v.log.Debug().Str("image", img.String()).Msg("No text annotation returned")
		return "", nil
	}
	return strings.TrimSpace(imgResp.FullTextAnnotation.Text), nil
}

// Close closes the underlying Vision client.
func (v *VisionEngine) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
