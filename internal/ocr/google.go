package ocr

import (
	"fmt"
	"os"

	"google.golang.org/api/option"
)

// credentialOptions returns client options for the credentials found in the
// environment. Inline GOOGLE_CREDENTIALS wins over a credentials file.
func credentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// languageHints maps Tesseract language codes to the BCP-47 codes understood
// by Google's OCR. Unknown codes are passed through unchanged.
func languageHints(language string) []string {
	if language == "" {
		return nil
	}

	var hints []string
	for _, code := range splitLanguages(language) {
		if bcp, ok := tesseractToBCP47[code]; ok {
			code = bcp
		}
		hints = append(hints, code)
	}
	return hints
}

var tesseractToBCP47 = map[string]string{
	"eng":     "en",
	"deu":     "de",
	"fra":     "fr",
	"spa":     "es",
	"ita":     "it",
	"nld":     "nl",
	"por":     "pt",
	"pol":     "pl",
	"ces":     "cs",
	"dan":     "da",
	"swe":     "sv",
	"nor":     "no",
	"fin":     "fi",
	"tur":     "tr",
	"rus":     "ru",
	"jpn":     "ja",
	"chi_sim": "zh",
	"chi_tra": "zh-Hant",
	"kor":     "ko",
}

func checkRemoteSize(engine string, data []byte) error {
	if len(data) > MaxImageBytes {
		return recognitionError(engine, ErrImageTooLarge, fmt.Sprintf("image size: %d bytes", len(data)))
	}
	return nil
}
