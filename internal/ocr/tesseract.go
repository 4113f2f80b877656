package ocr

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine extracts text from raster images. A gosseract client is
// not safe for concurrent use, so one is created per call; ingestion jobs
// run on separate workers and may OCR in parallel.
type TesseractEngine struct {
	languages []string
}

func NewTesseractEngine(languages ...string) *TesseractEngine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractEngine{languages: languages}
}

// Recognize returns the trimmed text found in the image, empty when the
// image contains no recognizable text.
func (e *TesseractEngine) Recognize(image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("set ocr language failed: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set ocr image failed: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr recognize failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}
