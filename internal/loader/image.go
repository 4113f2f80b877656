package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// loadImage emits a single OCR unit when the image contains text, nothing
// otherwise.
func (l *UniversalLoader) loadImage(path string) ([]Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s failed: %w", path, err)
	}

	text, err := l.recognize(data)
	if err != nil {
		return nil, fmt.Errorf("ocr image %s failed: %w", path, err)
	}
	if text == "" {
		return nil, nil
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return []Unit{{
		Text: text,
		Metadata: Metadata{
			Source:   filepath.Base(path),
			Page:     1,
			Category: CategoryImage,
			FileType: ext,
		},
	}}, nil
}
