package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/sirupsen/logrus"
)

const ocrDPI = 300

// loadPDF emits one text unit per page with enough extracted text. Pages
// below the threshold are rasterized and OCR'd instead, so a scanned page
// still yields a unit when it carries readable content.
func (l *UniversalLoader) loadPDF(path string) ([]Unit, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s failed: %w", path, err)
	}
	defer doc.Close()

	source := filepath.Base(path)
	var units []Unit

	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d of %s failed: %w", page+1, source, err)
		}
		text = strings.TrimSpace(text)

		if len([]rune(text)) >= l.minTextLen {
			units = append(units, Unit{
				Text: text,
				Metadata: Metadata{
					Source:   source,
					Page:     page + 1,
					Category: CategoryText,
					FileType: "pdf",
				},
			})
			continue
		}

		img, err := doc.ImagePNG(page, ocrDPI)
		if err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{
				"file": source,
				"page": page + 1,
			}).Warn("rasterize pdf page failed")
			continue
		}
		ocrText, err := l.recognize(img)
		if err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{
				"file": source,
				"page": page + 1,
			}).Warn("ocr pdf page failed")
			continue
		}
		if ocrText == "" {
			continue
		}
		units = append(units, Unit{
			Text: ocrText,
			Metadata: Metadata{
				Source:   source,
				Page:     page + 1,
				Category: CategoryImage,
				FileType: "pdf",
			},
		})
	}
	return units, nil
}
