package loader

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var mediaNumRe = regexp.MustCompile(`(\d+)`)

// mediaOrder extracts the numeric part of a word/media name so that
// image10.png sorts after image2.png.
func mediaOrder(name string) int {
	m := mediaNumRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// loadDOCX emits one text unit for the whole document body plus one OCR
// unit per embedded image that carries extractable text.
func (l *UniversalLoader) loadDOCX(path string) ([]Unit, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx %s failed: %w", path, err)
	}
	defer zr.Close()

	source := filepath.Base(path)
	var body string
	var mediaNames []string
	media := make(map[string][]byte)

	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			part, err := readArchiveFile(f)
			if err != nil {
				return nil, fmt.Errorf("read docx body of %s failed: %w", source, err)
			}
			body = extractRunText(part)
		case strings.HasPrefix(f.Name, "word/media/"):
			img, err := readArchiveFile(f)
			if err != nil {
				l.log.WithError(err).WithField("file", source).Warn("read docx image failed")
				continue
			}
			mediaNames = append(mediaNames, f.Name)
			media[f.Name] = img
		}
	}
	sort.Slice(mediaNames, func(i, j int) bool {
		a, b := mediaOrder(mediaNames[i]), mediaOrder(mediaNames[j])
		if a != b {
			return a < b
		}
		return mediaNames[i] < mediaNames[j]
	})

	var units []Unit
	if body != "" {
		units = append(units, Unit{
			Text: body,
			Metadata: Metadata{
				Source:   source,
				Page:     1,
				Category: CategoryText,
				FileType: "docx",
			},
		})
	}

	for i, name := range mediaNames {
		text, err := l.recognize(media[name])
		if err != nil {
			l.log.WithError(err).WithField("file", source).Warn("ocr docx image failed")
			continue
		}
		if text == "" {
			continue
		}
		units = append(units, Unit{
			Text: text,
			Metadata: Metadata{
				Source:     source,
				Page:       1,
				Category:   CategoryImage,
				FileType:   "docx",
				ImageIndex: i + 1,
			},
		})
	}
	return units, nil
}
