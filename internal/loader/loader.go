package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Content categories carried in unit metadata.
const (
	CategoryText  = "text"
	CategoryImage = "image"
)

// Metadata locates a unit inside its source file. Page is 1 for
// non-paginated formats. ImageIndex disambiguates multiple OCR units
// drawn from the same page or slide.
type Metadata struct {
	Source     string `json:"source"`
	Page       int    `json:"page"`
	Category   string `json:"category"`
	FileType   string `json:"file_type"`
	ImageIndex int    `json:"image_index,omitempty"`
}

// Unit is one extractable piece of a document: a page's text, a slide's
// text, or the OCR output of an image.
type Unit struct {
	Text     string
	Metadata Metadata
}

// OCR turns a raster image into text. Empty output means no text found.
type OCR interface {
	Recognize(image []byte) (string, error)
}

// UniversalLoader converts PDF, DOCX, PPTX and single-image files into a
// flat sequence of text units. Unsupported extensions yield zero units and
// no error; the caller decides whether that is a failure.
type UniversalLoader struct {
	ocr        OCR
	minTextLen int
	log        *logrus.Entry
}

func NewUniversalLoader(ocr OCR, minTextLen int) *UniversalLoader {
	if minTextLen <= 0 {
		minTextLen = 20
	}
	return &UniversalLoader{
		ocr:        ocr,
		minTextLen: minTextLen,
		log:        logrus.WithField("component", "loader"),
	}
}

// Load extracts units from a single file, or from every file under a
// directory. Per-file failures inside a directory are logged and skipped;
// a failing single file returns its error.
func (l *UniversalLoader) Load(path string) ([]Unit, error) {
	files, isDir, err := resolveFiles(path)
	if err != nil {
		return nil, err
	}

	var all []Unit
	for _, file := range files {
		units, err := l.loadFile(file)
		if err != nil {
			if !isDir {
				return nil, err
			}
			l.log.WithError(err).WithField("file", file).Warn("skipping unreadable file")
			continue
		}
		all = append(all, units...)
	}
	return all, nil
}

func (l *UniversalLoader) loadFile(path string) ([]Unit, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return l.loadPDF(path)
	case ".docx":
		return l.loadDOCX(path)
	case ".pptx":
		return l.loadPPTX(path)
	case ".jpg", ".jpeg", ".png":
		return l.loadImage(path)
	default:
		return nil, nil
	}
}

func resolveFiles(path string) ([]string, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat %s failed: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, false, nil
	}

	var files []string
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, true, fmt.Errorf("walk %s failed: %w", path, walkErr)
	}
	return files, true, nil
}

func (l *UniversalLoader) recognize(image []byte) (string, error) {
	if l.ocr == nil {
		return "", nil
	}
	return l.ocr.Recognize(image)
}
