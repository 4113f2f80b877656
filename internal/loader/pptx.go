package loader

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// loadPPTX emits one text unit per slide concatenating all shape text, plus
// one OCR unit per image referenced by the slide's relationships.
func (l *UniversalLoader) loadPPTX(path string) ([]Unit, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open pptx %s failed: %w", path, err)
	}
	defer zr.Close()

	source := filepath.Base(path)
	parts := make(map[string]*zip.File, len(zr.File))
	var slideNums []int
	for _, f := range zr.File {
		parts[f.Name] = f
		if m := slidePartRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slideNums = append(slideNums, n)
		}
	}
	sort.Ints(slideNums)

	var units []Unit
	for _, n := range slideNums {
		slideName := fmt.Sprintf("ppt/slides/slide%d.xml", n)
		part, err := readArchiveFile(parts[slideName])
		if err != nil {
			return nil, fmt.Errorf("read pptx slide %d of %s failed: %w", n, source, err)
		}

		if text := extractRunText(part); text != "" {
			units = append(units, Unit{
				Text: text,
				Metadata: Metadata{
					Source:   source,
					Page:     n,
					Category: CategoryText,
					FileType: "pptx",
				},
			})
		}

		units = append(units, l.slideImages(parts, source, n)...)
	}
	return units, nil
}

func (l *UniversalLoader) slideImages(parts map[string]*zip.File, source string, slide int) []Unit {
	relsName := fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", slide)
	relsFile, ok := parts[relsName]
	if !ok {
		return nil
	}
	rels, err := readArchiveFile(relsFile)
	if err != nil {
		l.log.WithError(err).WithField("file", source).Warn("read pptx rels failed")
		return nil
	}

	var units []Unit
	for i, target := range imageTargets(rels, "ppt/slides") {
		imgFile, ok := parts[target]
		if !ok {
			continue
		}
		img, err := readArchiveFile(imgFile)
		if err != nil {
			l.log.WithError(err).WithField("file", source).Warn("read pptx image failed")
			continue
		}
		text, err := l.recognize(img)
		if err != nil {
			l.log.WithError(err).WithField("file", source).Warn("ocr pptx image failed")
			continue
		}
		if text == "" {
			continue
		}
		units = append(units, Unit{
			Text: text,
			Metadata: Metadata{
				Source:     source,
				Page:       slide,
				Category:   CategoryImage,
				FileType:   "pptx",
				ImageIndex: i + 1,
			},
		})
	}
	return units
}
