package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// OOXML documents (DOCX, PPTX) are zip archives of XML parts. Text lives in
// <w:t>/<a:t> runs; embedded images in the media directories. Walking the
// parts directly avoids a dependency on the abandoned or commercial OOXML
// readers in the ecosystem.

func readArchiveFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// extractRunText concatenates the character data of every <t> run, with a
// newline at each paragraph boundary.
func extractRunText(part []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(part))

	var sb strings.Builder
	inRun := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inRun = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inRun = false
			}
			if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inRun {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

type relationships struct {
	Relationships []relationship `xml:"Relationship"`
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// imageTargets returns the normalized archive paths of image relationships
// in a part's .rels file, in declaration order.
func imageTargets(rels []byte, baseDir string) []string {
	var parsed relationships
	if err := xml.Unmarshal(rels, &parsed); err != nil {
		return nil
	}

	var targets []string
	for _, rel := range parsed.Relationships {
		if !strings.HasSuffix(rel.Type, "/image") {
			continue
		}
		target := rel.Target
		dir := baseDir
		for strings.HasPrefix(target, "../") {
			target = strings.TrimPrefix(target, "../")
			dir = parentDir(dir)
		}
		if dir != "" {
			target = dir + "/" + target
		}
		targets = append(targets, target)
	}
	return targets
}

func parentDir(dir string) string {
	idx := strings.LastIndex(dir, "/")
	if idx < 0 {
		return ""
	}
	return dir[:idx]
}
