package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Office Open XML and OpenDocument files are zip packages of XML parts. The
// text lives in a handful of element types per format.
var (
	wordRuns   = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	drawingRun = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	odfRuns    = regexp.MustCompile(`<text:(?:p|h|span)[^>]*>([^<]*)</text:(?:p|h|span)>`)

	mainPartRe = regexp.MustCompile(`<Override\s[^>]*>`)
	slideRe    = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

const wordMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

type pkg struct {
	name string
	zr   *zip.Reader
}

func openPackage(name string, content []byte) (*pkg, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%s: not a zip package: %w", name, err)
	}
	return &pkg{name: name, zr: zr}, nil
}

// part returns the contents of the named part, or nil when it is absent.
func (p *pkg) part(name string) ([]byte, error) {
	for _, f := range p.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: open %s: %w", p.name, name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%s: read %s: %w", p.name, name, err)
		}
		return data, nil
	}
	return nil, nil
}

func (p *pkg) mustPart(name string) ([]byte, error) {
	data, err := p.part(name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%s: %s not found", p.name, name)
	}
	return data, nil
}

// textNodes joins the trimmed, unescaped first capture of every match of re
// with spaces.
func textNodes(xml []byte, re *regexp.Regexp, b *strings.Builder) {
	for _, m := range re.FindAllSubmatch(xml, -1) {
		s := strings.TrimSpace(html.UnescapeString(string(m[1])))
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
}

// docxMainPart finds the main document part from [Content_Types].xml,
// falling back to word/document.xml.
func (p *pkg) docxMainPart() string {
	types, err := p.part("[Content_Types].xml")
	if err != nil || types == nil {
		return "word/document.xml"
	}
	for _, tag := range mainPartRe.FindAll(types, -1) {
		if !bytes.Contains(tag, []byte(`ContentType="`+wordMainContentType+`"`)) {
			continue
		}
		if name := attr(tag, "PartName"); name != "" {
			return strings.TrimPrefix(name, "/")
		}
	}
	return "word/document.xml"
}

func attr(tag []byte, name string) string {
	key := []byte(name + `="`)
	i := bytes.Index(tag, key)
	if i < 0 {
		return ""
	}
	rest := tag[i+len(key):]
	j := bytes.IndexByte(rest, '"')
	if j < 0 {
		return ""
	}
	return string(rest[:j])
}

func docxText(content []byte) (string, error) {
	p, err := openPackage("docx", content)
	if err != nil {
		return "", err
	}
	xml, err := p.mustPart(p.docxMainPart())
	if err != nil {
		return "", err
	}
	var b strings.Builder
	textNodes(xml, wordRuns, &b)
	return b.String(), nil
}

// pptxText extracts slide text in slide order.
func pptxText(content []byte) (string, error) {
	p, err := openPackage("pptx", content)
	if err != nil {
		return "", err
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range p.zr.File {
		if m := slideRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n, f.Name})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var b strings.Builder
	for _, s := range slides {
		xml, err := p.mustPart(s.name)
		if err != nil {
			return "", err
		}
		textNodes(xml, drawingRun, &b)
	}
	return b.String(), nil
}

// odfText extracts paragraphs, headings and spans of an OpenDocument text,
// presentation or spreadsheet in document order.
func odfText(content []byte) (string, error) {
	p, err := openPackage("opendocument", content)
	if err != nil {
		return "", err
	}
	xml, err := p.mustPart("content.xml")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	textNodes(xml, odfRuns, &b)
	return b.String(), nil
}
