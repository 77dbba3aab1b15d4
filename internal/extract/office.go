package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// readDocx returns one line per word-processing paragraph.
func readDocx(_ context.Context, p string) (string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open docx")
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return readParagraphs(f, "p", "t", "tab")
		}
	}
	return "", goerr.New("docx has no word/document.xml")
}

// readPptx returns the text of every slide in slide order, one line per
// paragraph.
func readPptx(_ context.Context, p string) (string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open pptx")
	}
	defer zr.Close()

	var slides []*zip.File
	for _, f := range zr.File {
		if slideNumber(f.Name) > 0 {
			slides = append(slides, f)
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slideNumber(slides[i].Name) < slideNumber(slides[j].Name) })

	var parts []string
	for _, f := range slides {
		text, err := readParagraphs(f, "p", "t", "")
		if err != nil {
			return "", goerr.Wrap(err, "failed to read slide", goerr.V("slide", f.Name))
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// slideNumber parses ppt/slides/slideN.xml and returns N, or 0.
func slideNumber(name string) int {
	dir, file := path.Split(name)
	if dir != "ppt/slides/" || !strings.HasPrefix(file, "slide") || !strings.HasSuffix(file, ".xml") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file, "slide"), ".xml"))
	if err != nil {
		return 0
	}
	return n
}

// readParagraphs walks an OOXML part and collects the character data of
// textElem elements, breaking lines at the end of paraElem.
func readParagraphs(f *zip.File, paraElem, textElem, tabElem string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", goerr.Wrap(err, "failed to open part", goerr.V("part", f.Name))
	}
	defer rc.Close()

	var (
		dec    = xml.NewDecoder(rc)
		lines  []string
		line   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to parse part", goerr.V("part", f.Name))
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case textElem:
				inText = true
			case tabElem:
				line.WriteByte('\t')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textElem:
				inText = false
			case paraElem:
				if s := strings.TrimSpace(line.String()); s != "" {
					lines = append(lines, s)
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(line.String()); s != "" {
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}
