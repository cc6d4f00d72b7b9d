package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

var ErrDecode = errors.New("document decode failed")

// DecodeText turns uploaded bytes into text for extraction. It never rejects a document:
// when the detected format cannot be parsed it falls back to a lossy text decode of the raw
// bytes, reporting lossy=true and the parse cause (wrapping ErrDecode) for diagnostics.
func DecodeText(data []byte, fileName, contentType string) (string, bool, error) {
	if len(data) == 0 {
		return "", false, nil
	}
	switch DetectMime(contentType, fileName, data) {
	case MimePDF:
		text, err := extractPDF(data)
		if err != nil {
			return lossyText(data), true, fmt.Errorf("%w: pdf %s: %v", ErrDecode, fileName, err)
		}
		return cleanText(text), false, nil
	case MimeDOCX:
		text, err := extractDOCX(data)
		if err != nil {
			return lossyText(data), true, fmt.Errorf("%w: docx %s: %v", ErrDecode, fileName, err)
		}
		return cleanText(text), false, nil
	default:
		if utf8.Valid(data) {
			return string(data), false, nil
		}
		return lossyText(data), true, fmt.Errorf("%w: %s is not valid utf-8", ErrDecode, fileName)
	}
}

// DetectMime resolves the effective format from magic bytes, the declared content type and the file extension.
func DetectMime(contentType, fileName string, data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return MimePDF
	}
	clean := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case clean == MimePDF || ext == ".pdf":
		return MimePDF
	case clean == MimeDOCX || ext == ".docx":
		return MimeDOCX
	case clean == "application/zip" || clean == "application/octet-stream" || clean == "":
		if isDocxZip(data) {
			return MimeDOCX
		}
	}
	return MimeText
}

func lossyText(data []byte) string {
	text := strings.ToValidUTF8(string(data), "�")
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, text)
}

func cleanText(text string) string {
	return strings.TrimSpace(strings.ToValidUTF8(text, "�"))
}

func extractPDF(data []byte) (text string, err error) {
	// the pdf reader panics on some truncated inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func isDocxZip(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}
