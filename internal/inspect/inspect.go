package inspect

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"signup-backend/internal/shared/storage/object"
)

const (
	mimePDF  = "application/pdf"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrUnsupported is returned for formats that cannot be read, such as legacy .doc.
	ErrUnsupported = errors.New("unsupported document format")
	// ErrUnreadable wraps parse failures of a supported format.
	ErrUnreadable = errors.New("unreadable document")
)

// Summary is what a reviewer sees about a supporting document.
type Summary struct {
	Pages int
	Words int
}

// Inspect reads a stored object and counts its pages and words.
func Inspect(ctx context.Context, store object.ObjectStore, key, mimeType, fileName string) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	body, err := store.Open(ctx, key)
	if err != nil {
		return Summary{}, fmt.Errorf("inspect key=%s mime=%s: %w", key, mimeType, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return Summary{}, fmt.Errorf("inspect key=%s mime=%s: read: %w", key, mimeType, err)
	}

	sum, err := InspectBytes(ctx, raw, mimeType, fileName)
	if err != nil {
		return Summary{}, fmt.Errorf("inspect key=%s mime=%s: %w", key, mimeType, err)
	}
	return sum, nil
}

// InspectBytes inspects an in-memory payload.
func InspectBytes(ctx context.Context, data []byte, mimeType, fileName string) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	var (
		sum Summary
		err error
	)
	switch normalizeMimeType(mimeType, fileName, data) {
	case mimePDF:
		sum, err = inspectPDF(data)
	case mimeDOCX:
		sum, err = inspectDOCX(data)
	default:
		return Summary{}, ErrUnsupported
	}
	if err != nil {
		return sum, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return sum, nil
}

func inspectPDF(data []byte) (sum Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, err
	}
	sum.Pages = reader.NumPage()
	plain, err := reader.GetPlainText()
	if err != nil {
		return sum, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return sum, err
	}
	sum.Words = len(strings.Fields(buf.String()))
	return sum, nil
}

func inspectDOCX(data []byte) (Summary, error) {
	if len(data) == 0 {
		return Summary{}, errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, err
	}

	var docFile, appFile *zip.File
	for _, f := range zr.File {
		switch strings.ReplaceAll(f.Name, "\\", "/") {
		case "word/document.xml":
			docFile = f
		case "docProps/app.xml":
			appFile = f
		}
	}
	if docFile == nil {
		return Summary{}, errors.New("document.xml file not found")
	}

	raw, err := readZipFile(docFile)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Words: len(strings.Fields(stripDocxXML(raw)))}
	if appFile != nil {
		if props, err := readZipFile(appFile); err == nil {
			sum.Pages = docxPages(props)
		}
	}
	return sum, nil
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
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
				buf.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// docxPages reads the page count Word caches in docProps/app.xml. It is 0 when absent.
func docxPages(raw string) int {
	var props struct {
		Pages string `xml:"Pages"`
	}
	if err := xml.Unmarshal([]byte(raw), &props); err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(props.Pages))
	if err != nil {
		return 0
	}
	return n
}

func normalizeMimeType(mimeType, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch clean {
	case mimePDF, mimeDOCX, mimeDOC:
		return clean
	case "application/zip", "application/octet-stream", "":
	default:
		return clean
	}

	if isDOCX(data) {
		return mimeDOCX
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return mimePDF
	case ".doc":
		return mimeDOC
	}
	return clean
}

func isDOCX(data []byte) bool {
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
