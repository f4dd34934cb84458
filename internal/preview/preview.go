package preview

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeGIF  = "image/gif"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	htmlContentType = "text/html; charset=utf-8"
	wordNamespace   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// MaxUncompressedSize bounds what a single archive entry may expand to.
const MaxUncompressedSize int64 = 32 << 20

var (
	ErrUnsupported = errors.New("file type not previewable")
	ErrTooLarge    = errors.New("file expands beyond preview limit")
)

var extensionTypes = map[string]string{
	".pdf":  MimePDF,
	".jpg":  MimeJPEG,
	".jpeg": MimeJPEG,
	".png":  MimePNG,
	".gif":  MimeGIF,
	".docx": MimeDOCX,
	".xlsx": MimeXLSX,
}

type Result struct {
	ContentType string
	Body        []byte
}

// DetectType prefers the stored mime type and falls back to the file
// extension for generic uploads.
func DetectType(mimeType, filename string) string {
	value := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	if value == "image/jpg" {
		value = MimeJPEG
	}
	if value == "" || value == "application/octet-stream" || value == "application/zip" {
		if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
			return byExt
		}
	}
	return value
}

func Supported(mimeType string) bool {
	switch mimeType {
	case MimePDF, MimeJPEG, MimePNG, MimeGIF, MimeDOCX, MimeXLSX:
		return true
	default:
		return false
	}
}

func Render(mimeType, title string, data []byte) (Result, error) {
	switch mimeType {
	case MimePDF, MimeJPEG, MimePNG, MimeGIF:
		return Result{ContentType: mimeType, Body: data}, nil
	case MimeDOCX:
		body, err := DocxToHTML(data)
		if err != nil {
			return Result{}, err
		}
		return Result{ContentType: htmlContentType, Body: wrapHTML(title, body)}, nil
	case MimeXLSX:
		body, err := XlsxToHTML(data)
		if err != nil {
			return Result{}, err
		}
		return Result{ContentType: htmlContentType, Body: wrapHTML(title, body)}, nil
	default:
		return Result{}, ErrUnsupported
	}
}

// DocxToHTML renders the text of word/document.xml as one <p> per paragraph.
func DocxToHTML(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var document *zip.File
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			document = file
			break
		}
	}
	if document == nil {
		return "", fmt.Errorf("open docx: word/document.xml missing")
	}
	if document.UncompressedSize64 > uint64(MaxUncompressedSize) {
		return "", fmt.Errorf("open docx: %w", ErrTooLarge)
	}
	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer rc.Close()

	var out strings.Builder
	var paragraph strings.Builder
	inParagraph := false
	inText := false
	decoder := xml.NewDecoder(io.LimitReader(rc, MaxUncompressedSize))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				inParagraph = true
				paragraph.Reset()
			case "t":
				inText = true
			case "tab":
				paragraph.WriteString("&emsp;")
			case "br":
				paragraph.WriteString("<br>")
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inParagraph {
					out.WriteString("<p>")
					out.WriteString(paragraph.String())
					out.WriteString("</p>\n")
				}
				inParagraph = false
			}
		case xml.CharData:
			if inText {
				paragraph.WriteString(html.EscapeString(string(t)))
			}
		}
	}
	return out.String(), nil
}

// XlsxToHTML renders every sheet as a heading plus a table.
func XlsxToHTML(data []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{
		UnzipSizeLimit:    MaxUncompressedSize,
		UnzipXMLSizeLimit: 16 << 20,
	})
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer book.Close()

	var out strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		out.WriteString("<h2>")
		out.WriteString(html.EscapeString(sheet))
		out.WriteString("</h2>\n<table>\n")
		for _, row := range rows {
			out.WriteString("<tr>")
			for _, cell := range row {
				out.WriteString("<td>")
				out.WriteString(html.EscapeString(cell))
				out.WriteString("</td>")
			}
			out.WriteString("</tr>\n")
		}
		out.WriteString("</table>\n")
	}
	return out.String(), nil
}

func wrapHTML(title, body string) []byte {
	var out strings.Builder
	out.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	out.WriteString(html.EscapeString(title))
	out.WriteString("</title><style>table{border-collapse:collapse}td{border:1px solid #ccc;padding:4px}</style></head><body>\n")
	out.WriteString(body)
	out.WriteString("</body></html>\n")
	return []byte(out.String())
}
