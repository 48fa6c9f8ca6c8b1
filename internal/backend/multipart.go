package backend

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
)

// ProgressFunc receives upload progress as a percentage in [0, 100]. It may
// be called zero or more times; the last value wins.
type ProgressFunc func(percent int)

type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// buildMultipart writes plain fields followed by one file part. Each file part
// carries its own Content-Type since the backend checks it.
func buildMultipart(fields map[string]string, file filePart) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	contentType := file.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(file.field), escapeQuotes(file.filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.data); err != nil {
		return nil, "", fmt.Errorf("failed to write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	last    int
	mu      sync.Mutex
	onWrite ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, last: -1, onWrite: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		percent := 100
		if p.total > 0 {
			percent = int(p.read * 100 / p.total)
		}
		if percent > 100 {
			percent = 100
		}
		changed := percent != p.last
		p.last = percent
		p.mu.Unlock()

		if changed {
			p.onWrite(percent)
		}
	}
	return n, err
}
