package wizard

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
)

const (
	maxDeckBytes  = 10 << 20
	maxLogoBytes  = 2 << 20
	maxImageBytes = 10 << 20

	mimePPT  = "application/vnd.ms-powerpoint"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// LocalFile is a user-supplied file before it reaches the backend.
type LocalFile struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f LocalFile) Size() int64 {
	return int64(len(f.Data))
}

// ReadLocalFile loads a file from disk, sniffing its content type.
func ReadLocalFile(path string) (LocalFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f := LocalFile{Name: filepath.Base(path), Data: data}
	f.ContentType = f.sniff()
	return f, nil
}

// sniff returns the detected MIME type, or the declared one when the
// content is not recognised.
func (f LocalFile) sniff() string {
	if kind, err := filetype.Match(f.Data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return f.ContentType
}

func (f LocalFile) ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// validateDeck accepts .ppt/.pptx by name or by type, under 10 MB. A file
// whose content is recognisably something else is rejected whatever its name.
func validateDeck(f LocalFile) error {
	isDeck := f.ext() == ".ppt" || f.ext() == ".pptx" ||
		f.ContentType == mimePPT || f.ContentType == mimePPTX

	if kind, err := filetype.Match(f.Data); err == nil && kind != filetype.Unknown {
		switch kind {
		case matchers.TypePpt, matchers.TypePptx:
			isDeck = true
		case matchers.TypeZip:
			// pptx files that the matcher cannot tell apart from plain zip
		default:
			isDeck = false
		}
	}

	if !isDeck {
		return invalid("file", "Only PowerPoint (.ppt/.pptx) files are allowed!")
	}
	if f.Size() >= maxDeckBytes {
		return invalid("file", "File must be smaller than 10MB!")
	}
	return nil
}

func (f LocalFile) deckContentType() string {
	if f.ContentType == mimePPT || f.ContentType == mimePPTX {
		return f.ContentType
	}
	if f.ext() == ".ppt" {
		return mimePPT
	}
	return mimePPTX
}

func validateLogo(f LocalFile) error {
	ct := f.sniff()
	if ct != "image/jpeg" && ct != "image/png" {
		return invalid("logo", "Only JPG/PNG images are allowed!")
	}
	if f.Size() >= maxLogoBytes {
		return invalid("logo", "Logo must be smaller than 2MB!")
	}
	return nil
}

func validateSceneImage(f LocalFile) error {
	if !strings.HasPrefix(f.sniff(), "image/") {
		return invalid("image", "Only image files are allowed!")
	}
	if f.Size() >= maxImageBytes {
		return invalid("image", "Image must be smaller than 10MB!")
	}
	return nil
}

// dataURL renders the local preview shown while a logo upload is in flight.
func (f LocalFile) dataURL() string {
	return "data:" + f.sniff() + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}
