package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/medlens/rxchat/backend/internal/service/ocr"
)

// Engine extracts text with a local Tesseract installation through gosseract.
type Engine struct {
	languages     []string
	tessdata      string
	clientFactory func() *gosseract.Client
}

// NewEngine constructs an engine. tessdata may be empty to use the library default.
func NewEngine(languages []string, tessdata string) *Engine {
	return &Engine{
		languages:     languages,
		tessdata:      tessdata,
		clientFactory: gosseract.NewClient,
	}
}

func (e *Engine) Name() string { return "tesseract" }

// Extract runs recognition on one image. A fresh client is used per call.
func (e *Engine) Extract(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := e.clientFactory()
	defer c.Close()

	if e.tessdata != "" {
		if err := c.SetTessdataPrefix(e.tessdata); err != nil {
			return "", fmt.Errorf("%w: set tessdata prefix: %v", ocr.ErrExtraction, err)
		}
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("%w: set languages: %v", ocr.ErrExtraction, err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("%w: set image: %v", ocr.ErrExtraction, err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("%w: recognize text: %v", ocr.ErrExtraction, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return text, nil
}
