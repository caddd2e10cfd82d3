// Package remote calls an OCR HTTP service that accepts raw image bytes and
// answers with {"text": "..."}.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/medlens/rxchat/backend/internal/service/ocr"
)

type Client struct {
	client   *resty.Client
	endpoint string
	timeout  time.Duration
}

type extractResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewClient targets the service at baseURL. endpoint defaults to /ocr.
func NewClient(baseURL, endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = "/ocr"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		client:   resty.New().SetBaseURL(baseURL),
		endpoint: endpoint,
		timeout:  timeout,
	}
}

func (c *Client) Name() string { return "remote" }

func (c *Client) Extract(ctx context.Context, image []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", http.DetectContentType(image)).
		SetHeader("Accept", "application/json").
		SetBody(image).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ocr.ErrExtraction, err)
	}

	var body extractResponse
	if len(res.Body()) > 0 {
		if err := json.Unmarshal(res.Body(), &body); err != nil && res.IsSuccess() {
			return "", fmt.Errorf("%w: invalid response: %v", ocr.ErrExtraction, err)
		}
	}

	if !res.IsSuccess() {
		msg := body.Error
		if msg == "" {
			msg = res.Status()
		}
		if res.StatusCode() == http.StatusUnsupportedMediaType || res.StatusCode() == http.StatusRequestEntityTooLarge {
			return "", fmt.Errorf("%w: %s", ocr.ErrUnsupportedImage, msg)
		}
		return "", fmt.Errorf("%w: status %d: %s", ocr.ErrExtraction, res.StatusCode(), msg)
	}
	return body.Text, nil
}
