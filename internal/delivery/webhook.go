package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/HenrickTheBull/stagehand/internal/queue"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
)

var log = logger.Get("Delivery")

type WebhookConfig struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env-default:"30"`
}

// Webhook is a destination that delivers queue items as a multipart
// POST: the cached media file plus a JSON metadata part. It performs
// no chat-platform formatting; platform-specific delivery layers live
// outside this repository and plug into the scheduler the same way.
type Webhook struct {
	name   string
	url    string
	client *http.Client
}

func NewWebhook(config WebhookConfig) *Webhook {
	timeout := time.Second * 30
	if config.TimeoutSeconds > 0 {
		timeout = time.Second * time.Duration(config.TimeoutSeconds)
	}

	return &Webhook{
		name:   config.Name,
		url:    config.URL,
		client: &http.Client{Timeout: timeout},
	}
}

func (hook *Webhook) Name() string {
	return hook.name
}

// Post delivers one item. Any non-2xx response is an error so the
// scheduler leaves the delivery flag false and retries next tick.
func (hook *Webhook) Post(ctx context.Context, item queue.Item) error {
	mediaPath := item.MediaPath()
	if mediaPath == "" {
		return fmt.Errorf("item %s has no local media path", item.ID)
	}

	media, err := os.Open(mediaPath)
	if err != nil {
		return fmt.Errorf("failed to open media for item %s: %w", item.ID, err)
	}
	defer media.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metadata, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := writer.WriteField("metadata", string(metadata)); err != nil {
		return err
	}

	part, err := writer.CreateFormFile("media", filepath.Base(mediaPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, media); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := hook.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook '%s' request failed: %w", hook.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook '%s' rejected item %s with status %d", hook.name, item.ID, resp.StatusCode)
	}

	log.Emit(logger.SUCCESS, "Delivered item %s to webhook '%s'\n", item.ID, hook.name)
	return nil
}
