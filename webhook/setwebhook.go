package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// telegramAPI is the Bot API host; variable so tests can redirect it
var telegramAPI = "https://api.telegram.org"

// Register points Telegram at the public webhook URL. The URL must be
// HTTPS and end in the webhook path, otherwise Telegram will accept the
// registration but never deliver an update the server routes.
func Register(ctx context.Context, token, publicURL string) error {
	payload, err := json.Marshal(map[string]string{"url": publicURL})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/setWebhook", telegramAPI, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("setWebhook request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode setWebhook response: %w", err)
	}

	if !result.OK {
		return fmt.Errorf("setWebhook rejected: %s", result.Description)
	}

	return nil
}

// Unregister removes the webhook so the bot can go back to long polling
func Unregister(ctx context.Context, token string) error {
	endpoint := fmt.Sprintf("%s/bot%s/deleteWebhook", telegramAPI, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deleteWebhook request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode deleteWebhook response: %w", err)
	}

	if !result.OK {
		return fmt.Errorf("deleteWebhook rejected: %s", result.Description)
	}

	return nil
}
