// Package telegram is a small Bot API client: long polling, webhook
// registration, text replies with inline keyboards and file downloads.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crmbot/platform/config"
	"crmbot/platform/logger"

	"golang.org/x/time/rate"
)

const (
	// Bot API allows about 30 messages per second per bot.
	sendRate      = 30
	maxRetryAfter = 30 * time.Second
	maxTextRunes  = 4096
)

// APIError is a Bot API error response.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type Client struct {
	baseURL string
	fileURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewClient(cfg config.TelegramConfig, log *logger.Logger) *Client {
	if cfg.GetTelegramBotToken() == "" {
		return nil
	}
	return newClient(cfg.GetTelegramAPIURL(), cfg.GetTelegramBotToken(), &http.Client{Timeout: 60 * time.Second}, log)
}

func newClient(apiURL, token string, httpClient *http.Client, log *logger.Logger) *Client {
	apiURL = strings.TrimRight(apiURL, "/")
	return &Client{
		baseURL: fmt.Sprintf("%s/bot%s", apiURL, token),
		fileURL: fmt.Sprintf("%s/file/bot%s", apiURL, token),
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendRate),
		log:     log,
	}
}

// SendMessage sends an HTML message. A nil keyboard sends plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) error {
	if c == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  truncate(text, maxTextRunes),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyMarkup:           keyboard,
	}
	err := c.call(ctx, "sendMessage", req, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests && apiErr.RetryAfter > 0 && apiErr.RetryAfter <= maxRetryAfter {
		c.log.Warn("telegram rate limited, retrying", "chat_id", chatID, "retry_after", apiErr.RetryAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(apiErr.RetryAfter):
		}
		err = c.call(ctx, "sendMessage", req, nil)
	}
	return err
}

// AnswerCallbackQuery stops the button spinner in the client.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]string{"callback_query_id": queryID}, nil)
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	return updates, err
}

// SetWebhook registers url; Telegram echoes secret in X-Telegram-Bot-Api-Secret-Token.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	return c.call(ctx, "setWebhook", map[string]any{
		"url":             url,
		"secret_token":    secret,
		"allowed_updates": []string{"message", "callback_query"},
	}, nil)
}

// DeleteWebhook switches the bot back to long polling.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{}, nil)
}

// OpenFile resolves fileID and streams its content. The caller closes the reader.
func (c *Client) OpenFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]string{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile: no file path for %s", fileID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileURL+"/"+f.FilePath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram file download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("telegram file download returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode telegram %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("decode telegram %s result: %w", method, err)
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
