// Package renderer предоставляет клиент для внешнего сервиса отрисовки
// кодов погашения.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом отрисовки.
// Сервис принимает подписанную полезную нагрузку талона и возвращает
// ссылку на готовое изображение кода.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type renderRequest struct {
	Payload string `json:"payload"`
}

type renderResponse struct {
	ImageURL string `json:"image_url"`
}

// NewClient создаёт клиент отрисовки с повторными попытками на сетевых
// ошибках и ответах 5xx.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// RenderCode отправляет полезную нагрузку талона на отрисовку и возвращает
// URL изображения кода.
func (c *Client) RenderCode(ctx context.Context, payload string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("renderer client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(renderRequest{Payload: payload})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.ImageURL == "" {
		return "", fmt.Errorf("empty image_url in response")
	}

	return result.ImageURL, nil
}
