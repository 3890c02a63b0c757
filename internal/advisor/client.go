// Package advisor предоставляет клиент для внешнего сервиса персональных
// рекомендаций по экономии.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/prism-system/internal/analysis"
	"github.com/mmeshcher/prism-system/internal/model"
)

// maxSuggestions — верхняя граница числа рекомендаций от внешнего сервиса.
const maxSuggestions = 4

// Client инкапсулирует HTTP-взаимодействие с сервисом рекомендаций.
// Сервис получает готовый аналитический отчёт и возвращает до четырёх
// персональных рекомендаций.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type suggestResponse struct {
	Suggestions []model.Suggestion `json:"suggestions"`
}

// NewClient создаёт HTTP-клиент сервиса рекомендаций по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Suggest отправляет отчёт внешнему сервису и возвращает проверенные
// рекомендации. Ответы с неизвестным типом или уверенностью вне [0, 1]
// отбрасываются, остаток обрезается до четырёх.
func (c *Client) Suggest(ctx context.Context, report *analysis.Report) ([]model.Suggestion, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("advisor client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/suggest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return sanitize(result.Suggestions), nil
}

func sanitize(raw []model.Suggestion) []model.Suggestion {
	valid := make([]model.Suggestion, 0, len(raw))
	for _, s := range raw {
		if !model.ValidSuggestionType(s.Type) {
			continue
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			continue
		}
		if s.Title == "" || s.Action == "" {
			continue
		}
		valid = append(valid, s)
		if len(valid) == maxSuggestions {
			break
		}
	}
	return valid
}
