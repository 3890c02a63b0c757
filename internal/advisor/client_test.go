package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/prism-system/internal/analysis"
	"github.com/mmeshcher/prism-system/internal/model"
)

func suggestion(title string, confidence float64, kind model.SuggestionType) model.Suggestion {
	return model.Suggestion{
		Title:      title,
		Insight:    "insight",
		Action:     "action",
		Confidence: confidence,
		Category:   "groceries",
		Type:       kind,
	}
}

func TestSuggest_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/suggest" {
			t.Fatalf("path = %s, want /api/suggest", r.URL.Path)
		}

		var report analysis.Report
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			t.Fatalf("decode report: %v", err)
		}

		resp := suggestResponse{Suggestions: []model.Suggestion{
			suggestion("Trim groceries", 0.8, model.SuggestionSwap),
			suggestion("Cancel unused plan", 0.7, model.SuggestionSubscription),
		}}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	suggestions, err := client.Suggest(ctx, &analysis.Report{})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("len = %d, want 2", len(suggestions))
	}
	if suggestions[0].Title != "Trim groceries" {
		t.Fatalf("title = %s", suggestions[0].Title)
	}
}

func TestSuggest_DropsInvalidAndTruncates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := suggestResponse{Suggestions: []model.Suggestion{
			suggestion("bad type", 0.5, "mystery"),
			suggestion("bad confidence", 1.5, model.SuggestionSwap),
			suggestion("one", 0.5, model.SuggestionSwap),
			suggestion("two", 0.5, model.SuggestionCashflow),
			suggestion("three", 0.5, model.SuggestionNudge),
			suggestion("four", 0.5, model.SuggestionSubscription),
			suggestion("five", 0.5, model.SuggestionForecast),
		}}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	suggestions, err := client.Suggest(ctx, &analysis.Report{})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(suggestions) != 4 {
		t.Fatalf("len = %d, want 4", len(suggestions))
	}
	for _, s := range suggestions {
		if s.Title == "bad type" || s.Title == "bad confidence" {
			t.Fatalf("invalid suggestion %q kept", s.Title)
		}
	}
}

func TestSuggest_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	if _, err := client.Suggest(context.Background(), &analysis.Report{}); err == nil {
		t.Fatal("expected error on 502")
	}
}
