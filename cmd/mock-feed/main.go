package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// A stand-in for the NewsAPI /v2/everything endpoint. Every query has
// MOCK_PAGES full pages; later pages come back empty.

type source struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

type article struct {
	Source      source  `json:"source"`
	Author      *string `json:"author"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	URL         string  `json:"url"`
	URLToImage  *string `json:"urlToImage"`
	PublishedAt string  `json:"publishedAt"`
	Content     *string `json:"content"`
}

type response struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
	Code         string    `json:"code,omitempty"`
	Message      string    `json:"message,omitempty"`
}

func main() {
	pages := intEnv("MOCK_PAGES", 5)
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "8081"
	}

	r := mux.NewRouter()
	r.HandleFunc("/v2/everything", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("apiKey") == "" {
			writeJSON(w, http.StatusUnauthorized, response{
				Status:  "error",
				Code:    "apiKeyMissing",
				Message: "Your API key is missing.",
			})
			return
		}
		if q.Get("q") == "" {
			writeJSON(w, http.StatusBadRequest, response{
				Status:  "error",
				Code:    "parametersMissing",
				Message: "Required parameters are missing.",
			})
			return
		}

		page := atoiDefault(q.Get("page"), 1)
		pageSize := atoiDefault(q.Get("pageSize"), 20)
		writeJSON(w, http.StatusOK, response{
			Status:       "ok",
			TotalResults: pages * pageSize,
			Articles:     buildPage(q.Get("q"), page, pageSize, pages),
		})
	}).Methods(http.MethodGet)

	slog.Info("Mock feed server running", "port", port, "pages", pages)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func buildPage(query string, page, pageSize, pages int) []article {
	if page < 1 || page > pages {
		return []article{}
	}

	name := "Mock Wire"
	out := make([]article, 0, pageSize)
	for i := 0; i < pageSize; i++ {
		n := (page-1)*pageSize + i
		title := fmt.Sprintf("%s story %d", query, n+1)
		desc := fmt.Sprintf("Dummy coverage of %q from the mock server.", query)
		// NewsAPI redacts some articles; keep a few around to exercise the filter
		if n%7 == 6 {
			title = "[Removed]"
		}
		out = append(out, article{
			Source:      source{Name: name},
			Title:       title,
			Description: &desc,
			URL:         fmt.Sprintf("https://mock.example/%s/%d", query, n+1),
			PublishedAt: time.Now().UTC().Add(-time.Duration(n) * time.Hour).Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func atoiDefault(s string, fallback int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	return atoiDefault(os.Getenv(key), fallback)
}
