package transformer

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/microcosm-cc/bluemonday"
)

const (
	NewsAPIName = "newsapi"

	statusOK    = "ok"
	statusError = "error"
)

type NewsAPISource struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

type NewsAPIArticle struct {
	Source      NewsAPISource `json:"source"`
	Author      *string       `json:"author"`
	Title       string        `json:"title"`
	Description *string       `json:"description"`
	URL         string        `json:"url"`
	URLToImage  *string       `json:"urlToImage"`
	Content     *string       `json:"content"`
	PublishedAt string        `json:"publishedAt"`
}

type NewsAPIResponse struct {
	Status       string           `json:"status"`
	TotalResults int64            `json:"totalResults"`
	Articles     []NewsAPIArticle `json:"articles"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
}

// NewsAPITransformer decodes /v2/everything responses. Descriptions and
// content arrive with stray markup, so both are reduced to plain text.
type NewsAPITransformer struct {
	policy *bluemonday.Policy
}

func NewNewsAPITransformer() *NewsAPITransformer {
	return &NewsAPITransformer{policy: bluemonday.StrictPolicy()}
}

func (t *NewsAPITransformer) Transform(reader io.Reader) (*domain.FeedResponse, error) {
	var apiResp NewsAPIResponse
	if err := json.NewDecoder(reader).Decode(&apiResp); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrEmptyBody
		}
		return nil, fmt.Errorf("failed to decode newsapi response: %w", err)
	}

	if apiResp.Status == statusError {
		return nil, fmt.Errorf("newsapi error %s: %s", apiResp.Code, apiResp.Message)
	}
	if apiResp.Status != statusOK {
		return nil, fmt.Errorf("unexpected newsapi status %q", apiResp.Status)
	}

	articles := make([]domain.Article, 0, len(apiResp.Articles))
	for _, a := range apiResp.Articles {
		articles = append(articles, t.normalize(a))
	}

	return &domain.FeedResponse{
		Status:       apiResp.Status,
		TotalResults: apiResp.TotalResults,
		Articles:     articles,
	}, nil
}

func (t *NewsAPITransformer) normalize(a NewsAPIArticle) domain.Article {
	// publishedAt is ISO-8601 with a trailing Z; a bad value leaves the zero time
	var published time.Time
	if a.PublishedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			published = parsed.UTC()
		}
	}

	return domain.Article{
		Source: domain.Source{
			ID:   deref(a.Source.ID),
			Name: a.Source.Name,
		},
		Author:      deref(a.Author),
		Title:       a.Title,
		Description: t.plain(deref(a.Description)),
		URL:         a.URL,
		URLToImage:  deref(a.URLToImage),
		Content:     t.plain(deref(a.Content)),
		PublishedAt: published,
	}
}

func (t *NewsAPITransformer) plain(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(t.policy.Sanitize(s)))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
