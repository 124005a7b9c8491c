package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RemovedTitle is the title NewsAPI puts on articles that were redacted upstream.
const RemovedTitle = "[Removed]"

// Source identifies the publisher of an article.
type Source struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
}

// Article is a single news article as returned by the backend.
// Values are never mutated once constructed.
type Article struct {
	Source      Source    `json:"source" bson:"source"`
	Author      string    `json:"author" bson:"author"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	URL         string    `json:"url" bson:"url"`
	URLToImage  string    `json:"urlToImage" bson:"url_to_image"`
	Content     string    `json:"content" bson:"content"`
	PublishedAt time.Time `json:"publishedAt" bson:"published_at"`
}

// ContentHash generates a deterministic hash of the article's content.
// PublishedAt is left out so that a re-dated copy of the same story hashes the same.
func (a Article) ContentHash() string {
	hasher := sha256.New()
	hasher.Write([]byte(a.Source.Name))
	hasher.Write([]byte(a.URL))
	hasher.Write([]byte(a.Title))
	hasher.Write([]byte(a.Description))
	hasher.Write([]byte(a.Content))
	return hex.EncodeToString(hasher.Sum(nil))
}

// IsRemoved reports whether the backend redacted this article.
func (a Article) IsRemoved() bool {
	return a.Title == RemovedTitle
}

// FeedRequest is one backend request: page N of query Q with page size S.
type FeedRequest struct {
	Query    string
	APIKey   string
	Page     PageKey
	PageSize int
}

// FeedResponse is the decoded body of a backend response.
type FeedResponse struct {
	Status       string    `json:"status" bson:"status"`
	TotalResults int64     `json:"totalResults" bson:"total_results"`
	Articles     []Article `json:"articles" bson:"articles"`
}

// FeedClient is the backend boundary. Implementations return *FetchError on failure.
type FeedClient interface {
	FetchFeed(ctx context.Context, req FeedRequest) (*FeedResponse, error)
}

// PageFetcher fetches one page of results for a query.
type PageFetcher interface {
	FetchPage(ctx context.Context, query string, page PageKey) (*FeedResponse, error)
}

// PageRefresher is implemented by fetchers with a cache in front of the
// backend. RefreshPage discards every cached page of query and fetches page
// from the backend.
type PageRefresher interface {
	RefreshPage(ctx context.Context, query string, page PageKey) (*FeedResponse, error)
}

// PageCache stores backend responses keyed by (query, page).
// A miss is reported as (nil, false, nil).
type PageCache interface {
	GetPage(ctx context.Context, query string, page PageKey) (*FeedResponse, bool, error)
	PutPage(ctx context.Context, query string, page PageKey, resp *FeedResponse) error
	DropQuery(ctx context.Context, query string) error
}

// ArchivedArticle is an article persisted by the archive, keyed by its URL.
type ArchivedArticle struct {
	Article     `bson:",inline"`
	ID          string    `json:"id" bson:"_id"`
	Query       string    `json:"query" bson:"query"`
	ContentHash string    `json:"content_hash" bson:"content_hash"`
	ArchivedAt  time.Time `json:"archived_at" bson:"archived_at"`
}

// ArticleWriter handles article persistence operations.
type ArticleWriter interface {
	BulkUpsert(ctx context.Context, articles []ArchivedArticle) error
}

// HashReader handles content hash retrieval for deduplication.
type HashReader interface {
	GetContentHashes(ctx context.Context, ids []string) (map[string]string, error)
}

// Archive is the composite persistence interface used by the archive service.
type Archive interface {
	ArticleWriter
	HashReader
}

// PageEvent is published every time a page is applied to a pager.
type PageEvent struct {
	Query    string    `json:"query"`
	Key      PageKey   `json:"key"`
	Articles []Article `json:"articles"`
	LoadedAt time.Time `json:"loaded_at"`
}

// EventProducer publishes page events to a queue.
type EventProducer interface {
	Publish(ctx context.Context, event *PageEvent) error
	Close() error
}
