package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NewsPager/internal/domain"
	"github.com/NewsPager/internal/infra/metrics"
	"github.com/NewsPager/internal/infra/queue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const publishTimeout = 5 * time.Second

// EventConsumer delivers page events to a handler until its context ends.
type EventConsumer interface {
	Start(ctx context.Context, handler queue.MessageHandler)
	Close() error
}

// ArchiveService stores every article a pager has shown, keyed by URL.
// Articles whose content hash is unchanged are not written again.
type ArchiveService struct {
	archive  domain.Archive
	consumer EventConsumer
	now      func() time.Time
}

func NewArchiveService(archive domain.Archive, consumer EventConsumer) *ArchiveService {
	return &ArchiveService{
		archive:  archive,
		consumer: consumer,
		now:      time.Now,
	}
}

func (s *ArchiveService) Start(ctx context.Context) {
	slog.Info("Starting archive service (Kafka consumer)")
	go s.consumer.Start(ctx, s.HandleEvent)
}

func (s *ArchiveService) Stop() error {
	return s.consumer.Close()
}

// HandleEvent archives the articles of one loaded page. A returned error
// sends the event to the dead letter queue.
func (s *ArchiveService) HandleEvent(ctx context.Context, event *domain.PageEvent) error {
	ctx, span := otel.Tracer("news-pager").Start(ctx, "ArchiveService.HandleEvent")
	defer span.End()
	span.SetAttributes(attribute.String("query", event.Query), attribute.Int64("page", int64(event.Key)))

	start := time.Now()
	defer func() {
		metrics.ArchiveSyncDuration.Observe(time.Since(start).Seconds())
	}()

	// Dedup within the page; redacted articles carry no content worth keeping
	seen := make(map[string]bool)
	articles := make([]domain.ArchivedArticle, 0, len(event.Articles))
	ids := make([]string, 0, len(event.Articles))
	archivedAt := s.now().UTC()
	for _, a := range event.Articles {
		if a.URL == "" || a.IsRemoved() || seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		articles = append(articles, domain.ArchivedArticle{
			Article:     a,
			ID:          a.URL,
			Query:       event.Query,
			ContentHash: a.ContentHash(),
			ArchivedAt:  archivedAt,
		})
		ids = append(ids, a.URL)
	}
	if len(articles) == 0 {
		return nil
	}

	existing, err := s.archive.GetContentHashes(ctx, ids)
	if err != nil {
		span.RecordError(err)
		metrics.ArticlesArchived.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to fetch hashes: %w", err)
	}

	changed := make([]domain.ArchivedArticle, 0, len(articles))
	for _, a := range articles {
		oldHash, exists := existing[a.ID]
		switch {
		case !exists:
			slog.Debug("Article new", "query", event.Query, "id", a.ID)
			changed = append(changed, a)
		case oldHash != a.ContentHash:
			slog.Debug("Article changed", "query", event.Query, "id", a.ID)
			changed = append(changed, a)
		}
	}

	if skipped := len(articles) - len(changed); skipped > 0 {
		metrics.ArticlesDuplicatesSkipped.Add(float64(skipped))
	}
	if len(changed) == 0 {
		return nil
	}

	if err := s.archive.BulkUpsert(ctx, changed); err != nil {
		span.RecordError(err)
		metrics.ArticlesArchived.WithLabelValues("error").Inc()
		return fmt.Errorf("bulk upsert failed: %w", err)
	}

	metrics.ArticlesArchived.WithLabelValues("success").Add(float64(len(changed)))
	slog.Info("Archived page", "query", event.Query, "page", event.Key, "written", len(changed), "skipped", len(articles)-len(changed))
	return nil
}

// NewPageEventHook returns a pager hook that publishes each applied page.
// Publish failures are logged; they never affect paging.
func NewPageEventHook(producer domain.EventProducer) func(query string, page domain.Page) {
	return func(query string, page domain.Page) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		event := &domain.PageEvent{
			Query:    query,
			Key:      page.Key,
			Articles: page.Data,
			LoadedAt: time.Now().UTC(),
		}
		if err := producer.Publish(ctx, event); err != nil {
			slog.Error("Failed to publish page event", "query", query, "page", page.Key, "error", err)
		}
	}
}
