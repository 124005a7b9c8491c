package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NewsPager/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository backs both the shared page cache and the article archive.
type MongoRepository struct {
	db       *mongo.Database
	pages    *mongo.Collection
	articles *mongo.Collection
	ttl      time.Duration
	now      func() time.Time
}

type cachedPage struct {
	Query     string              `bson:"query"`
	Page      int64               `bson:"page"`
	Response  domain.FeedResponse `bson:"response"`
	StoredAt  time.Time           `bson:"stored_at"`
	ExpiresAt time.Time           `bson:"expires_at"`
}

func NewMongoRepository(client *mongo.Client, dbName, pagesCollection, articlesCollection string, ttl time.Duration) (*MongoRepository, error) {
	db := client.Database(dbName)
	repo := &MongoRepository{
		db:       db,
		pages:    db.Collection(pagesCollection),
		articles: db.Collection(articlesCollection),
		ttl:      ttl,
		now:      time.Now,
	}

	if err := repo.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return repo, nil
}

func (r *MongoRepository) createIndexes(ctx context.Context) error {
	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)

	pageModels := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "query", Value: 1},
				{Key: "page", Value: 1},
			},
			Options: options.Index().SetName("query_page_idx").SetUnique(true),
		},
		{
			// Mongo's TTL monitor removes expired pages on its own schedule
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_at_ttl_idx").SetExpireAfterSeconds(0),
		},
	}
	if _, err := r.pages.Indexes().CreateMany(ctx, pageModels, opts); err != nil {
		return err
	}

	articleModels := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "query", Value: 1},
				{Key: "published_at", Value: -1},
			},
			Options: options.Index().SetName("query_published_at_idx"),
		},
	}
	_, err := r.articles.Indexes().CreateMany(ctx, articleModels, opts)
	return err
}

// GetPage implements domain.PageCache. Expired documents count as a miss even
// before the TTL monitor has removed them.
func (r *MongoRepository) GetPage(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, bool, error) {
	filter := bson.M{
		"query":      query,
		"page":       int64(page),
		"expires_at": bson.M{"$gt": r.now()},
	}

	var doc cachedPage
	err := r.pages.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached page: %w", err)
	}
	return &doc.Response, true, nil
}

// PutPage implements domain.PageCache.
func (r *MongoRepository) PutPage(ctx context.Context, query string, page domain.PageKey, resp *domain.FeedResponse) error {
	now := r.now()
	doc := cachedPage{
		Query:     query,
		Page:      int64(page),
		Response:  *resp,
		StoredAt:  now,
		ExpiresAt: now.Add(r.ttl),
	}

	filter := bson.M{"query": query, "page": int64(page)}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.pages.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to cache page: %w", err)
	}
	return nil
}

// DropQuery implements domain.PageCache.
func (r *MongoRepository) DropQuery(ctx context.Context, query string) error {
	if _, err := r.pages.DeleteMany(ctx, bson.M{"query": query}); err != nil {
		return fmt.Errorf("failed to drop cached pages: %w", err)
	}
	return nil
}

func (r *MongoRepository) BulkUpsert(ctx context.Context, articles []domain.ArchivedArticle) error {
	if len(articles) == 0 {
		return nil
	}

	var models []mongo.WriteModel
	for _, article := range articles {
		filter := bson.M{"_id": article.ID}
		update := bson.M{"$set": article}
		model := mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true)
		models = append(models, model)
	}

	opts := options.BulkWrite().SetOrdered(false)
	_, err := r.articles.BulkWrite(ctx, models, opts)
	if err != nil {
		return fmt.Errorf("failed to bulk upsert articles: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetContentHashes(ctx context.Context, ids []string) (map[string]string, error) {
	filter := bson.M{"_id": bson.M{"$in": ids}}
	opts := options.Find()
	// Only fetch _id and content_hash
	opts.SetProjection(bson.M{"_id": 1, "content_hash": 1})

	cursor, err := r.articles.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			slog.Warn("Failed to close cursor", "error", err)
		}
	}()

	results := make(map[string]string)
	for cursor.Next(ctx) {
		var doc struct {
			ID          string `bson:"_id"`
			ContentHash string `bson:"content_hash"`
		}
		if err := cursor.Decode(&doc); err != nil {
			continue // Skip malformed
		}
		results[doc.ID] = doc.ContentHash
	}
	return results, cursor.Err()
}
