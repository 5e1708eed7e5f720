package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Collection names.
const (
	collSources    = "news_sources"
	collJobs       = "scraping_jobs"
	collArticles   = "articles"
	collAuthors    = "authors"
	collCategories = "categories"
	collCounters   = "counters"
)

// MongoStore persists to MongoDB. Documents use int64 IDs drawn from a
// counters collection so they match the other backends.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoStore connects to cfg.MongoURI and ensures the unique indexes.
func NewMongoStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*MongoStore, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	s := newMongoStore(client, client.Database(cfg.MongoDatabase), logger)
	if err := s.ensureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func newMongoStore(client *mongo.Client, db *mongo.Database, logger *slog.Logger) *MongoStore {
	return &MongoStore{client: client, db: db, logger: logger.With("component", "mongo_store")}
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) Close() error {
	s.logger.Info("mongodb storage closing")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}
	indexes := map[string][]mongo.IndexModel{
		collSources:    {unique(bson.D{{Key: "slug", Value: 1}})},
		collAuthors:    {unique(bson.D{{Key: "slug", Value: 1}})},
		collCategories: {unique(bson.D{{Key: "slug", Value: 1}})},
		collJobs: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_retry_at", Value: 1}}},
			{Keys: bson.D{{Key: "news_source_id", Value: 1}, {Key: "_id", Value: -1}}},
		},
		collArticles: {
			unique(bson.D{{Key: "slug", Value: 1}}),
			{
				Keys: bson.D{{Key: "title_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "title_key", Value: bson.D{{Key: "$gt", Value: ""}}}}),
			},
			{
				Keys: bson.D{{Key: "source_slug", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "source_slug", Value: bson.D{{Key: "$gt", Value: ""}}}}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return wrap("mongodb", "ensure indexes", fmt.Errorf("%s: %w", coll, err))
		}
	}
	return nil
}

// nextID increments and returns the named counter.
func (s *MongoStore) nextID(ctx context.Context, name string) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(collCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, wrap("mongodb", "next id", fmt.Errorf("%s: %w", name, err))
	}
	return out.Seq, nil
}

// --- sources ---

func (s *MongoStore) SyncSources(ctx context.Context, sources []*types.NewsSource) error {
	coll := s.db.Collection(collSources)
	for _, src := range sources {
		var existing types.NewsSource
		err := coll.FindOne(ctx, bson.M{"slug": src.Slug}).Decode(&existing)
		switch {
		case err == nil:
			src.ID = existing.ID
			copyRuntime(src, &existing)
			_, err = coll.UpdateOne(ctx, bson.M{"_id": src.ID}, bson.M{"$set": bson.M{
				"name":               src.Name,
				"url":                src.URL,
				"rss_url":            src.RSSURL,
				"trust_score":        src.TrustScore,
				"is_active":          src.Active,
				"scraping_config":    src.ScrapingConfig,
				"scraping_frequency": src.ScrapingFrequency,
				"is_gaming_source":   src.IsGamingSource,
			}})
			if err != nil {
				return wrap("mongodb", "sync sources", fmt.Errorf("update %s: %w", src.Slug, err))
			}
		case errors.Is(err, mongo.ErrNoDocuments):
			id, err := s.nextID(ctx, collSources)
			if err != nil {
				return err
			}
			src.ID = id
			if _, err := coll.InsertOne(ctx, src); err != nil {
				return wrap("mongodb", "sync sources", fmt.Errorf("insert %s: %w", src.Slug, err))
			}
		default:
			return wrap("mongodb", "sync sources", err)
		}
	}
	return nil
}

func (s *MongoStore) ListSources(ctx context.Context) ([]*types.NewsSource, error) {
	cur, err := s.db.Collection(collSources).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrap("mongodb", "list sources", err)
	}
	var out []*types.NewsSource
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("mongodb", "list sources", err)
	}
	return out, nil
}

func (s *MongoStore) GetSource(ctx context.Context, id int64) (*types.NewsSource, error) {
	var src types.NewsSource
	if err := s.db.Collection(collSources).FindOne(ctx, bson.M{"_id": id}).Decode(&src); err != nil {
		return nil, wrap("mongodb", "get source", mongoNotFound(err))
	}
	return &src, nil
}

func (s *MongoStore) UpdateSourceState(ctx context.Context, source *types.NewsSource) error {
	res, err := s.db.Collection(collSources).UpdateOne(ctx, bson.M{"_id": source.ID}, bson.M{"$set": bson.M{
		"last_scraped_at":       source.LastScrapedAt,
		"next_scrape_at":        source.NextScrapeAt,
		"auto_scraping_enabled": source.AutoScrapingEnabled,
		"total_scrapes":         source.TotalScrapes,
		"successful_scrapes":    source.SuccessfulScrapes,
		"failed_scrapes":        source.FailedScrapes,
	}})
	if err != nil {
		return wrap("mongodb", "update source", err)
	}
	if res.MatchedCount == 0 {
		return wrap("mongodb", "update source", types.ErrNotFound)
	}
	return nil
}

// --- jobs ---

func (s *MongoStore) CreateJob(ctx context.Context, job *types.ScrapingJob) error {
	id, err := s.nextID(ctx, collJobs)
	if err != nil {
		return err
	}
	job.ID = id
	if _, err := s.db.Collection(collJobs).InsertOne(ctx, job); err != nil {
		return wrap("mongodb", "create job", err)
	}
	return nil
}

func (s *MongoStore) UpdateJob(ctx context.Context, job *types.ScrapingJob) error {
	res, err := s.db.Collection(collJobs).ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	if err != nil {
		return wrap("mongodb", "update job", err)
	}
	if res.MatchedCount == 0 {
		return wrap("mongodb", "update job", types.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) GetJob(ctx context.Context, id int64) (*types.ScrapingJob, error) {
	var job types.ScrapingJob
	if err := s.db.Collection(collJobs).FindOne(ctx, bson.M{"_id": id}).Decode(&job); err != nil {
		return nil, wrap("mongodb", "get job", mongoNotFound(err))
	}
	return &job, nil
}

func (s *MongoStore) ListRetryableJobs(ctx context.Context, now time.Time) ([]*types.ScrapingJob, error) {
	coll := s.db.Collection(collJobs)
	cur, err := coll.Find(ctx, bson.M{
		"status":        types.JobFailed,
		"next_retry_at": bson.M{"$lte": now},
	}, options.Find().SetSort(bson.D{{Key: "next_retry_at", Value: 1}}))
	if err != nil {
		return nil, wrap("mongodb", "list retryable jobs", err)
	}
	var failed []*types.ScrapingJob
	if err := cur.All(ctx, &failed); err != nil {
		return nil, wrap("mongodb", "list retryable jobs", err)
	}

	out := failed[:0]
	for _, j := range failed {
		newer, err := coll.CountDocuments(ctx, bson.M{
			"news_source_id": j.NewsSourceID,
			"_id":            bson.M{"$gt": j.ID},
		}, options.Count().SetLimit(1))
		if err != nil {
			return nil, wrap("mongodb", "list retryable jobs", err)
		}
		if newer == 0 {
			out = append(out, j)
		}
	}
	return out, nil
}

// --- articles ---

func (s *MongoStore) FindDuplicate(ctx context.Context, titleKey, slug string) (*types.Article, error) {
	var or bson.A
	if titleKey != "" {
		or = append(or, bson.M{"title_key": titleKey})
	}
	if slug != "" {
		or = append(or, bson.M{"slug": slug}, bson.M{"source_slug": slug})
	}
	if len(or) == 0 {
		return nil, wrap("mongodb", "find duplicate", types.ErrNotFound)
	}

	var a types.Article
	err := s.db.Collection(collArticles).FindOne(ctx, bson.M{"$or": or},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&a)
	if err != nil {
		return nil, wrap("mongodb", "find duplicate", mongoNotFound(err))
	}
	return &a, nil
}

func (s *MongoStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	n, err := s.db.Collection(collArticles).CountDocuments(ctx, bson.M{"slug": slug}, options.Count().SetLimit(1))
	if err != nil {
		return false, wrap("mongodb", "slug exists", err)
	}
	return n > 0, nil
}

func (s *MongoStore) CreateArticle(ctx context.Context, article *types.Article) error {
	id, err := s.nextID(ctx, collArticles)
	if err != nil {
		return err
	}
	article.ID = id
	if _, err := s.db.Collection(collArticles).InsertOne(ctx, article); err != nil {
		article.ID = 0
		if mongo.IsDuplicateKeyError(err) {
			return wrap("mongodb", "create article", types.ErrDuplicate)
		}
		return wrap("mongodb", "create article", err)
	}
	s.logger.Debug("article stored", "id", id, "slug", article.Slug)
	return nil
}

func (s *MongoStore) AttachCategories(ctx context.Context, articleID int64, categories []types.Category) error {
	if len(categories) == 0 {
		return nil
	}
	slugs := make(bson.A, 0, len(categories))
	for _, c := range categories {
		if _, err := s.resolveBySlug(ctx, collCategories, c.Name, c.Slug); err != nil {
			return wrap("mongodb", "attach categories", err)
		}
		slugs = append(slugs, c.Slug)
	}

	res, err := s.db.Collection(collArticles).UpdateOne(ctx, bson.M{"_id": articleID},
		bson.M{"$addToSet": bson.M{"categories": bson.M{"$each": slugs}}})
	if err != nil {
		return wrap("mongodb", "attach categories", err)
	}
	if res.MatchedCount == 0 {
		return wrap("mongodb", "attach categories", types.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) ResolveAuthor(ctx context.Context, name string) (*types.Author, error) {
	id, err := s.resolveBySlug(ctx, collAuthors, name, types.Slugify(name))
	if err != nil {
		return nil, wrap("mongodb", "resolve author", err)
	}
	var a types.Author
	if err := s.db.Collection(collAuthors).FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		return nil, wrap("mongodb", "resolve author", err)
	}
	return &a, nil
}

// resolveBySlug returns the ID of the {name, slug} document in coll,
// inserting it when missing. A concurrent insert of the same slug is read
// back.
func (s *MongoStore) resolveBySlug(ctx context.Context, coll, name, slug string) (int64, error) {
	c := s.db.Collection(coll)
	var doc struct {
		ID int64 `bson:"_id"`
	}
	err := c.FindOne(ctx, bson.M{"slug": slug}).Decode(&doc)
	if err == nil {
		return doc.ID, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, err
	}

	id, err := s.nextID(ctx, coll)
	if err != nil {
		return 0, err
	}
	_, err = c.InsertOne(ctx, bson.M{"_id": id, "name": name, "slug": slug})
	if mongo.IsDuplicateKeyError(err) {
		if err := c.FindOne(ctx, bson.M{"slug": slug}).Decode(&doc); err != nil {
			return 0, err
		}
		return doc.ID, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *MongoStore) ListPublishable(ctx context.Context, createdBefore time.Time, limit int) ([]*types.Article, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(collArticles).Find(ctx, bson.M{
		"status":     types.ArticleDraft,
		"created_at": bson.M{"$lte": createdBefore},
	}, opts)
	if err != nil {
		return nil, wrap("mongodb", "list publishable", err)
	}
	var out []*types.Article
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("mongodb", "list publishable", err)
	}
	return out, nil
}

func (s *MongoStore) PublishArticle(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.Collection(collArticles).UpdateOne(ctx,
		bson.M{"_id": id, "status": types.ArticleDraft},
		bson.M{"$set": bson.M{"status": types.ArticlePublished, "published_at": at}},
	)
	if err != nil {
		return wrap("mongodb", "publish article", err)
	}
	if res.MatchedCount == 0 {
		return wrap("mongodb", "publish article", types.ErrNotFound)
	}
	return nil
}

func mongoNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.ErrNotFound
	}
	return err
}
