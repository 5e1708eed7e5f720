package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/SmillingSword/news-reynra/internal/types"
)

func counterReply(seq int64) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
		{Key: "_id", Value: "articles"},
		{Key: "seq", Value: seq},
	}})
}

func TestMongoArticles(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := "reynra." + collArticles

	mt.Run("create assigns counter id", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, mt.DB, testLogger)
		mt.AddMockResponses(counterReply(12), mtest.CreateSuccessResponse())

		a := &types.Article{Title: "Judul", Slug: "judul", TitleKey: "judul", Status: types.ArticleDraft}
		require.NoError(mt, s.CreateArticle(context.Background(), a))
		assert.Equal(mt, int64(12), a.ID)
	})

	mt.Run("duplicate key maps to ErrDuplicate", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, mt.DB, testLogger)
		mt.AddMockResponses(counterReply(13), mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: reynra.articles index: slug_1",
		}))

		a := &types.Article{Title: "Judul", Slug: "judul", TitleKey: "judul", Status: types.ArticleDraft}
		err := s.CreateArticle(context.Background(), a)
		assert.ErrorIs(mt, err, types.ErrDuplicate)
		assert.Zero(mt, a.ID)
	})

	mt.Run("find duplicate", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, mt.DB, testLogger)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: int64(4)},
			{Key: "title", Value: "Mobile Legends Season 30"},
			{Key: "slug", Value: "mobile-legends-season-30"},
			{Key: "title_key", Value: "mobile legends season 30"},
			{Key: "status", Value: "draft"},
		}))

		a, err := s.FindDuplicate(context.Background(), "mobile legends season 30", "mobile-legends-season-30")
		require.NoError(mt, err)
		assert.Equal(mt, int64(4), a.ID)
		assert.Equal(mt, "mobile legends season 30", a.TitleKey)
	})

	mt.Run("find duplicate misses", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, mt.DB, testLogger)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := s.FindDuplicate(context.Background(), "nope", "nope")
		assert.ErrorIs(mt, err, types.ErrNotFound)
	})

	mt.Run("publish missing draft", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, mt.DB, testLogger)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: int32(0)},
			bson.E{Key: "nModified", Value: int32(0)},
		))

		err := s.PublishArticle(context.Background(), 99, t0)
		assert.ErrorIs(mt, err, types.ErrNotFound)
	})
}
