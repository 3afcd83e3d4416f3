package notificationservice

import (
	"context"
	"errors"
	"time"

	"github.com/sushihentaime/teamblog/internal/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const blogViewsCollection = "blog_views"

// MongoWatermarks keeps watermarks in a MongoDB collection with a unique
// (user_id, blog_id) index.
type MongoWatermarks struct {
	coll *mongo.Collection
}

func NewMongoWatermarks(db *mongo.Database) *MongoWatermarks {
	return &MongoWatermarks{coll: db.Collection(blogViewsCollection)}
}

// EnsureIndexes creates the unique pair index and the per-blog index used on
// blog deletion.
func (m *MongoWatermarks) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "blog_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_blog_unique"),
		},
		{
			Keys:    bson.D{{Key: "blog_id", Value: 1}},
			Options: options.Index().SetName("blog_id"),
		},
	})
	return err
}

func (m *MongoWatermarks) FindOne(ctx context.Context, userID, blogID string) (*BlogView, error) {
	var v BlogView
	err := m.coll.FindOne(ctx, bson.M{"user_id": userID, "blog_id": blogID}).Decode(&v)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, common.ErrRecordNotFound
		default:
			return nil, err
		}
	}

	return &v, nil
}

// Upsert relies on $max so a late writer with an older time cannot move the
// watermark back.
func (m *MongoWatermarks) Upsert(ctx context.Context, userID, blogID string, viewedAt time.Time) error {
	filter := bson.M{"user_id": userID, "blog_id": blogID}
	update := bson.M{
		"$max":         bson.M{"last_viewed_at": viewedAt.UTC()},
		"$setOnInsert": bson.M{"_id": common.NewID()},
	}

	_, err := m.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Two first views raced on insert; the loser retries as an update.
		_, err = m.coll.UpdateOne(ctx, filter, bson.M{"$max": bson.M{"last_viewed_at": viewedAt.UTC()}})
	}
	return err
}

func (m *MongoWatermarks) DeleteByBlog(ctx context.Context, blogID string) error {
	_, err := m.coll.DeleteMany(ctx, bson.M{"blog_id": blogID})
	return err
}
