package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) (*models.Post, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context) ([]*models.Post, error)
	// UpdateByID applies a field-level patch atomically and returns the updated post.
	UpdateByID(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error)
	Remove(ctx context.Context, id string) (*models.Post, error)
	ExistsByImageURL(ctx context.Context, imageURL, excludeID string) (bool, error)
	ListDueForFirstPublish(ctx context.Context, platform models.Platform, now time.Time) ([]*models.Post, error)
	ListDueForRetry(ctx context.Context, platform models.Platform, now time.Time) ([]*models.Post, error)
}

type postRepository struct {
	col *mongo.Collection
}

func NewPostRepository(db *mongo.Database) PostRepository {
	return &postRepository{col: db.Collection("posts")}
}

// EnsurePostIndexes creates the indexes backing the two selection queries.
func EnsurePostIndexes(ctx context.Context, db *mongo.Database) error {
	var indexes []mongo.IndexModel
	for _, p := range models.Platforms {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{
				{Key: string(p) + ".status", Value: 1},
				{Key: string(p) + ".attempts", Value: 1},
				{Key: "scheduled_date", Value: 1},
			},
		})
	}
	indexes = append(indexes, mongo.IndexModel{Keys: bson.D{{Key: "image_url", Value: 1}}})
	_, err := db.Collection("posts").Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (*models.Post, error) {
	now := time.Now().UTC()
	post.ID = primitive.NewObjectID()
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.MetaData == nil {
		post.MetaData = map[string]interface{}{}
	}

	if _, err := r.col.InsertOne(ctx, post); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	var post models.Post
	err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context) ([]*models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: 1}})
	return r.find(ctx, bson.M{}, opts)
}

func (r *postRepository) UpdateByID(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var post models.Post
	err := r.col.FindOneAndUpdate(ctx, updateFilter(oid, patch), bson.M{"$set": setDocument(patch)}, opts).Decode(&post)
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			slog.Info(err.Error())
			return nil, err
		}
		if patch.Guard == nil {
			return nil, nil
		}
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, guardMiss(existing != nil)
	}
	return &post, nil
}

// updateFilter matches the post and, for a guarded patch, only while the
// platform's attempts still hold the value the caller read.
func updateFilter(oid primitive.ObjectID, patch models.PostPatch) bson.M {
	filter := bson.M{"_id": oid}
	if patch.Guard != nil {
		filter[string(patch.Guard.Platform)+".attempts"] = patch.Guard.Attempts
	}
	return filter
}

// guardMiss classifies a guarded update that matched nothing.
func guardMiss(exists bool) error {
	if exists {
		return ErrAttemptConflict
	}
	return nil
}

func (r *postRepository) Remove(ctx context.Context, id string) (*models.Post, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	var post models.Post
	err := r.col.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ExistsByImageURL(ctx context.Context, imageURL, excludeID string) (bool, error) {
	filter := bson.M{"image_url": imageURL}
	if oid, ok := objectID(excludeID); ok {
		filter["_id"] = bson.M{"$ne": oid}
	}

	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n > 0, nil
}

func (r *postRepository) ListDueForFirstPublish(ctx context.Context, platform models.Platform, now time.Time) ([]*models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: 1}})
	return r.find(ctx, firstPublishFilter(platform, now), opts)
}

func firstPublishFilter(platform models.Platform, now time.Time) bson.M {
	prefix := string(platform) + "."
	return bson.M{
		"scheduled_date":     bson.M{"$lte": now},
		"platforms":          platform,
		prefix + "status":   models.PostStatusPending,
		prefix + "attempts": 0,
	}
}

// ListDueForRetry returns non-terminal posts with at least one attempt. The
// retry delay and attempt cap are not evaluated here; callers re-check them
// with the retry policy. A pending post already at its cap is still returned
// so the orchestrator can settle it as failed.
func (r *postRepository) ListDueForRetry(ctx context.Context, platform models.Platform, now time.Time) ([]*models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: string(platform) + ".last_attempt", Value: 1}})
	return r.find(ctx, retryFilter(platform, now), opts)
}

func retryFilter(platform models.Platform, now time.Time) bson.M {
	prefix := string(platform) + "."
	return bson.M{
		"scheduled_date":         bson.M{"$lte": now},
		"platforms":              platform,
		prefix + "status":       models.PostStatusPending,
		prefix + "attempts":     bson.M{"$gte": 1},
		prefix + "last_attempt": bson.M{"$ne": nil},
	}
}

func (r *postRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*models.Post, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	posts := make([]*models.Post, 0)
	if err := cursor.All(ctx, &posts); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func setDocument(patch models.PostPatch) bson.M {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Caption != nil {
		set["caption"] = *patch.Caption
	}
	if patch.ImageURL != nil {
		set["image_url"] = *patch.ImageURL
	}
	if patch.ScheduledDate != nil {
		set["scheduled_date"] = *patch.ScheduledDate
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.PostedAt != nil {
		set["posted_at"] = *patch.PostedAt
	}
	if patch.MaxRetryAttempts != nil {
		set["max_retry_attempts"] = *patch.MaxRetryAttempts
	}
	if patch.RetryDelayMS != nil {
		set["retry_delay_ms"] = *patch.RetryDelayMS
	}
	for k, v := range patch.MetaData {
		set["meta_data."+k] = v
	}
	for platform, pp := range patch.Platforms {
		prefix := string(platform) + "."
		if pp.Status != nil {
			set[prefix+"status"] = *pp.Status
		}
		if pp.Attempts != nil {
			set[prefix+"attempts"] = *pp.Attempts
		}
		if pp.LastAttempt != nil {
			set[prefix+"last_attempt"] = *pp.LastAttempt
		}
		if pp.ExternalID != nil {
			set[prefix+"external_id"] = *pp.ExternalID
		}
		if pp.MediaURL != nil {
			set[prefix+"media_url"] = *pp.MediaURL
		}
		if pp.Permalink != nil {
			set[prefix+"permalink"] = *pp.Permalink
		}
		if pp.PostedAt != nil {
			set[prefix+"posted_at"] = *pp.PostedAt
		}
		if pp.LastError != nil {
			set[prefix+"last_error"] = *pp.LastError
		}
	}
	return set
}
