package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrAttemptConflict is returned when a guarded update finds the attempt
// counter already moved by someone else.
var ErrAttemptConflict = errors.New("attempt counter changed concurrently")

// InitMongo connects, pings and returns the named database.
func InitMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetMonitor(logger.NewMongoMonitor()),
	)
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	slog.Info("MongoDB initialized", "db", database)
	return client.Database(database), nil
}

func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}
