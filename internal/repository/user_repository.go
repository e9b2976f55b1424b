package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrDuplicateUser = errors.New("username already taken")

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

type userRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) UserRepository {
	return &userRepository{col: db.Collection("users")}
}

func EnsureUserIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *userRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateUser
		}
		slog.Info(err.Error())
		return nil, err
	}
	return user, nil
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := r.col.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &user, nil
}

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
}

func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: make(map[primitive.ObjectID]models.User)}
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.users[oid]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *memoryUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return nil, ErrDuplicateUser
		}
	}

	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return user, nil
}
