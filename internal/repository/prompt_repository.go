package repository

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PromptRepository interface {
	Create(ctx context.Context, prompt *models.Prompt) (*models.Prompt, error)
	GetByID(ctx context.Context, id string) (*models.Prompt, error)
	List(ctx context.Context) ([]*models.Prompt, error)
	Update(ctx context.Context, id, text string) (*models.Prompt, error)
	Remove(ctx context.Context, id string) (*models.Prompt, error)
}

type promptRepository struct {
	col *mongo.Collection
}

func NewPromptRepository(db *mongo.Database) PromptRepository {
	return &promptRepository{col: db.Collection("prompts")}
}

func (r *promptRepository) Create(ctx context.Context, prompt *models.Prompt) (*models.Prompt, error) {
	now := time.Now().UTC()
	prompt.ID = primitive.NewObjectID()
	prompt.CreatedAt = now
	prompt.UpdatedAt = now

	if _, err := r.col.InsertOne(ctx, prompt); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return prompt, nil
}

func (r *promptRepository) GetByID(ctx context.Context, id string) (*models.Prompt, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	var prompt models.Prompt
	err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&prompt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &prompt, nil
}

// List returns prompts newest first.
func (r *promptRepository) List(ctx context.Context) ([]*models.Prompt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	prompts := make([]*models.Prompt, 0)
	if err := cursor.All(ctx, &prompts); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return prompts, nil
}

func (r *promptRepository) Update(ctx context.Context, id, text string) (*models.Prompt, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	update := bson.M{"$set": bson.M{"text": text, "updated_at": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var prompt models.Prompt
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&prompt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &prompt, nil
}

func (r *promptRepository) Remove(ctx context.Context, id string) (*models.Prompt, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	var prompt models.Prompt
	err := r.col.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&prompt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &prompt, nil
}

type memoryPromptRepository struct {
	mu      sync.RWMutex
	prompts map[primitive.ObjectID]models.Prompt
}

func NewMemoryPromptRepository() PromptRepository {
	return &memoryPromptRepository{prompts: make(map[primitive.ObjectID]models.Prompt)}
}

func (r *memoryPromptRepository) Create(ctx context.Context, prompt *models.Prompt) (*models.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	prompt.ID = primitive.NewObjectID()
	prompt.CreatedAt = now
	prompt.UpdatedAt = now
	r.prompts[prompt.ID] = *prompt
	return prompt, nil
}

func (r *memoryPromptRepository) GetByID(ctx context.Context, id string) (*models.Prompt, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.prompts[oid]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r *memoryPromptRepository) List(ctx context.Context) ([]*models.Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prompts := make([]*models.Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		p := p
		prompts = append(prompts, &p)
	}
	sort.SliceStable(prompts, func(i, j int) bool { return prompts[i].CreatedAt.After(prompts[j].CreatedAt) })
	return prompts, nil
}

func (r *memoryPromptRepository) Update(ctx context.Context, id, text string) (*models.Prompt, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prompts[oid]
	if !ok {
		return nil, nil
	}
	p.Text = text
	p.UpdatedAt = time.Now().UTC()
	r.prompts[oid] = p
	return &p, nil
}

func (r *memoryPromptRepository) Remove(ctx context.Context, id string) (*models.Prompt, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prompts[oid]
	if !ok {
		return nil, nil
	}
	delete(r.prompts, oid)
	return &p, nil
}
