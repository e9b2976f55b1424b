package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memoryPostRepository is an in-memory test double for PostRepository. Its
// selection queries and attempt guard follow the Mongo repository.
type memoryPostRepository struct {
	mu    sync.RWMutex
	posts map[primitive.ObjectID]*models.Post
	now   func() time.Time
}

func NewMemoryPostRepository() PostRepository {
	return &memoryPostRepository{
		posts: make(map[primitive.ObjectID]*models.Post),
		now:   time.Now,
	}
}

func (r *memoryPostRepository) Create(ctx context.Context, post *models.Post) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	post.ID = primitive.NewObjectID()
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.MetaData == nil {
		post.MetaData = map[string]interface{}{}
	}
	r.posts[post.ID] = post.Clone()
	return post, nil
}

func (r *memoryPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.posts[oid]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

func (r *memoryPostRepository) List(ctx context.Context) ([]*models.Post, error) {
	return r.filter(func(*models.Post) bool { return true }, byScheduledDate), nil
}

func (r *memoryPostRepository) UpdateByID(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[oid]
	if !ok {
		return nil, nil
	}
	if patch.Guard != nil {
		state := p.State(patch.Guard.Platform)
		if state == nil || state.Attempts != patch.Guard.Attempts {
			return nil, ErrAttemptConflict
		}
	}

	patch.Apply(p)
	p.UpdatedAt = r.now().UTC()
	return p.Clone(), nil
}

func (r *memoryPostRepository) Remove(ctx context.Context, id string) (*models.Post, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[oid]
	if !ok {
		return nil, nil
	}
	delete(r.posts, oid)
	return p, nil
}

func (r *memoryPostRepository) ExistsByImageURL(ctx context.Context, imageURL, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, p := range r.posts {
		if id.Hex() == excludeID {
			continue
		}
		if p.ImageURL == imageURL {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryPostRepository) ListDueForFirstPublish(ctx context.Context, platform models.Platform, now time.Time) ([]*models.Post, error) {
	return r.filter(func(p *models.Post) bool {
		state := p.State(platform)
		return state != nil &&
			!p.ScheduledDate.After(now) &&
			p.Targets(platform) &&
			state.Status == models.PostStatusPending &&
			state.Attempts == 0
	}, byScheduledDate), nil
}

func (r *memoryPostRepository) ListDueForRetry(ctx context.Context, platform models.Platform, now time.Time) ([]*models.Post, error) {
	return r.filter(func(p *models.Post) bool {
		state := p.State(platform)
		return state != nil &&
			!p.ScheduledDate.After(now) &&
			p.Targets(platform) &&
			state.Status == models.PostStatusPending &&
			state.Attempts >= 1 &&
			state.LastAttempt != nil
	}, byLastAttempt(platform)), nil
}

func (r *memoryPostRepository) filter(keep func(*models.Post) bool, less func(a, b *models.Post) bool) []*models.Post {
	r.mu.RLock()
	defer r.mu.RUnlock()

	posts := make([]*models.Post, 0)
	for _, p := range r.posts {
		if keep(p) {
			posts = append(posts, p.Clone())
		}
	}
	sort.SliceStable(posts, func(i, j int) bool { return less(posts[i], posts[j]) })
	return posts
}

func byScheduledDate(a, b *models.Post) bool {
	return a.ScheduledDate.Before(b.ScheduledDate)
}

func byLastAttempt(platform models.Platform) func(a, b *models.Post) bool {
	return func(a, b *models.Post) bool {
		return a.State(platform).LastAttempt.Before(*b.State(platform).LastAttempt)
	}
}
