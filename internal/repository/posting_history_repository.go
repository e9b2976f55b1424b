package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PostingHistoryRepository stores one row per publish attempt.
type PostingHistoryRepository interface {
	Create(ctx context.Context, ph *models.PostingHistory) (string, error)
	ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error)
}

const postingHistorySchema = `
	CREATE TABLE IF NOT EXISTS posting_history (
		id            BIGSERIAL PRIMARY KEY,
		post_id       TEXT        NOT NULL,
		platform      TEXT        NOT NULL,
		attempt       INTEGER     NOT NULL,
		success       BOOLEAN     NOT NULL,
		external_id   TEXT        NOT NULL DEFAULT '',
		error_message TEXT        NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS posting_history_post_id_idx ON posting_history (post_id);
`

// InitPostgres opens the database, pings it and makes sure the history table exists.
func InitPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err = db.ExecContext(ctx, postingHistorySchema); err != nil {
		_ = db.Close()
		return nil, err
	}

	slog.Info("Postgres initialized")
	return db, nil
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

func (r *postingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (string, error) {
	query := `
		INSERT INTO posting_history (post_id, platform, attempt, success, external_id, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	if ph.CreatedAt.IsZero() {
		ph.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		ph.PostID, string(ph.Platform), ph.Attempt, ph.Success, ph.ExternalID, ph.ErrorMessage, ph.CreatedAt,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	ph.ID = strconv.FormatInt(id, 10)
	return ph.ID, nil
}

func (r *postingHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	query := `
		SELECT id, post_id, platform, attempt, success, external_id, error_message, created_at
		FROM posting_history
		WHERE post_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	phs := make([]*models.PostingHistory, 0)
	for rows.Next() {
		var (
			ph       models.PostingHistory
			id       int64
			platform string
		)
		err := rows.Scan(&id, &ph.PostID, &platform, &ph.Attempt, &ph.Success, &ph.ExternalID, &ph.ErrorMessage, &ph.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ph.ID = strconv.FormatInt(id, 10)
		ph.Platform = models.Platform(platform)
		phs = append(phs, &ph)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return phs, nil
}

type mongoPostingHistoryRepository struct {
	col *mongo.Collection
}

func NewMongoPostingHistoryRepository(db *mongo.Database) PostingHistoryRepository {
	return &mongoPostingHistoryRepository{col: db.Collection("posting_history")}
}

// mongoPostingHistory mirrors models.PostingHistory with a native ObjectID key.
type mongoPostingHistory struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	PostID       string             `bson:"post_id"`
	Platform     models.Platform    `bson:"platform"`
	Attempt      int                `bson:"attempt"`
	Success      bool               `bson:"success"`
	ExternalID   string             `bson:"external_id,omitempty"`
	ErrorMessage string             `bson:"error_message,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func (r *mongoPostingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (string, error) {
	if ph.CreatedAt.IsZero() {
		ph.CreatedAt = time.Now().UTC()
	}

	doc := mongoPostingHistory{
		ID:           primitive.NewObjectID(),
		PostID:       ph.PostID,
		Platform:     ph.Platform,
		Attempt:      ph.Attempt,
		Success:      ph.Success,
		ExternalID:   ph.ExternalID,
		ErrorMessage: ph.ErrorMessage,
		CreatedAt:    ph.CreatedAt,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	ph.ID = doc.ID.Hex()
	return ph.ID, nil
}

func (r *mongoPostingHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.M{"post_id": postID}, opts)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []mongoPostingHistory
	if err := cursor.All(ctx, &docs); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	phs := make([]*models.PostingHistory, 0, len(docs))
	for _, d := range docs {
		phs = append(phs, &models.PostingHistory{
			ID:           d.ID.Hex(),
			PostID:       d.PostID,
			Platform:     d.Platform,
			Attempt:      d.Attempt,
			Success:      d.Success,
			ExternalID:   d.ExternalID,
			ErrorMessage: d.ErrorMessage,
			CreatedAt:    d.CreatedAt,
		})
	}
	return phs, nil
}

type memoryPostingHistoryRepository struct {
	mu   sync.Mutex
	seq  int64
	rows []models.PostingHistory
}

func NewMemoryPostingHistoryRepository() PostingHistoryRepository {
	return &memoryPostingHistoryRepository{}
}

func (r *memoryPostingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	ph.ID = strconv.FormatInt(r.seq, 10)
	if ph.CreatedAt.IsZero() {
		ph.CreatedAt = time.Now().UTC()
	}
	r.rows = append(r.rows, *ph)
	return ph.ID, nil
}

func (r *memoryPostingHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	phs := make([]*models.PostingHistory, 0)
	for i := range r.rows {
		if r.rows[i].PostID == postID {
			ph := r.rows[i]
			phs = append(phs, &ph)
		}
	}
	sort.SliceStable(phs, func(i, j int) bool { return phs[i].CreatedAt.Before(phs[j].CreatedAt) })
	return phs, nil
}
