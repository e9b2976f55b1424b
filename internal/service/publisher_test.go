package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type graphFake struct {
	createCalls  atomic.Int32
	statusCalls  atomic.Int32
	publishCalls atomic.Int32
	infoCalls    atomic.Int32

	// finishAfter is the status poll that first reports FINISHED; 0 never finishes.
	finishAfter int32
	failCreate  bool
	failPublish bool
	failInfo    bool
	authHeader  atomic.Value
}

func (f *graphFake) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v22.0/ig-user/media", func(w http.ResponseWriter, r *http.Request) {
		f.createCalls.Add(1)
		f.authHeader.Store(r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "https://example.com/a.jpg", r.URL.Query().Get("image_url"))
		assert.Equal(t, "hello world", r.URL.Query().Get("caption"))
		if f.failCreate {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": map[string]interface{}{"message": "Invalid image", "code": 9004, "fbtrace_id": "abc"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "container-1"})
	})
	mux.HandleFunc("/v22.0/container-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.statusCalls.Add(1)
		assert.Equal(t, "status_code", r.URL.Query().Get("fields"))
		status := "IN_PROGRESS"
		if f.finishAfter > 0 && n >= f.finishAfter {
			status = "FINISHED"
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "container-1", "status_code": status})
	})
	mux.HandleFunc("/v22.0/ig-user/media_publish", func(w http.ResponseWriter, r *http.Request) {
		f.publishCalls.Add(1)
		assert.Equal(t, "container-1", r.URL.Query().Get("creation_id"))
		if f.failPublish {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error": map[string]interface{}{"message": "boom"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "media-9"})
	})
	mux.HandleFunc("/v22.0/media-9", func(w http.ResponseWriter, r *http.Request) {
		f.infoCalls.Add(1)
		if f.failInfo {
			writeJSON(w, http.StatusInternalServerError, map[string]string{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"id":        "media-9",
			"media_url": "https://cdn.instagram.com/media-9.jpg",
			"permalink": "https://instagram.com/p/xyz",
		})
	})
	return mux
}

func testGraphConfig(baseURL string) config.Config {
	return config.Config{
		Graph: config.Graph{
			BaseURL:      baseURL,
			Timeout:      5 * time.Second,
			PollInterval: time.Millisecond,
			MaxPolls:     10,
		},
		Instagram: config.Instagram{UserID: "ig-user", AccessToken: "ig-token", APIVersion: "v22.0"},
		Facebook:  config.Facebook{PageID: "fb-page", AccessToken: "fb-token", APIVersion: "v18.0"},
	}
}

func testPost() *models.Post {
	return &models.Post{
		ID:       primitive.NewObjectID(),
		Caption:  "hello world",
		ImageURL: "https://example.com/a.jpg",
	}
}

func TestInstagramService_Publish(t *testing.T) {
	t.Run("three step flow with enrichment", func(t *testing.T) {
		fake := &graphFake{finishAfter: 3}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		ig, err := NewInstagramService(testGraphConfig(srv.URL))
		require.NoError(t, err)

		res, err := ig.Publish(context.Background(), testPost())
		require.NoError(t, err)
		assert.Equal(t, "media-9", res.ExternalID)
		assert.Equal(t, "https://cdn.instagram.com/media-9.jpg", res.MediaURL)
		assert.Equal(t, "https://instagram.com/p/xyz", res.Permalink)
		assert.Equal(t, int32(3), fake.statusCalls.Load())
		assert.Equal(t, int32(1), fake.publishCalls.Load())
		assert.Equal(t, "Bearer ig-token", fake.authHeader.Load())
	})

	t.Run("poll cap reached", func(t *testing.T) {
		fake := &graphFake{}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		ig, err := NewInstagramService(testGraphConfig(srv.URL))
		require.NoError(t, err)

		_, err = ig.Publish(context.Background(), testPost())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrContainerNotReady)
		assert.Equal(t, int32(10), fake.statusCalls.Load())
		assert.Equal(t, int32(0), fake.publishCalls.Load())
	})

	t.Run("container rejected", func(t *testing.T) {
		fake := &graphFake{failCreate: true}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		ig, err := NewInstagramService(testGraphConfig(srv.URL))
		require.NoError(t, err)

		_, err = ig.Publish(context.Background(), testPost())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrContainerCreation)

		var re *RemoteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, http.StatusBadRequest, re.StatusCode)

		var ge *GraphError
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, "Invalid image", ge.Message)
		assert.Equal(t, int32(0), fake.statusCalls.Load())
	})

	t.Run("publish rejected", func(t *testing.T) {
		fake := &graphFake{finishAfter: 1, failPublish: true}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		ig, err := NewInstagramService(testGraphConfig(srv.URL))
		require.NoError(t, err)

		_, err = ig.Publish(context.Background(), testPost())
		assert.ErrorIs(t, err, ErrPublish)
	})

	t.Run("enrichment failure is swallowed", func(t *testing.T) {
		fake := &graphFake{finishAfter: 1, failInfo: true}
		srv := httptest.NewServer(fake.handler(t))
		defer srv.Close()

		ig, err := NewInstagramService(testGraphConfig(srv.URL))
		require.NoError(t, err)

		res, err := ig.Publish(context.Background(), testPost())
		require.NoError(t, err)
		assert.Equal(t, "media-9", res.ExternalID)
		assert.Empty(t, res.MediaURL)
		assert.Equal(t, int32(1), fake.infoCalls.Load())
	})
}

func TestNewInstagramService_MissingCredentials(t *testing.T) {
	_, err := NewInstagramService(config.Config{})
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, models.PlatformInstagram, ce.Platform)
	assert.Equal(t, []string{"IG_USER_ID", "IG_ACCESS_TOKEN"}, ce.Missing)
}

func TestFacebookService_Publish(t *testing.T) {
	var photoCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v18.0/fb-page/photos", func(w http.ResponseWriter, r *http.Request) {
		photoCalls.Add(1)
		assert.Equal(t, "https://example.com/a.jpg", r.URL.Query().Get("url"))
		assert.Equal(t, "true", r.URL.Query().Get("published"))
		assert.Equal(t, "Bearer fb-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"id": "fb-1"})
	})
	mux.HandleFunc("/v18.0/fb-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "permalink_url", r.URL.Query().Get("fields"))
		writeJSON(w, http.StatusOK, map[string]string{"id": "fb-1", "permalink_url": "https://facebook.com/fb-1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fb, err := NewFacebookService(testGraphConfig(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, models.PlatformFacebook, fb.Platform())

	res, err := fb.Publish(context.Background(), testPost())
	require.NoError(t, err)
	assert.Equal(t, "fb-1", res.ExternalID)
	assert.Equal(t, "https://facebook.com/fb-1", res.Permalink)
	assert.Empty(t, res.MediaURL)
	assert.Equal(t, int32(1), photoCalls.Load())
}

func TestFacebookService_PublishRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error": map[string]interface{}{"message": "Permissions error", "code": 200},
		})
	}))
	defer srv.Close()

	fb, err := NewFacebookService(testGraphConfig(srv.URL))
	require.NoError(t, err)

	_, err = fb.Publish(context.Background(), testPost())
	assert.ErrorIs(t, err, ErrPublish)
}
