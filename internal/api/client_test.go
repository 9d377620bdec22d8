package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/media-wall/internal/core"
	"github.com/sho7650/media-wall/internal/reconcile"
)

func serve(t *testing.T, status int, body string, inspect func(r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL+"/", zerolog.Nop())
}

func pull(token string) reconcile.PullRequest {
	return reconcile.PullRequest{ShareToken: token, Quality: "display", MaxItems: 50, RequestID: "req-1"}
}

func TestClient_FetchBuildsRequest(t *testing.T) {
	var got *http.Request
	c := serve(t, http.StatusOK, `{"status":true,"data":{"items":[]}}`, func(r *http.Request) { got = r })

	_, err := c.Fetch(context.Background(), pull("wedding 2026"))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/api/events/wedding 2026/wall", got.URL.Path)
	assert.Equal(t, "display", got.URL.Query().Get("quality"))
	assert.Equal(t, "50", got.URL.Query().Get("maxItems"))
	assert.Equal(t, "req-1", got.Header.Get("X-Request-ID"))
}

func TestClient_FetchNormalizesSnapshot(t *testing.T) {
	c := serve(t, http.StatusOK, `{
		"status": true,
		"data": {
			"items": [
				{"id": "m1", "imageUrl": "https://cdn.example.com/m1.jpg", "uploaderName": "Ana", "uploadedAt": "2026-06-01T17:00:00Z"},
				{"id": "m2", "thumbnailUrl": "https://cdn.example.com/t/m2.jpg", "uploadedBy": {"name": "Ben"}},
				{"id": "", "imageUrl": "https://cdn.example.com/orphan.jpg"},
				{"id": "m3"}
			],
			"settings": {
				"displayMode": "grid",
				"autoAdvance": false,
				"transitionDuration": 7500,
				"isEnabled": true,
				"showUploaderNames": true,
				"newImageInsertion": "smart_priority"
			},
			"sessionId": "sess-42",
			"stats": {"totalImages": 12, "viewerCount": 3}
		}
	}`, nil)

	snap, err := c.Fetch(context.Background(), pull("tok"))

	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "m1", snap.Items[0].ID)
	assert.Equal(t, "Ana", snap.Items[0].UploaderName)
	assert.Equal(t, time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC), snap.Items[0].UploadedAt)
	assert.Equal(t, "https://cdn.example.com/t/m2.jpg", snap.Items[1].ImageURL)
	assert.Equal(t, "Ben", snap.Items[1].UploaderName)

	assert.Equal(t, core.Settings{
		DisplayMode:        core.DisplayModeGrid,
		AutoAdvance:        false,
		TransitionDuration: 7500 * time.Millisecond,
		IsEnabled:          true,
		ShowUploaderNames:  true,
		NewImageInsertion:  core.InsertSmartPriority,
	}, snap.Settings)
	assert.Equal(t, "sess-42", snap.SessionID)
	require.NotNil(t, snap.Stats)
	require.NotNil(t, snap.Stats.TotalImages)
	assert.Equal(t, 12, *snap.Stats.TotalImages)
	require.NotNil(t, snap.Stats.ViewerCount)
	assert.Equal(t, 3, *snap.Stats.ViewerCount)
}

func TestClient_PartialStatsKeepAbsentFieldsNil(t *testing.T) {
	c := serve(t, http.StatusOK, `{"status":true,"data":{"items":[],"stats":{"totalImages":5}}}`, nil)

	snap, err := c.Fetch(context.Background(), pull("tok"))

	require.NoError(t, err)
	require.NotNil(t, snap.Stats)
	require.NotNil(t, snap.Stats.TotalImages)
	assert.Equal(t, 5, *snap.Stats.TotalImages)
	assert.Nil(t, snap.Stats.ViewerCount)
}

func TestClient_MissingSettingsUseDefaults(t *testing.T) {
	c := serve(t, http.StatusOK, `{"status":true,"data":{"items":[],"settings":{"newImageInsertion":"sideways"}}}`, nil)

	snap, err := c.Fetch(context.Background(), pull("tok"))

	require.NoError(t, err)
	want := core.DefaultSettings()
	want.NewImageInsertion = core.InsertEndOfQueue
	assert.Equal(t, want, snap.Settings)
	assert.Nil(t, snap.Stats)
	assert.Empty(t, snap.Items)
}

func TestClient_Failures(t *testing.T) {
	t.Run("status false", func(t *testing.T) {
		c := serve(t, http.StatusOK, `{"status":false,"message":"event closed"}`, nil)

		_, err := c.Fetch(context.Background(), pull("tok"))

		assert.ErrorIs(t, err, ErrServerReported)
		assert.Contains(t, err.Error(), "event closed")
	})

	t.Run("non-2xx", func(t *testing.T) {
		c := serve(t, http.StatusNotFound, `{"status":false,"message":"unknown share token"}`, nil)

		_, err := c.Fetch(context.Background(), pull("tok"))

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.Code)
		assert.Equal(t, "unknown share token", statusErr.Message)
	})

	t.Run("non-json body", func(t *testing.T) {
		c := serve(t, http.StatusOK, `<html>maintenance</html>`, nil)

		_, err := c.Fetch(context.Background(), pull("tok"))

		assert.Error(t, err)
	})

	t.Run("empty share token", func(t *testing.T) {
		c := NewClient(nil, "http://127.0.0.1:1", zerolog.Nop())

		_, err := c.Fetch(context.Background(), pull("  "))

		assert.ErrorIs(t, err, core.ErrInvalidShareToken)
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := serve(t, http.StatusOK, `{"status":true,"data":{}}`, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.Fetch(ctx, pull("tok"))

		assert.ErrorIs(t, err, context.Canceled)
	})
}
