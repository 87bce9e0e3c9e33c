package asc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asccrash/asccrash/internal/model"
)

type staticTokens struct {
	calls atomic.Int32
}

func (s *staticTokens) Token() (string, error) {
	s.calls.Add(1)
	return "test-token", nil
}

type failingTokens struct{}

func (failingTokens) Token() (string, error) { return "", errors.New("bad key") }

func newTestClient(t *testing.T, handler http.Handler) (*Client, *staticTokens, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &staticTokens{}
	c, err := NewClient(Options{
		BaseURL:    srv.URL,
		Tokens:     tokens,
		HTTPClient: srv.Client(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return c, tokens, srv
}

func TestNewClient_RequiresTokens(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
}

func TestFirstPageURL(t *testing.T) {
	c, err := NewClient(Options{Tokens: &staticTokens{}})
	require.NoError(t, err)

	u := c.FirstPageURL(model.KindCrash, "123")
	assert.True(t, strings.HasPrefix(u, DefaultBaseURL+"/v1/apps/123/betaFeedbackCrashSubmissions?"))
	assert.Contains(t, u, "sort=-createdDate")
	assert.Contains(t, u, "limit=200")

	fb := c.FirstPageURL(model.KindFeedback, "123")
	assert.Contains(t, fb, "/v1/apps/123/betaFeedbackScreenshotSubmissions?")
}

func TestFindApp(t *testing.T) {
	c, tokens, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/apps", r.URL.Path)
		if r.URL.Query().Get("filter[bundleId]") == "com.example.app" {
			fmt.Fprint(w, `{"data":[{"id":"999","attributes":{"bundleId":"com.example.app","name":"Example"}}],"links":{}}`)
			return
		}
		fmt.Fprint(w, `{"data":[],"links":{}}`)
	}))

	app, err := c.FindApp(context.Background(), "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, "999", app.ID)
	require.NotNil(t, app.Name)
	assert.Equal(t, "Example", *app.Name)
	assert.Equal(t, int32(1), tokens.calls.Load())

	_, err = c.FindApp(context.Background(), "com.example.missing")
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestFindApp_RequiresExactBundleID(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":"1","attributes":{"name":"No Bundle"}},
			{"id":"2","attributes":{"bundleId":"com.example.app.widget"}},
			{"id":"3","attributes":{"bundleId":"com.example.app"}}
		],"links":{}}`)
	}))

	app, err := c.FindApp(context.Background(), "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, "3", app.ID)

	c, _, _ = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"1","attributes":{"name":"No Bundle"}}],"links":{}}`)
	}))
	_, err = c.FindApp(context.Background(), "com.example.app")
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestListApps_FollowsPages(t *testing.T) {
	var srvURL string
	c, _, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprintf(w, `{"data":[{"id":"1","attributes":{"bundleId":"a","name":"A"}}],"links":{"next":"%s/v1/apps?cursor=2"}}`, srvURL)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"2","attributes":{"bundleId":"b"}}],"links":{}}`)
	}))
	srvURL = srv.URL

	apps, err := c.ListApps(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "2", apps[1].ID)
	assert.Nil(t, apps[1].Name)
}

func TestFetchPage_MapsAttributes(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"data": [
				{
					"id": "sub-1",
					"attributes": {
						"createdDate": "2025-02-01T10:00:00.000Z",
						"deviceModel": "iPhone15,2",
						"osVersion": "18.1",
						"batteryPercentage": 77,
						"email": "t@example.com",
						"comment": "boom"
					},
					"relationships": {"build": {"data": {"type": "builds", "id": "build-9"}}}
				},
				{"id": "sub-2"}
			],
			"links": {"next": "https://example.test/next"}
		}`)
	}))

	page, err := c.FetchPage(context.Background(), model.KindCrash, c.FirstPageURL(model.KindCrash, "1"))
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "https://example.test/next", page.Next)

	first := page.Entries[0]
	assert.Equal(t, model.KindCrash, first.Kind)
	assert.Equal(t, "sub-1", first.SubmissionID)
	assert.Equal(t, 2025, first.CreatedAt.Year())
	require.NotNil(t, first.BatteryPercentage)
	assert.Equal(t, int64(77), *first.BatteryPercentage)
	require.NotNil(t, first.BuildID)
	assert.Equal(t, "build-9", *first.BuildID)
	require.NotNil(t, first.TesterComment)
	assert.Equal(t, "boom", *first.TesterComment)

	second := page.Entries[1]
	assert.True(t, second.CreatedAt.IsZero())
	assert.Nil(t, second.DeviceModel)
}

func TestFetchPage_APIError(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"status":"401"}]}`, http.StatusUnauthorized)
	}))

	_, err := c.FetchPage(context.Background(), model.KindCrash, c.FirstPageURL(model.KindCrash, "1"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Body, "401")
}

func TestFetchPage_TokenError(t *testing.T) {
	c, err := NewClient(Options{Tokens: failingTokens{}, BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.FetchPage(context.Background(), model.KindCrash, "http://127.0.0.1:1/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestFetchArtifact_CrashLog(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/betaFeedbackCrashSubmissions/ready/crashLog":
			assert.Equal(t, "logText", r.URL.Query().Get("fields[betaCrashLogs]"))
			fmt.Fprint(w, `{"data":{"type":"betaCrashLogs","id":"x","attributes":{"logText":"Exception Type: EXC_BAD_ACCESS"}}}`)
		case "/v1/betaFeedbackCrashSubmissions/broken/crashLog":
			http.Error(w, "oops", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	art, err := c.FetchArtifact(ctx, model.KindCrash, "ready")
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "Exception Type: EXC_BAD_ACCESS", string(art.Data))

	art, err = c.FetchArtifact(ctx, model.KindCrash, "pending")
	require.NoError(t, err)
	assert.Nil(t, art)

	_, err = c.FetchArtifact(ctx, model.KindCrash, "broken")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestFetchArtifact_Screenshot(t *testing.T) {
	var srvURL string
	var assetAuth atomic.Value
	c, _, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/betaFeedbackScreenshotSubmissions/with-image":
			fmt.Fprintf(w, `{"data":{"id":"with-image","attributes":{"screenshots":[{"url":"%s/assets/1.jpg","width":100,"height":200}]}}}`, srvURL)
		case "/v1/betaFeedbackScreenshotSubmissions/no-image":
			fmt.Fprint(w, `{"data":{"id":"no-image","attributes":{"screenshots":[]}}}`)
		case "/assets/1.jpg":
			assetAuth.Store(r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
		default:
			http.NotFound(w, r)
		}
	}))
	srvURL = srv.URL
	ctx := context.Background()

	art, err := c.FetchArtifact(ctx, model.KindFeedback, "with-image")
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "image/jpeg", art.MediaType)
	assert.Len(t, art.Data, 3)
	assert.Equal(t, "", assetAuth.Load())

	art, err = c.FetchArtifact(ctx, model.KindFeedback, "no-image")
	require.NoError(t, err)
	assert.Nil(t, art)

	art, err = c.FetchArtifact(ctx, model.KindFeedback, "unknown")
	require.NoError(t, err)
	assert.Nil(t, art)
}
