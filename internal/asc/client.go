// Package asc is a minimal App Store Connect API client covering the
// TestFlight feedback endpoints: apps, crash submissions, crash logs and
// screenshot submissions.
package asc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/asccrash/asccrash/internal/model"
)

const (
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://api.appstoreconnect.apple.com"
	// DefaultPageSize is the largest page the feedback endpoints accept.
	DefaultPageSize = 200

	maxErrorBody = 4 * 1024
	userAgent    = "asccrash"
)

var crashFields = []string{
	"createdDate", "comment", "email", "deviceModel", "osVersion", "locale",
	"timeZone", "architecture", "connectionType", "appUptimeInMilliseconds",
	"diskBytesAvailable", "diskBytesTotal", "batteryPercentage",
	"screenWidthInPoints", "screenHeightInPoints", "appPlatform",
	"devicePlatform", "deviceFamily", "buildBundleId", "build", "tester",
}

var feedbackFields = []string{
	"createdDate", "comment", "email", "deviceModel", "osVersion", "locale",
	"timeZone", "connectionType", "batteryPercentage", "appPlatform",
	"devicePlatform", "deviceFamily", "buildBundleId", "build", "tester",
}

// ErrAppNotFound is returned by FindApp when no app has the bundle id.
var ErrAppNotFound = errors.New("app not found")

// APIError is a non-2xx response other than an expected 404.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("API %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("API %d %s: %s", e.Status, http.StatusText(e.Status), body)
}

// TokenSource supplies a bearer token for each request.
type TokenSource interface {
	Token() (string, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Timeout    time.Duration // used only when HTTPClient is nil; 0 means none
	PageSize   int
	Logger     zerolog.Logger
}

// Client talks to App Store Connect. Calls are sequential; the client holds
// no per-request state and is safe to reuse.
type Client struct {
	baseURL  string
	tokens   TokenSource
	http     *http.Client
	pageSize int
	log      zerolog.Logger
}

// NewClient validates opts and returns a client.
func NewClient(opts Options) (*Client, error) {
	if opts.Tokens == nil {
		return nil, errors.New("asc: token source is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}

	return &Client{
		baseURL:  baseURL,
		tokens:   opts.Tokens,
		http:     httpClient,
		pageSize: pageSize,
		log:      opts.Logger.With().Str("component", "asc").Logger(),
	}, nil
}

// ListApps returns every app visible to the API key.
func (c *Client) ListApps(ctx context.Context) ([]model.RemoteApp, error) {
	q := url.Values{}
	q.Set("fields[apps]", "name,bundleId")
	q.Set("limit", strconv.Itoa(c.pageSize))
	next := c.baseURL + "/v1/apps?" + q.Encode()

	var apps []model.RemoteApp
	for next != "" {
		var resp appsResponse
		if _, err := c.getJSON(ctx, next, false, &resp); err != nil {
			return nil, fmt.Errorf("failed to list apps: %w", err)
		}
		for _, a := range resp.Data {
			apps = append(apps, a.toRemoteApp())
		}
		next = ""
		if resp.Links.Next != nil {
			next = *resp.Links.Next
		}
	}
	return apps, nil
}

// FindApp looks an app up by bundle id. Returns ErrAppNotFound when absent.
func (c *Client) FindApp(ctx context.Context, bundleID string) (*model.RemoteApp, error) {
	q := url.Values{}
	q.Set("filter[bundleId]", bundleID)
	q.Set("fields[apps]", "name,bundleId")

	var resp appsResponse
	if _, err := c.getJSON(ctx, c.baseURL+"/v1/apps?"+q.Encode(), false, &resp); err != nil {
		return nil, fmt.Errorf("failed to look up app %s: %w", bundleID, err)
	}
	// The filter is a prefix match on some accounts; insist on an exact bundle id.
	for _, a := range resp.Data {
		app := a.toRemoteApp()
		if app.BundleID != nil && *app.BundleID == bundleID {
			return &app, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", bundleID, ErrAppNotFound)
}

// FirstPageURL builds the first page URL for kind, newest first.
func (c *Client) FirstPageURL(kind model.Kind, appID string) string {
	resource := resourceFor(kind)
	fields := crashFields
	if kind == model.KindFeedback {
		fields = feedbackFields
	}

	q := url.Values{}
	q.Set("fields["+resource+"]", strings.Join(fields, ","))
	q.Set("sort", "-createdDate")
	q.Set("limit", strconv.Itoa(c.pageSize))
	return c.baseURL + "/v1/apps/" + url.PathEscape(appID) + "/" + resource + "?" + q.Encode()
}

// FetchPage fetches one page of submissions. Entries carry no SourceID.
func (c *Client) FetchPage(ctx context.Context, kind model.Kind, pageURL string) (*model.Page, error) {
	var resp submissionsResponse
	if _, err := c.getJSON(ctx, pageURL, false, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch %s page: %w", kind.Label(), err)
	}

	page := &model.Page{Entries: make([]model.NewSubmission, 0, len(resp.Data))}
	for i := range resp.Data {
		page.Entries = append(page.Entries, resp.Data[i].toNewSubmission(kind))
	}
	if resp.Links.Next != nil {
		page.Next = *resp.Links.Next
	}
	return page, nil
}

// FetchArtifact downloads the crash log or first screenshot of a submission.
// It returns nil, nil when the artifact is not available yet.
func (c *Client) FetchArtifact(ctx context.Context, kind model.Kind, submissionID string) (*model.Artifact, error) {
	if kind == model.KindFeedback {
		return c.fetchScreenshot(ctx, submissionID)
	}
	return c.fetchCrashLog(ctx, submissionID)
}

func (c *Client) fetchCrashLog(ctx context.Context, submissionID string) (*model.Artifact, error) {
	u := c.baseURL + "/v1/betaFeedbackCrashSubmissions/" + url.PathEscape(submissionID) +
		"/crashLog?" + url.Values{"fields[betaCrashLogs]": {"logText"}}.Encode()

	var resp crashLogResponse
	found, err := c.getJSON(ctx, u, true, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch crash log for %s: %w", submissionID, err)
	}
	if !found || resp.Data.Attributes == nil || resp.Data.Attributes.LogText == nil {
		return nil, nil
	}
	return &model.Artifact{
		Data:      []byte(*resp.Data.Attributes.LogText),
		MediaType: "text/plain",
	}, nil
}

func (c *Client) fetchScreenshot(ctx context.Context, submissionID string) (*model.Artifact, error) {
	resource := resourceFor(model.KindFeedback)
	u := c.baseURL + "/v1/" + resource + "/" + url.PathEscape(submissionID) +
		"?" + url.Values{"fields[" + resource + "]": {"screenshots"}}.Encode()

	var resp screenshotSubmissionResponse
	found, err := c.getJSON(ctx, u, true, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch screenshot submission %s: %w", submissionID, err)
	}
	if !found || resp.Data.Attributes == nil {
		return nil, nil
	}

	var imageURL string
	for _, s := range resp.Data.Attributes.Screenshots {
		if s.URL != "" {
			imageURL = s.URL
			break
		}
	}
	if imageURL == "" {
		return nil, nil
	}

	return c.download(ctx, imageURL)
}

// download fetches a signed asset URL. These URLs carry their own
// credentials, so no bearer token is sent.
func (c *Client) download(ctx context.Context, assetURL string) (*model.Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.log.Debug().Str("url", assetURL).Msg("GET asset")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download: %w", err)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return &model.Artifact{Data: data, MediaType: mediaType}, nil
}

// getJSON performs an authenticated GET and decodes the body into out.
// With notFoundOK a 404 returns found=false instead of an error.
func (c *Client) getJSON(ctx context.Context, u string, notFoundOK bool, out interface{}) (found bool, err error) {
	token, err := c.tokens.Token()
	if err != nil {
		return false, fmt.Errorf("failed to mint token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.log.Debug().Str("url", u).Msg("GET")
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFoundOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return false, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return true, nil
}

func resourceFor(kind model.Kind) string {
	if kind == model.KindFeedback {
		return "betaFeedbackScreenshotSubmissions"
	}
	return "betaFeedbackCrashSubmissions"
}

func (a appResource) toRemoteApp() model.RemoteApp {
	app := model.RemoteApp{ID: a.ID}
	if a.Attributes != nil {
		app.BundleID = a.Attributes.BundleID
		app.Name = a.Attributes.Name
	}
	return app
}
