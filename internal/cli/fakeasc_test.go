package cli

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pngBytes is enough of a PNG for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image")

type fakeSubmission struct {
	ID        string
	CreatedAt time.Time
	Device    string
	OS        string
	Comment   string
}

// fakeASC serves the slice of the App Store Connect API that sync uses.
type fakeASC struct {
	server *httptest.Server

	mu          gosync.Mutex
	apps        map[string]string // bundle id -> app id
	crashes     map[string][]fakeSubmission
	feedbacks   map[string][]fakeSubmission
	logs        map[string]string
	screenshots map[string]bool
	failApps    map[string]bool
}

func newFakeASC(t *testing.T) *fakeASC {
	t.Helper()
	f := &fakeASC{
		apps:        map[string]string{},
		crashes:     map[string][]fakeSubmission{},
		feedbacks:   map[string][]fakeSubmission{},
		logs:        map[string]string{},
		screenshots: map[string]bool{},
		failApps:    map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/apps", f.handleApps)
	mux.HandleFunc("GET /v1/apps/{id}/betaFeedbackCrashSubmissions", f.handleList(f.crashes))
	mux.HandleFunc("GET /v1/apps/{id}/betaFeedbackScreenshotSubmissions", f.handleList(f.feedbacks))
	mux.HandleFunc("GET /v1/betaFeedbackCrashSubmissions/{id}/crashLog", f.handleCrashLog)
	mux.HandleFunc("GET /v1/betaFeedbackScreenshotSubmissions/{id}", f.handleScreenshot)
	mux.HandleFunc("GET /assets/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeASC) URL() string { return f.server.URL }

func (f *fakeASC) addApp(bundleID, appID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps[bundleID] = appID
}

func (f *fakeASC) addCrash(appID string, sub fakeSubmission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crashes[appID] = append(f.crashes[appID], sub)
}

func (f *fakeASC) addFeedback(appID string, sub fakeSubmission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbacks[appID] = append(f.feedbacks[appID], sub)
}

func (f *fakeASC) setLog(submissionID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[submissionID] = text
}

func (f *fakeASC) setScreenshot(submissionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenshots[submissionID] = true
}

// failApp makes the submission listings of appID return 500.
func (f *fakeASC) failApp(appID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failApps[appID] = true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeASC) handleApps(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := r.URL.Query().Get("filter[bundleId]")
	bundles := make([]string, 0, len(f.apps))
	for b := range f.apps {
		if want == "" || b == want {
			bundles = append(bundles, b)
		}
	}
	sort.Strings(bundles)

	data := []map[string]any{}
	for _, b := range bundles {
		data = append(data, map[string]any{
			"id":         f.apps[b],
			"attributes": map[string]any{"bundleId": b, "name": "App " + f.apps[b]},
		})
	}
	writeJSON(w, map[string]any{"data": data, "links": map[string]any{}})
}

func (f *fakeASC) handleList(byApp map[string][]fakeSubmission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		appID := r.PathValue("id")
		if f.failApps[appID] {
			http.Error(w, `{"errors":[{"status":"500"}]}`, http.StatusInternalServerError)
			return
		}

		subs := append([]fakeSubmission(nil), byApp[appID]...)
		sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })

		data := []map[string]any{}
		for _, s := range subs {
			attrs := map[string]any{"createdDate": s.CreatedAt.Format(time.RFC3339)}
			if s.Device != "" {
				attrs["deviceModel"] = s.Device
			}
			if s.OS != "" {
				attrs["osVersion"] = s.OS
			}
			if s.Comment != "" {
				attrs["comment"] = s.Comment
			}
			data = append(data, map[string]any{"id": s.ID, "attributes": attrs})
		}
		writeJSON(w, map[string]any{"data": data, "links": map[string]any{}})
	}
}

func (f *fakeASC) handleCrashLog(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	text, ok := f.logs[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{"data": map[string]any{"attributes": map[string]any{"logText": text}}})
}

func (f *fakeASC) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := r.PathValue("id")
	shots := []map[string]any{}
	if f.screenshots[id] {
		shots = append(shots, map[string]any{"url": f.server.URL + "/assets/" + id + ".png"})
	}
	writeJSON(w, map[string]any{"data": map[string]any{"attributes": map[string]any{"screenshots": shots}}})
}

// writeDataDir creates a data directory with a fresh API key and a config
// pointing at baseURL, monitoring bundleIDs.
func writeDataDir(t *testing.T, dir, baseURL string, bundleIDs ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AuthKey_TEST.p8"), keyPEM, 0o600))

	cfg := fmt.Sprintf(`[api]
issuer_id = "issuer-1"
key_id = "KEY123"
private_key = "AuthKey_TEST.p8"
base_url = %q
`, baseURL)
	for _, b := range bundleIDs {
		cfg += fmt.Sprintf("\n[[apps]]\nbundle_id = %q\n", b)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o600))
}
