package dashboard

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/sync"
)

// SyncCompleteData summarises one sync run
type SyncCompleteData struct {
	RunID     string         `json:"run_id"`
	OK        bool           `json:"ok"`
	Duration  time.Duration  `json:"duration"`
	New       map[string]int `json:"new"`
	Recovered map[string]int `json:"recovered"`
	Pending   map[string]int `json:"pending"`
	Errors    []string       `json:"errors,omitempty"`
}

// KindStats are store-wide counts for one kind
type KindStats struct {
	Total   int `json:"total"`
	Unfixed int `json:"unfixed"`
}

// StatsData carries counts per kind
type StatsData map[string]KindStats

// NewSubmissionData identifies a freshly stored submission
type NewSubmissionData struct {
	ID          int64      `json:"id"`
	Kind        model.Kind `json:"kind"`
	App         string     `json:"app"`
	DeviceModel *string    `json:"device_model,omitempty"`
	OSVersion   *string    `json:"os_version,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Handler turns sync results into dashboard messages.
type Handler struct {
	server *Server
	log    zerolog.Logger
}

// NewHandler creates a handler broadcasting through server.
func NewHandler(server *Server, logger zerolog.Logger) *Handler {
	return &Handler{server: server, log: logger}
}

// OnSyncComplete broadcasts a run's new submissions, its summary and the totals.
func (h *Handler) OnSyncComplete(rep *sync.Report, runErr error) {
	if rep == nil {
		return
	}

	data := SyncCompleteData{
		RunID:     rep.RunID,
		OK:        runErr == nil,
		Duration:  rep.FinishedAt.Sub(rep.StartedAt),
		New:       map[string]int{},
		Recovered: map[string]int{},
		Pending:   map[string]int{},
	}
	for _, kind := range model.Kinds {
		data.New[string(kind)] = len(rep.New(kind))
		data.Recovered[string(kind)] = len(rep.Recovered(kind))
		data.Pending[string(kind)] = rep.Pending(kind)
	}
	for _, src := range rep.Failed() {
		data.Errors = append(data.Errors, src.BundleID+": "+src.Err.Error())
	}

	for _, kind := range model.Kinds {
		for _, sub := range rep.New(kind) {
			h.send(MessageTypeNewSubmission, NewSubmissionData{
				ID:          sub.ID,
				Kind:        sub.Kind,
				App:         sub.SourceBundleID,
				DeviceModel: sub.DeviceModel,
				OSVersion:   sub.OSVersion,
				CreatedAt:   sub.CreatedAt,
			})
		}
	}
	h.send(MessageTypeSyncComplete, data)

	stats := StatsData{}
	for _, kind := range model.Kinds {
		t := rep.Totals(kind)
		stats[string(kind)] = KindStats{Total: t.Total, Unfixed: t.Unfixed}
	}
	h.send(MessageTypeStats, stats)
}

// OnConfigReloaded announces the app list now in effect.
func (h *Handler) OnConfigReloaded(bundleIDs []string) {
	h.send(MessageTypeConfigReloaded, map[string]any{"apps": bundleIDs})
}

func (h *Handler) send(typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(typ)).Msg("failed to marshal dashboard data")
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}
