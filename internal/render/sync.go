package render

import (
	"fmt"
	"strings"

	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/sync"
)

type recoveredLog struct {
	ID      int64   `json:"id" yaml:"id"`
	LogPath *string `json:"log_path" yaml:"log_path"`
}

type recoveredScreenshot struct {
	ID             int64   `json:"id" yaml:"id"`
	ScreenshotPath *string `json:"screenshot_path" yaml:"screenshot_path"`
	MediaType      *string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
}

type sourceError struct {
	App   string `json:"app" yaml:"app"`
	Error string `json:"error" yaml:"error"`
}

type syncSummary struct {
	RunID                string                `json:"run_id" yaml:"run_id"`
	NewCrashes           []*model.Submission   `json:"new_crashes" yaml:"new_crashes"`
	RecoveredLogs        []recoveredLog        `json:"recovered_logs" yaml:"recovered_logs"`
	NewFeedbacks         []*model.Submission   `json:"new_feedbacks" yaml:"new_feedbacks"`
	RecoveredScreenshots []recoveredScreenshot `json:"recovered_screenshots" yaml:"recovered_screenshots"`
	CrashTotal           int                   `json:"crash_total" yaml:"crash_total"`
	CrashUnfixed         int                   `json:"crash_unfixed" yaml:"crash_unfixed"`
	FeedbackTotal        int                   `json:"feedback_total" yaml:"feedback_total"`
	FeedbackUnfixed      int                   `json:"feedback_unfixed" yaml:"feedback_unfixed"`
	Errors               []sourceError         `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func summarize(rep *sync.Report) syncSummary {
	out := syncSummary{
		RunID:                rep.RunID,
		NewCrashes:           rep.New(model.KindCrash),
		RecoveredLogs:        []recoveredLog{},
		NewFeedbacks:         rep.New(model.KindFeedback),
		RecoveredScreenshots: []recoveredScreenshot{},
		CrashTotal:           rep.Totals(model.KindCrash).Total,
		CrashUnfixed:         rep.Totals(model.KindCrash).Unfixed,
		FeedbackTotal:        rep.Totals(model.KindFeedback).Total,
		FeedbackUnfixed:      rep.Totals(model.KindFeedback).Unfixed,
	}
	for _, s := range rep.Recovered(model.KindCrash) {
		out.RecoveredLogs = append(out.RecoveredLogs, recoveredLog{ID: s.ID, LogPath: s.ArtifactPath})
	}
	for _, s := range rep.Recovered(model.KindFeedback) {
		out.RecoveredScreenshots = append(out.RecoveredScreenshots, recoveredScreenshot{
			ID:             s.ID,
			ScreenshotPath: s.ArtifactPath,
			MediaType:      s.ArtifactMediaType,
		})
	}
	for _, src := range rep.Failed() {
		out.Errors = append(out.Errors, sourceError{App: src.BundleID, Error: src.Err.Error()})
	}
	return out
}

// SyncReport prints what a sync run stored and downloaded. JSON and YAML go to
// the result stream; text goes to the progress stream.
func (r *Renderer) SyncReport(rep *sync.Report) error {
	if r.Structured() {
		return r.Value(summarize(rep))
	}
	return r.toProgress().syncText(rep)
}

func (r *Renderer) syncText(rep *sync.Report) error {
	for _, src := range rep.Sources {
		r.println(r.st.title.Render(src.BundleID))
		for _, kind := range rep.Kinds {
			r.syncKind(src, kind)
		}
		if src.Err != nil {
			for _, line := range strings.Split(src.Err.Error(), "\n") {
				r.printf("  %s %s\n", r.st.warn.Render("error:"), line)
			}
		}
	}

	crash := rep.Totals(model.KindCrash)
	feedback := rep.Totals(model.KindFeedback)
	r.printf("Total: %d crashes (%d unfixed), %d feedbacks (%d unfixed)\n",
		crash.Total, crash.Unfixed, feedback.Total, feedback.Unfixed)
	return nil
}

func (r *Renderer) syncKind(src sync.SourceReport, kind model.Kind) {
	tag, artTag, indent := "[CRASH]", "[LOG]  ", "          "
	if kind == model.KindFeedback {
		tag, artTag, indent = "[FEEDBACK]", "[SCREENSHOT]", "             "
	}

	var fresh, recovered []*model.Submission
	pageLimit := false
	for _, w := range src.Walks {
		if w.Kind == kind {
			fresh = append(fresh, w.New...)
			pageLimit = pageLimit || w.HitPageLimit()
		}
	}
	for _, rec := range src.Recoveries {
		if rec.Kind == kind {
			recovered = append(recovered, rec.Recovered...)
		}
	}

	downloaded := len(recovered)
	for _, s := range fresh {
		r.printf("  %s #%-4d %s / %s  %s\n",
			r.st.accent.Render(tag), s.ID, orQuestion(s.DeviceModel), orQuestion(s.OSVersion),
			s.CreatedAt.UTC().Format(dateLayout))
		if s.HasArtifact && s.ArtifactPath != nil {
			downloaded++
			r.printf("%s→ %s\n", indent, *s.ArtifactPath)
		} else {
			r.printf("%s→ %s\n", indent, r.st.muted.Render(fmt.Sprintf("(%s not available yet)", kind.ArtifactLabel())))
		}
	}
	for _, s := range recovered {
		r.printf("  %s #%-4d → %s\n", r.st.success.Render(artTag), s.ID, orQuestion(s.ArtifactPath))
	}
	if len(fresh) > 0 || len(recovered) > 0 {
		r.printf("  %d new %s, %d %s(s) downloaded\n", len(fresh), kind.Plural(), downloaded, kind.ArtifactLabel())
	}
	if pageLimit {
		r.printf("  %s stopped at the page limit; older %s were not fetched\n", r.st.warn.Render("warning:"), kind.Plural())
	}
}
