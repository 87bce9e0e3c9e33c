package render

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/asccrash/asccrash/internal/model"
)

// PreviewLines is how many crash log lines `show` prints.
const PreviewLines = 50

// LogPreview is the head of a crash log.
type LogPreview struct {
	Lines []string
	More  int // lines not shown
}

// ReadPreview reads the first n lines of the file at path. A missing file
// returns nil and no error.
func ReadPreview(path string, n int) (*LogPreview, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	p := &LogPreview{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(p.Lines) < n {
			p.Lines = append(p.Lines, sc.Text())
			continue
		}
		p.More++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// List prints the result of a list query.
func (r *Renderer) List(kind model.Kind, subs []*model.Submission) error {
	if r.Structured() {
		if subs == nil {
			subs = []*model.Submission{}
		}
		out := map[string]any{"count": len(subs)}
		if kind == model.KindFeedback {
			out["feedbacks"] = subs
		} else {
			out["crashes"] = subs
		}
		return r.Value(out)
	}

	if len(subs) == 0 {
		if kind == model.KindFeedback {
			r.println("No feedback found.")
		} else {
			r.println("No crashes found.")
		}
		return nil
	}

	r.println(r.st.header.Render(fmt.Sprintf(" %-5s %-14s %-20s %-14s %-10s APP", "ID", "STATUS", "DATE", "DEVICE", "OS")))
	r.println(strings.Repeat("-", 90))
	unfixed := 0
	for _, s := range subs {
		if s.Status.Open() {
			unfixed++
		}
		r.printf(" %-5d %s %-20s %-14s %-10s %s\n",
			s.ID,
			r.statusCell(s.Status, 14),
			s.CreatedAt.UTC().Format(dateLayout),
			orDash(s.DeviceModel),
			orDash(s.OSVersion),
			dashIfEmpty(s.SourceBundleID),
		)
	}
	r.println()
	r.printf("%d %s shown (%d unfixed)\n", len(subs), kind.Plural(), unfixed)
	return nil
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Show prints one submission. preview is only used for crash text output.
func (r *Renderer) Show(sub *model.Submission, preview *LogPreview) error {
	if r.Structured() {
		return r.Value(sub)
	}

	r.println(r.st.title.Render(fmt.Sprintf("%s #%d", capitalize(sub.Kind.Label()), sub.ID)))
	r.println(strings.Repeat("─", 40))
	field := func(label, value string) {
		r.printf("%-12s%s\n", label+":", value)
	}
	opt := func(label string, v *string) {
		if v != nil && *v != "" {
			field(label, *v)
		}
	}

	field("Status", r.statusCell(sub.Status, 0))
	field("Created", sub.CreatedAt.UTC().Format(time.RFC3339))
	field("Synced", sub.SyncedAt.UTC().Format(time.RFC3339))
	opt("Device", sub.DeviceModel)
	opt("OS", sub.OSVersion)
	opt("Platform", sub.AppPlatform)
	opt("Arch", sub.Architecture)
	opt("Tester", sub.TesterEmail)
	opt("Comment", sub.TesterComment)
	if sub.SourceBundleID != "" {
		field("App", sub.SourceBundleID)
	}
	opt("App Name", sub.SourceName)
	opt("Build", sub.BuildID)
	if sub.AppUptimeMillis != nil {
		field("Uptime", fmt.Sprintf("%.1fs", float64(*sub.AppUptimeMillis)/1000))
	}
	if sub.BatteryPercentage != nil {
		field("Battery", fmt.Sprintf("%d%%", *sub.BatteryPercentage))
	}
	opt("Connection", sub.ConnectionType)
	opt("Fix Notes", sub.Notes)
	if sub.FixedAt != nil {
		field("Fixed At", sub.FixedAt.UTC().Format(time.RFC3339))
	}
	if sub.DuplicateOf != nil {
		field("Dup Of", fmt.Sprintf("#%d", *sub.DuplicateOf))
	}

	label := capitalize(sub.Kind.ArtifactLabel())
	if !sub.HasArtifact || sub.ArtifactPath == nil {
		field(label, r.st.muted.Render("(not available)"))
		return nil
	}
	field(label, *sub.ArtifactPath)
	opt("MIME Type", sub.ArtifactMediaType)

	if sub.Kind == model.KindCrash && preview != nil {
		r.println()
		r.println(r.st.muted.Render(fmt.Sprintf("--- Crash log (first %d lines) ---", PreviewLines)))
		for _, line := range preview.Lines {
			r.println(line)
		}
		if preview.More > 0 {
			r.println(r.st.muted.Render(fmt.Sprintf("... (%d more lines)", preview.More)))
		}
	}
	return nil
}

// Transitioned confirms a review status change.
func (r *Renderer) Transitioned(sub *model.Submission, reopened bool) error {
	if r.Structured() {
		return r.Value(sub)
	}

	name := fmt.Sprintf("%s #%d", capitalize(sub.Kind.Label()), sub.ID)
	switch {
	case reopened:
		r.printf("%s reopened\n", name)
	case sub.Status == model.StatusDuplicate && sub.DuplicateOf != nil:
		r.printf("%s marked as duplicate of #%d\n", name, *sub.DuplicateOf)
	default:
		r.printf("%s marked as %s\n", name, r.statusCell(sub.Status, 0))
	}
	return nil
}

// ArtifactPath prints the artifact path alone, for use in shell pipelines.
func (r *Renderer) ArtifactPath(sub *model.Submission) error {
	if r.Structured() {
		return r.Value(map[string]any{
			"id":         sub.ID,
			"path":       sub.ArtifactPath,
			"media_type": sub.ArtifactMediaType,
		})
	}
	r.println(*sub.ArtifactPath)
	return nil
}
