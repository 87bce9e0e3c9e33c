package render

import (
	"fmt"
	"strings"

	"github.com/asccrash/asccrash/internal/model"
)

// Stats prints aggregate counts for one kind.
func (r *Renderer) Stats(st *model.Stats) error {
	if r.Structured() {
		return r.Value(st)
	}

	r.println(r.st.title.Render(capitalize(st.Kind.Label()) + " Statistics"))
	r.println(strings.Repeat("─", 30))
	r.printf("%-16s%d\n", "Total:", st.Total)
	for _, status := range model.Statuses {
		if n := st.ByStatus[status]; n > 0 {
			r.printf("%-16s%d\n", string(status)+":", n)
		}
	}
	r.printf("%-16s%d\n", "Unfixed:", st.Unfixed)

	r.groups("By Device:", st.ByDevice)
	r.groups("By OS:", st.ByOS)
	return nil
}

func (r *Renderer) groups(title string, groups []model.GroupCount) {
	if len(groups) == 0 {
		return
	}
	r.println()
	r.println(r.st.header.Render(title))
	for _, g := range groups {
		r.printf("  %-20s %d\n", g.Value, g.Count)
	}
}

// Apps prints the apps visible to the API key.
func (r *Renderer) Apps(apps []model.RemoteApp) error {
	if r.Structured() {
		if apps == nil {
			apps = []model.RemoteApp{}
		}
		return r.Value(apps)
	}

	if len(apps) == 0 {
		r.println("No apps found for this API key.")
		return nil
	}
	r.println(r.st.header.Render(fmt.Sprintf("%-40s %-30s NAME", "APP ID", "BUNDLE ID")))
	r.println(strings.Repeat("-", 90))
	for _, a := range apps {
		r.printf("%-40s %-30s %s\n", a.ID, orDash(a.BundleID), orDash(a.Name))
	}
	return nil
}
