// Package render writes command results as text, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"github.com/asccrash/asccrash/internal/model"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted formats.
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid format %q (valid: text, json, yaml)", s)
}

// dateLayout is the second-resolution timestamp shown in tables.
const dateLayout = "2006-01-02T15:04:05"

// Option configures a Renderer.
type Option func(*Renderer)

// WithProfile forces a colour profile. termenv.Ascii disables styling.
func WithProfile(p termenv.Profile) Option {
	return func(r *Renderer) {
		r.lg.SetColorProfile(p)
	}
}

// WithProgress sends text-mode sync progress to w instead of the result stream,
// so stdout carries only results.
func WithProgress(w io.Writer) Option {
	return func(r *Renderer) {
		r.progress = w
	}
}

// Renderer writes results to one output stream and progress to another.
type Renderer struct {
	out      io.Writer
	progress io.Writer
	format   Format
	lg       *lipgloss.Renderer
	st       styles
}

type styles struct {
	header  lipgloss.Style
	title   lipgloss.Style
	muted   lipgloss.Style
	warn    lipgloss.Style
	accent  lipgloss.Style
	success lipgloss.Style
	status  map[model.Status]lipgloss.Style
}

// New returns a renderer writing format to out.
func New(out io.Writer, format Format, opts ...Option) *Renderer {
	r := &Renderer{
		out:      out,
		progress: out,
		format:   format,
		lg:       lipgloss.NewRenderer(out),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.st = newStyles(r.lg)
	return r
}

func newStyles(lg *lipgloss.Renderer) styles {
	return styles{
		header:  lg.NewStyle().Bold(true),
		title:   lg.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		muted:   lg.NewStyle().Foreground(lipgloss.Color("8")),
		warn:    lg.NewStyle().Foreground(lipgloss.Color("11")),
		accent:  lg.NewStyle().Foreground(lipgloss.Color("14")),
		success: lg.NewStyle().Foreground(lipgloss.Color("10")),
		status: map[model.Status]lipgloss.Style{
			model.StatusNew:           lg.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			model.StatusInvestigating: lg.NewStyle().Foreground(lipgloss.Color("11")),
			model.StatusFixed:         lg.NewStyle().Foreground(lipgloss.Color("10")),
			model.StatusWontFix:       lg.NewStyle().Foreground(lipgloss.Color("8")),
			model.StatusDuplicate:     lg.NewStyle().Foreground(lipgloss.Color("8")),
		},
	}
}

// Format reports the renderer's format.
func (r *Renderer) Format() Format {
	return r.format
}

// Structured reports whether output is machine-readable.
func (r *Renderer) Structured() bool {
	return r.format == FormatJSON || r.format == FormatYAML
}

// Value encodes v as JSON or YAML. Text output falls back to JSON.
func (r *Renderer) Value(v any) error {
	if r.format == FormatYAML {
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}

// toProgress returns a copy of r writing to the progress stream.
func (r *Renderer) toProgress() *Renderer {
	c := *r
	c.out = r.progress
	return &c
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *Renderer) println(args ...any) {
	fmt.Fprintln(r.out, args...)
}

// pad left-aligns s in width columns before styling so escape codes do not
// break alignment.
func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func (r *Renderer) statusCell(s model.Status, width int) string {
	style, ok := r.st.status[s]
	if !ok {
		return pad(string(s), width)
	}
	return style.Render(pad(string(s), width))
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func orQuestion(s *string) string {
	if s == nil || *s == "" {
		return "?"
	}
	return *s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Initialized reports the outcome of `init`.
func (r *Renderer) Initialized(dataDir, configPath string, written bool) error {
	if r.Structured() {
		return r.Value(map[string]any{
			"data_dir":       dataDir,
			"config_path":    configPath,
			"config_written": written,
		})
	}
	if written {
		r.printf("Created %s\n", configPath)
	} else {
		r.printf("Config already exists: %s\n", configPath)
	}
	r.printf("Initialized in %s\n", dataDir)
	r.println()
	r.println("Next steps:")
	r.printf("  1. Edit %s with your API credentials\n", configPath)
	r.println("  2. Run `asccrash apps` to verify")
	r.println("  3. Run `asccrash sync` to pull crashes and feedback")
	return nil
}
