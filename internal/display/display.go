// Package display implements the Live Display: a
// subscriber to the Event Bus that accumulates per-provider streaming
// state and renders stacked or side-by-side terminal panes. Rendering
// itself is delegated to a Renderer the CLI supplies; this
// package owns state accumulation, layout selection, and redraw-rate
// limiting.
package display

import (
	"sort"
	"sync"
	"time"

	"github.com/forgecode/orchestra/internal/bus"
	"github.com/forgecode/orchestra/internal/provider"
)

// Layout selects how panes are arranged.
type Layout string

const (
	LayoutStacked    Layout = "stacked"
	LayoutSideBySide Layout = "side_by_side"
)

// Config holds the display settings from the configuration file.
type Config struct {
	Layout         Layout
	ShowTimestamps bool
	ShowTokenCount bool
	ColorScheme    string
	MaxPaneHeight  int
	RefreshRateMs  int
	ShowProgress   bool
	CompactMode    bool
}

// DefaultConfig returns reasonable defaults matching the CLI's
// documented flags.
func DefaultConfig() Config {
	return Config{
		Layout:         LayoutStacked,
		ShowTimestamps: true,
		ShowTokenCount: true,
		ColorScheme:    "default",
		MaxPaneHeight:  20,
		RefreshRateMs:  100,
		ShowProgress:   true,
	}
}

// PaneState is the per-provider state the display accumulates from
// bus events.
type PaneState struct {
	Provider           provider.Name
	Status             string
	AccumulatedContent string
	StartedAt          time.Time
	TokenCount         int
	Err                string
}

// Renderer draws the current set of panes. The CLI supplies a
// concrete implementation; Display never formats output itself.
type Renderer interface {
	Render(layout Layout, panes []PaneState, cfg Config)
}

// Display subscribes to agent:<provider> topics for an active set of
// providers and redraws through Renderer, throttled to
// cfg.RefreshRateMs.
type Display struct {
	mu       sync.Mutex
	panes    map[provider.Name]*PaneState
	cfg      Config
	renderer Renderer
	events   *bus.Bus
	subIDs   map[provider.Name]string
	lastDraw time.Time
}

// New creates a Display bound to events and renderer.
func New(events *bus.Bus, renderer Renderer, cfg Config) *Display {
	return &Display{
		panes:    make(map[provider.Name]*PaneState),
		cfg:      cfg,
		renderer: renderer,
		events:   events,
		subIDs:   make(map[provider.Name]string),
	}
}

// layoutFor resolves the effective layout: three or more providers force
// stacked regardless of cfg.Layout.
func (d *Display) layoutFor(count int) Layout {
	if count >= 3 {
		return LayoutStacked
	}
	return d.cfg.Layout
}

// Watch subscribes to every provider's topic and begins redrawing on
// incoming events.
func (d *Display) Watch(providers []provider.Name) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range providers {
		d.panes[p] = &PaneState{Provider: p, Status: "idle"}
		id := d.events.Subscribe(bus.Topic(string(p)), d.handle)
		d.subIDs[p] = id
	}
}

// Stop unsubscribes from every watched provider's topic.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for p, id := range d.subIDs {
		d.events.Unsubscribe(bus.Topic(string(p)), id)
	}
	d.subIDs = make(map[provider.Name]string)
}

func (d *Display) handle(event bus.Event) {
	d.mu.Lock()
	switch e := event.(type) {
	case provider.StatusChange:
		pane := d.paneFor(e.Provider)
		pane.Status = e.Status
		if e.Status == "working" {
			pane.StartedAt = time.Now()
			pane.AccumulatedContent = ""
			pane.Err = ""
		}
	case provider.Chunk:
		pane := d.paneFor(e.Provider)
		pane.AccumulatedContent += e.Text
	case provider.Complete:
		pane := d.paneFor(e.Provider)
		pane.Status = "idle"
		pane.AccumulatedContent = e.Response
		pane.TokenCount = e.Usage.TotalTokens
	case provider.ErrorEvent:
		pane := d.paneFor(e.Provider)
		pane.Status = "idle"
		pane.Err = e.Message
	}
	shouldDraw := d.throttle()
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	if shouldDraw && d.renderer != nil {
		d.renderer.Render(d.layoutFor(len(snapshot)), snapshot, d.cfg)
	}
}

func (d *Display) paneFor(p provider.Name) *PaneState {
	pane, ok := d.panes[p]
	if !ok {
		pane = &PaneState{Provider: p}
		d.panes[p] = pane
	}
	return pane
}

// throttle reports whether enough time has elapsed since the last
// draw to redraw now.
func (d *Display) throttle() bool {
	min := time.Duration(d.cfg.RefreshRateMs) * time.Millisecond
	now := time.Now()
	if now.Sub(d.lastDraw) < min {
		return false
	}
	d.lastDraw = now
	return true
}

func (d *Display) snapshotLocked() []PaneState {
	out := make([]PaneState, 0, len(d.panes))
	for _, pane := range d.panes {
		out = append(out, *pane)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Snapshot returns the current pane states without forcing a redraw.
func (d *Display) Snapshot() []PaneState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}
