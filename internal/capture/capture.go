// Package capture loads a live page in a headless browser and converts its
// rendered layout into a dom.Document.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

type Config struct {
	// RemoteURL is the DevTools websocket of a running browser. Empty
	// launches a local one.
	RemoteURL string
	Headless  bool
	Viewport  geom.Size
	Timeout   time.Duration
	Log       *zap.Logger
}

func (c *Config) defaults() {
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = dom.DefaultViewport
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
}

var ErrNoPage = errors.New("capture: no page loaded")

// Browser owns one browser connection and at most one page.
type Browser struct {
	cfg  Config
	mu   sync.Mutex
	b    *rod.Browser
	lnch *launcher.Launcher
	page *rod.Page
}

// Open launches or connects to a browser.
func Open(ctx context.Context, cfg Config) (*Browser, error) {
	cfg.defaults()
	wsURL := cfg.RemoteURL
	var l *launcher.Launcher
	if wsURL == "" {
		l = launcher.New().Headless(cfg.Headless).Context(ctx)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("capture: launch browser: %w", err)
		}
		wsURL = u
	}
	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("capture: connect %s: %w", wsURL, err)
	}
	cfg.Log.Info("browser connected", zap.String("url", wsURL))
	return &Browser{cfg: cfg, b: b, lnch: l}, nil
}

// Load navigates to url, waits for the load event and snapshots the page.
func (br *Browser) Load(ctx context.Context, url string) (*dom.Document, error) {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.page == nil {
		page, err := br.b.Page(proto.TargetCreateTarget{URL: ""})
		if err != nil {
			return nil, fmt.Errorf("capture: new page: %w", err)
		}
		br.page = page
	}
	navCtx, cancel := context.WithTimeout(ctx, br.cfg.Timeout)
	defer cancel()
	p := br.page.Context(navCtx)
	err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(br.cfg.Viewport.Width),
		Height:            int(br.cfg.Viewport.Height),
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: viewport: %w", err)
	}
	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("capture: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("capture: wait load: %w", err)
	}
	return br.snapshot(navCtx)
}

// Refresh re-snapshots the current page without navigating.
func (br *Browser) Refresh(ctx context.Context) (*dom.Document, error) {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.page == nil {
		return nil, ErrNoPage
	}
	return br.snapshot(ctx)
}

func (br *Browser) snapshot(ctx context.Context) (*dom.Document, error) {
	res, err := br.page.Context(ctx).Eval(snapshotJS, dom.MutableProps)
	if err != nil {
		return nil, fmt.Errorf("capture: snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(res.Value.Str()), &snap); err != nil {
		return nil, fmt.Errorf("capture: decode snapshot: %w", err)
	}
	doc := snap.Document()
	br.cfg.Log.Debug("page captured", zap.Int("nodes", len(doc.Nodes())))
	return doc, nil
}

// Screenshot captures area of the current page as a base64 PNG.
func (br *Browser) Screenshot(ctx context.Context, area geom.Bounds) (string, error) {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.page == nil {
		return "", ErrNoPage
	}
	if area.Empty() {
		return "", fmt.Errorf("capture: empty screenshot area")
	}
	png, err := br.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X: area.X, Y: area.Y, Width: area.Width, Height: area.Height, Scale: 1,
		},
	})
	if err != nil {
		return "", fmt.Errorf("capture: screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func (br *Browser) Close() error {
	br.mu.Lock()
	defer br.mu.Unlock()
	var errs []error
	if br.page != nil {
		errs = append(errs, br.page.Close())
		br.page = nil
	}
	if br.b != nil {
		errs = append(errs, br.b.Close())
		br.b = nil
	}
	if br.lnch != nil {
		br.lnch.Kill()
		br.lnch = nil
	}
	return errors.Join(errs...)
}

// Snapshot is the serialised page produced by snapshotJS.
type Snapshot struct {
	Viewport geom.Size `json:"viewport"`
	Root     *Element  `json:"root"`
}

type Element struct {
	Tag      string            `json:"tag"`
	ID       string            `json:"id,omitempty"`
	Classes  []string          `json:"classes,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Rect     geom.Bounds       `json:"rect"`
	Style    Style             `json:"style"`
	Inline   map[string]string `json:"inline,omitempty"`
	Children []*Element        `json:"children,omitempty"`
}

type Style struct {
	Display       string    `json:"display"`
	FlexDirection string    `json:"flexDirection"`
	Gap           string    `json:"gap"`
	Padding       []float64 `json:"padding"`
	LineHeight    string    `json:"lineHeight"`
	Visibility    string    `json:"visibility"`
}

// Document converts the snapshot into the editor's document model.
func (s Snapshot) Document() *dom.Document {
	vp := s.Viewport
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = dom.DefaultViewport
	}
	if s.Root == nil {
		return dom.NewDocument(dom.NewNode("HTML"), vp)
	}
	return dom.NewDocument(s.Root.node(), vp)
}

func (e *Element) node() *dom.Node {
	n := dom.NewNode(e.Tag)
	n.ID = e.ID
	n.Classes = append([]string(nil), e.Classes...)
	n.Attrs = e.Attrs
	n.Text = strings.TrimSpace(e.Text)
	n.Rect = e.Rect
	n.Computed = dom.Computed{
		Display:       e.Style.Display,
		FlexDirection: e.Style.FlexDirection,
		Visibility:    e.Style.Visibility,
	}
	if v, ok := dom.ParsePx(firstField(e.Style.Gap)); ok {
		n.Computed.Gap = v
	}
	if v, ok := dom.ParsePx(e.Style.LineHeight); ok {
		n.Computed.LineHeight = v
	}
	if len(e.Style.Padding) == 4 {
		n.Computed.Padding = dom.Edges{
			Top: e.Style.Padding[0], Right: e.Style.Padding[1],
			Bottom: e.Style.Padding[2], Left: e.Style.Padding[3],
		}
	}
	for k, v := range e.Inline {
		if v != "" {
			n.SetStyle(k, v)
		}
	}
	for _, c := range e.Children {
		n.AppendChild(c.node())
	}
	return n
}

// firstField takes the row gap out of a "row column" gap value.
func firstField(v string) string {
	if f := strings.Fields(v); len(f) > 0 {
		return f[0]
	}
	return ""
}

const snapshotJS = `(props) => {
	const walk = (el) => {
		const cs = getComputedStyle(el);
		const r = el.getBoundingClientRect();
		let text = "";
		for (const c of el.childNodes) {
			if (c.nodeType === Node.TEXT_NODE) text += c.textContent;
		}
		const attrs = {};
		for (const a of el.attributes) {
			if (a.name !== "id" && a.name !== "class" && a.name !== "style") attrs[a.name] = a.value;
		}
		const inline = {};
		for (const p of props) {
			const v = el.style.getPropertyValue(p);
			if (v) inline[p] = v;
		}
		return {
			tag: el.tagName,
			id: el.id || "",
			classes: Array.from(el.classList),
			attrs,
			text,
			rect: {x: r.left, y: r.top, width: r.width, height: r.height},
			style: {
				display: cs.display,
				flexDirection: cs.flexDirection,
				gap: cs.gap,
				padding: [cs.paddingTop, cs.paddingRight, cs.paddingBottom, cs.paddingLeft].map(parseFloat),
				lineHeight: cs.lineHeight,
				visibility: cs.visibility,
			},
			inline,
			children: Array.from(el.children).map(walk),
		};
	};
	return JSON.stringify({
		viewport: {width: innerWidth, height: innerHeight},
		root: walk(document.documentElement),
	});
}`
