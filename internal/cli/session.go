package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"visedit-cli/internal/capture"
	"visedit-cli/internal/channel"
	"visedit-cli/internal/commit"
	"visedit-cli/internal/dom"
	"visedit-cli/internal/geom"
	"visedit-cli/internal/history"
	"visedit-cli/internal/store"
	"visedit-cli/internal/wire"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errAgentClosed = errors.New("agent closed the connection")

// loadDocument reads a page from a fixture file or a live URL. The browser
// is returned for live pages and must be closed by the caller.
func loadDocument(ctx context.Context, app *App, url, file string) (*dom.Document, *capture.Browser, error) {
	url, file = strings.TrimSpace(url), strings.TrimSpace(file)
	switch {
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		doc, err := dom.ParseHTML(f)
		return doc, nil, err
	case url != "":
		bc := app.Config.Browser
		br, err := capture.Open(ctx, capture.Config{
			RemoteURL: bc.Remote,
			Headless:  bc.IsHeadless(),
			Viewport:  geom.Size{Width: float64(bc.Width), Height: float64(bc.Height)},
			Log:       app.logger("capture"),
		})
		if err != nil {
			return nil, nil, err
		}
		doc, err := br.Load(ctx, url)
		if err != nil {
			_ = br.Close()
			return nil, nil, err
		}
		return doc, br, nil
	default:
		return nil, nil, errNoSource
	}
}

// loadLedger restores the persisted ledger.
func loadLedger(ctx context.Context, app *App) (*history.Ledger, error) {
	l := history.NewLedger()
	if err := app.store().LoadInto(ctx, l); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return l, nil
}

// persistLedger returns an editor change hook that saves every state.
func persistLedger(app *App) func(history.State) {
	st := app.store()
	log := app.logger("store")
	return func(s history.State) {
		if err := st.SaveLedger(context.Background(), s); err != nil {
			log.Error("save history", zap.Error(err))
		}
	}
}

func (app *App) planner() commit.Planner {
	c := app.Config.Commit
	return commit.Planner{
		Budget:   c.TokenBudget,
		Base:     c.BaseOverhead,
		Estimate: commit.RecordEstimator(c.RecordOverhead),
	}
}

// agentCommitter opens a channel to the agent for the length of one commit.
type agentCommitter struct {
	app     *App
	journal commit.Journal
}

func newAgentCommitter(app *App) agentCommitter {
	return agentCommitter{app: app, journal: store.Journal{Store: app.store()}}
}

func (c agentCommitter) Dispatch(ctx context.Context, records []history.Record) commit.Result {
	log := c.app.logger("commit")
	url := c.app.Config.Agent.URL
	conn, err := channel.Dial(ctx, url, log)
	if err != nil {
		return commit.Result{Err: err}
	}
	defer conn.Close()

	corr := commit.NewCorrelator(log)
	d := commit.NewDispatcher(conn, corr, log)
	d.Planner = c.app.planner()
	d.Timeout = c.app.Config.Commit.Timeout
	d.Delay = c.app.Config.Commit.BatchDelay
	d.Journal = c.journal

	g, gctx := errgroup.WithContext(ctx)
	readCtx, stopRead := context.WithCancel(gctx)
	defer stopRead()

	g.Go(func() error {
		err := conn.Run(readCtx, func(r wire.Reply) { corr.Resolve(r) })
		switch {
		case readCtx.Err() != nil:
			return nil
		case err == nil:
			return errAgentClosed
		default:
			return err
		}
	})

	var res commit.Result
	g.Go(func() error {
		defer stopRead()
		res = d.Dispatch(gctx, records)
		return nil
	})
	if err := g.Wait(); err != nil && res.Err != nil {
		res.Err = errors.Join(res.Err, err)
	}
	return res
}
