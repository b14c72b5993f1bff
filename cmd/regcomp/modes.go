package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/neovim/go-client/nvim"
	nvimplugin "github.com/neovim/go-client/nvim/plugin"

	"github.com/dshills/regcomp/internal/config"
	"github.com/dshills/regcomp/internal/host/localhost"
	"github.com/dshills/regcomp/internal/host/nvimhost"
	"github.com/dshills/regcomp/internal/host/rpchost"
	"github.com/dshills/regcomp/internal/logging"
	"github.com/dshills/regcomp/internal/plugin"
	"github.com/dshills/regcomp/internal/preview"
	"github.com/dshills/regcomp/internal/reconcile"
	"github.com/dshills/regcomp/internal/register"
	"github.com/dshills/regcomp/internal/source"
)

// runNvim serves the source as a Neovim remote plugin on stdio.
func runNvim(ctx context.Context, opts options, params func() config.Params, log *logging.Logger) error {
	if opts.Manifest != "" {
		p := nvimplugin.New(nil)
		nvimhost.NewPlugin(nvimhost.New(nil, log), params, log).Register(p)
		_, err := os.Stdout.Write(p.Manifest(opts.Manifest))
		return err
	}

	v, err := nvim.New(os.Stdin, os.Stdout, os.Stdout, log.WithComponent("nvim").Debug)
	if err != nil {
		return fmt.Errorf("connect to nvim: %w", err)
	}

	p := nvimplugin.New(v)
	nvimhost.NewPlugin(nvimhost.New(v, log), params, log).Register(p)

	go func() {
		<-ctx.Done()
		_ = v.Close()
	}()
	return v.Serve()
}

// runJSONRPC serves the source over LSP-framed JSON-RPC on stdio.
func runJSONRPC(ctx context.Context, params func() config.Params, log *logging.Logger) error {
	t := rpchost.NewTransport(os.Stdin, os.Stdout, os.Stdin, log)
	return rpchost.NewServer(t, params, log).Serve(ctx)
}

// newLocal builds the in-process editor used by the preview and lua modes.
func newLocal(ctx context.Context, opts options, cfg config.Config, log *logging.Logger) (*localhost.Host, *source.Source, error) {
	store := register.NewStore(cfg.Host.Clipboard)
	if opts.Registers != "" {
		f, err := register.LoadFixture(opts.Registers)
		if err != nil {
			return nil, nil, err
		}
		f.Clipboard = f.Clipboard || cfg.Host.Clipboard
		store = f.Store()
	}

	h, err := localhost.New(store,
		localhost.WithEncoding(cfg.Host.Encoding),
		localhost.WithColumns(cfg.Host.Columns),
		localhost.WithLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}

	src, err := source.New(ctx, h, source.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return h, src, nil
}

// runPreview draws the candidates in a terminal popup. An accepted candidate
// is inserted into an empty buffer, restored, and the buffer is printed.
func runPreview(ctx context.Context, opts options, cfg config.Config, params func() config.Params, log *logging.Logger) error {
	h, src, err := newLocal(ctx, opts, cfg, log)
	if err != nil {
		return err
	}

	cands, err := src.Gather(ctx, params(), opts.NextInput)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		fmt.Fprintln(os.Stderr, "no registers to show")
		return nil
	}

	scr, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := scr.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}

	popup := preview.NewPopup(cands)
	popup.ByteLen = h.ByteLength
	choice := preview.Run(scr, popup, "registers")
	scr.Fini()

	if choice < 0 {
		return nil
	}
	c := cands[choice]
	line := c.Word + opts.NextInput
	h.SetLine(1, line)

	ev := reconcile.Event{LineNr: 1, Line: line}
	if _, err := src.OnCompleteDone(ctx, ev, c.UserData); err != nil {
		return err
	}
	fmt.Println(h.Text())
	return nil
}

// runLua runs a script against the in-process editor.
func runLua(ctx context.Context, opts options, cfg config.Config, params func() config.Params, log *logging.Logger) error {
	h, src, err := newLocal(ctx, opts, cfg, log)
	if err != nil {
		return err
	}

	reg := plugin.NewRegistry()
	if err := reg.Register(plugin.NewRegModule(ctx, src, h, params)); err != nil {
		return err
	}
	rt, err := plugin.NewRuntime(reg)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.DoFile(opts.Script)
}
