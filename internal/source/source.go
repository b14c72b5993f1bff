// Package source is the register completion source. It renders registers
// into single-line candidates and restores accepted candidates to their
// real multi-line contents.
//
// A Source is created once per editor connection. Creation asks the editor
// which code points are printable and whether the clipboard is available;
// both answers are frozen and shared by every later pass.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/regcomp/internal/batch"
	"github.com/dshills/regcomp/internal/codec"
	"github.com/dshills/regcomp/internal/config"
	"github.com/dshills/regcomp/internal/highlight"
	"github.com/dshills/regcomp/internal/host"
	"github.com/dshills/regcomp/internal/logging"
	"github.com/dshills/regcomp/internal/reconcile"
	"github.com/dshills/regcomp/internal/register"
	"github.com/dshills/regcomp/internal/unprintable"
)

// Name is the source name reported to completion engines.
const Name = "register"

// Candidate is one rendered register.
type Candidate struct {
	Word       string            `json:"word" msgpack:"word"`
	Abbr       string            `json:"abbr" msgpack:"abbr"`
	Info       string            `json:"info" msgpack:"info"`
	Menu       string            `json:"menu" msgpack:"menu"`
	Kind       string            `json:"kind" msgpack:"kind"`
	Highlights []highlight.Span  `json:"highlights,omitempty" msgpack:"highlights,omitempty"`
	UserData   reconcile.Pending `json:"user_data" msgpack:"user_data"`
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Source) {
		s.log = l
	}
}

// WithUnprintable skips the printable-oracle query and uses set instead.
// The clipboard is still queried.
func WithUnprintable(set *unprintable.Set) Option {
	return func(s *Source) {
		s.set = set
	}
}

// Source renders registers for one editor.
type Source struct {
	host       host.Host
	set        *unprintable.Set
	clipboard  bool
	log        *logging.Logger
	reconciler *reconcile.Reconciler
}

// New initializes a source against h in a single round-trip.
func New(ctx context.Context, h host.Host, opts ...Option) (*Source, error) {
	s := &Source{host: h}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNull(s.log).WithComponent("source")

	type probe struct {
		printable []*batch.Future[bool]
		clipboard *batch.Future[bool]
	}
	res, err := batch.Defer(ctx, h, func(b *batch.Batch) probe {
		var p probe
		if s.set == nil {
			p.printable = make([]*batch.Future[bool], unprintable.GuardLimit+1)
			for cp := range p.printable {
				p.printable[cp] = host.IsPrintable(b, rune(cp))
			}
		}
		p.clipboard = host.HasClipboard(b)
		return p
	})
	if err != nil {
		return nil, fmt.Errorf("initialize source: %w", err)
	}

	if s.set == nil {
		oracle := make([]bool, len(res.printable))
		for cp, f := range res.printable {
			v, err := f.Get()
			if err != nil {
				return nil, fmt.Errorf("query printable %#x: %w", cp, err)
			}
			oracle[cp] = v
		}
		s.set = unprintable.Build(oracle)
	}

	// An unanswered clipboard probe means no clipboard.
	s.clipboard, _ = res.clipboard.Get()
	s.reconciler = reconcile.New(h, s.set, s.log)

	s.log.Debug("initialized: unprintable %s, clipboard %v", s.set.Pattern(), s.clipboard)
	return s, nil
}

// Unprintable returns the frozen unprintable set.
func (s *Source) Unprintable() *unprintable.Set {
	return s.set
}

// HasClipboard reports whether clipboard registers are collected.
func (s *Source) HasClipboard() bool {
	return s.clipboard
}

// Gather renders the registers selected by params. nextInput is the text
// after the cursor; it is kept so a later confirmation can tell whether the
// candidate is still intact. Any failed round-trip yields no candidates.
func (s *Source) Gather(ctx context.Context, params config.Params, nextInput string) ([]Candidate, error) {
	p := &pass{
		src:    s,
		params: params,
		next:   nextInput,
		log:    s.log.WithField("pass", uuid.NewString()),
	}
	cands, err := p.run(ctx)
	if err != nil {
		p.log.Warn("gather failed in %s: %v", p.stage, err)
		return nil, err
	}
	return cands, nil
}

// OnCompleteDone restores an accepted candidate. It reports whether the
// buffer changed.
func (s *Source) OnCompleteDone(ctx context.Context, ev reconcile.Event, p reconcile.Pending) (bool, error) {
	return s.reconciler.Confirm(ctx, ev, p)
}

// pass is the transient state of one Gather call.
type pass struct {
	src    *Source
	params config.Params
	next   string
	log    *logging.Logger
	stage  Stage

	names   []rune
	regs    []register.Register
	columns int
	items   []*item
}

type item struct {
	reg    register.Register
	word   string
	abbr   string
	slices []string

	truncated *batch.Future[string]
	lengths   []*batch.Future[int]
}

func (p *pass) enter(st Stage) {
	p.log.Debug("%s -> %s", p.stage, st)
	p.stage = st
}

func (p *pass) run(ctx context.Context) ([]Candidate, error) {
	p.enter(StageSelecting)
	p.names = register.Select(p.params.Registers, p.src.clipboard)

	p.enter(StageFetching)
	if err := p.fetch(ctx); err != nil {
		return nil, err
	}

	p.enter(StageEncoding)
	p.encode()

	p.enter(StageWidthFetching)
	if err := p.measure(ctx); err != nil {
		return nil, err
	}

	p.enter(StageHighlighting)
	cands, err := p.render()
	if err != nil {
		return nil, err
	}

	p.enter(StageDone)
	return cands, nil
}

func (p *pass) fetch(ctx context.Context) error {
	type fetched struct {
		infos   []*batch.Future[register.Info]
		columns *batch.Future[int]
	}
	res, err := batch.Defer(ctx, p.src.host, func(b *batch.Batch) fetched {
		var f fetched
		f.infos = make([]*batch.Future[register.Info], len(p.names))
		for i, name := range p.names {
			f.infos[i] = host.RegisterInfo(b, name)
		}
		f.columns = host.Columns(b)
		return f
	})
	if err != nil {
		return fmt.Errorf("fetch registers: %w", err)
	}

	for i, f := range res.infos {
		info, err := f.Get()
		switch {
		case errors.Is(err, host.ErrNoContent):
			continue
		case err != nil:
			p.log.Debug("register %q dropped: %v", p.names[i], err)
			continue
		case info.Empty():
			continue
		}
		p.regs = append(p.regs, register.FromInfo(p.names[i], info))
	}

	p.columns = host.DefaultColumns
	if n, err := res.columns.Get(); err == nil && n > 0 {
		p.columns = n
	}
	return nil
}

func (p *pass) encode() {
	hl := p.params.HighlightEnabled()
	p.items = make([]*item, 0, len(p.regs))
	for _, reg := range p.regs {
		it := &item{reg: reg, word: codec.Encode(reg.Contents, reg.Mode)}
		it.abbr = codec.Abbreviate(it.word, p.src.set)
		if hl && it.abbr != it.word {
			it.slices = p.src.set.Split(it.word)
		}
		p.items = append(p.items, it)
	}
}

func (p *pass) measure(ctx context.Context) error {
	if len(p.items) == 0 {
		return nil
	}
	width := p.params.AbbrWidth(p.columns)
	_, err := batch.Defer(ctx, p.src.host, func(b *batch.Batch) struct{} {
		for _, it := range p.items {
			it.truncated = host.Truncate(b, it.abbr, width)
		}
		for _, it := range p.items {
			it.lengths = make([]*batch.Future[int], len(it.slices))
			for j, sl := range it.slices {
				if sl != "" {
					it.lengths[j] = host.ByteLength(b, sl)
				}
			}
		}
		return struct{}{}
	})
	if err != nil {
		return fmt.Errorf("measure candidates: %w", err)
	}
	return nil
}

func (p *pass) render() ([]Candidate, error) {
	group := p.params.HighlightGroup
	cands := make([]Candidate, 0, len(p.items))
	for _, it := range p.items {
		abbr, err := it.truncated.Get()
		if err != nil {
			return nil, fmt.Errorf("truncate register %q: %w", it.reg.Name, err)
		}

		c := Candidate{
			Word: it.word,
			Abbr: abbr,
			Info: it.word,
			Menu: string(it.reg.Name),
			Kind: it.reg.Mode.OperatorWise(),
			UserData: reconcile.Pending{
				Contents: it.reg.Contents,
				Mode:     it.reg.Mode,
				Word:     it.word,
				Suffix:   p.next,
			},
		}

		if len(it.slices) > 0 {
			slices := make([]highlight.Slice, len(it.slices))
			for j, sl := range it.slices {
				n := 0
				if f := it.lengths[j]; f != nil {
					if n, err = f.Get(); err != nil {
						return nil, fmt.Errorf("measure register %q: %w", it.reg.Name, err)
					}
				}
				slices[j] = highlight.NewSlice(sl, n)
			}
			c.Highlights = highlight.Compute(abbr, slices, group)
			if p.log.Enabled(logging.LogLevelDebug) {
				if err := highlight.Verify(c.Highlights, highlight.Extent(abbr, slices)); err != nil {
					p.log.Debug("register %q: %v", it.reg.Name, err)
				}
			}
		}
		cands = append(cands, c)
	}
	return cands, nil
}
