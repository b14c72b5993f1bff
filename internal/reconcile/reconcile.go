// Package reconcile restores the real multi-line contents of a register
// after its single-line completion candidate has been accepted.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/regcomp/internal/batch"
	"github.com/dshills/regcomp/internal/codec"
	"github.com/dshills/regcomp/internal/host"
	"github.com/dshills/regcomp/internal/logging"
	"github.com/dshills/regcomp/internal/register"
	"github.com/dshills/regcomp/internal/unprintable"
)

// Pending is carried as a candidate's user data until it is accepted.
type Pending struct {
	Contents []string      `json:"contents" msgpack:"contents"`
	Mode     register.Mode `json:"mode" msgpack:"mode"`
	Word     string        `json:"word" msgpack:"word"`
	Suffix   string        `json:"suffix" msgpack:"suffix"`
}

// Event describes an accepted candidate.
type Event struct {
	LineNr int `json:"line_nr" msgpack:"line_nr"`
	// Line is the current text of line LineNr. When set, Confirm does not
	// read the line back from the editor.
	Line string `json:"line,omitempty" msgpack:"line,omitempty"`
}

// Plan is a computed buffer replacement.
type Plan struct {
	Start  int
	Lines  []string
	Cursor host.Cursor

	// CursorText is the last replacement line up to the new cursor. The
	// cursor column is its byte length in the editor's encoding plus one.
	CursorText string
}

// NeedsReplace reports whether inserting p's word verbatim differs from
// inserting its contents.
func NeedsReplace(p Pending, set *unprintable.Set) bool {
	switch {
	case p.Mode.Kind == register.KindLinewise:
		return true
	case len(p.Contents) > 1:
		return true
	case len(p.Contents) == 1:
		return set.MatchString(p.Contents[0])
	default:
		return false
	}
}

// MakePlan computes the replacement for line lnum, whose current text is
// line. It returns false when no replacement is needed or the inserted word
// is no longer intact.
func MakePlan(line string, lnum int, p Pending, set *unprintable.Set) (Plan, bool) {
	if !NeedsReplace(p, set) {
		return Plan{}, false
	}

	inserted := p.Word + p.Suffix
	if !strings.HasSuffix(line, inserted) {
		return Plan{}, false
	}
	prefix := line[:len(line)-len(inserted)]

	lines := codec.Decode(p.Word)
	lines[0] = prefix + lines[0]
	last := len(lines) - 1
	cursorText := lines[last]
	lines[last] += p.Suffix

	return Plan{
		Start:      lnum,
		Lines:      lines,
		Cursor:     host.Cursor{Line: lnum + last, Column: len(cursorText) + 1},
		CursorText: cursorText,
	}, true
}

// Reconciler applies plans to a host.
type Reconciler struct {
	host host.Host
	set  *unprintable.Set
	log  *logging.Logger
}

// New creates a reconciler.
func New(h host.Host, set *unprintable.Set, log *logging.Logger) *Reconciler {
	return &Reconciler{
		host: h,
		set:  set,
		log:  logging.OrNull(log).WithComponent("reconcile"),
	}
}

// Confirm reconciles an accepted candidate. It reports whether the buffer
// was changed. A stale candidate is not an error.
func (r *Reconciler) Confirm(ctx context.Context, ev Event, p Pending) (bool, error) {
	if !NeedsReplace(p, r.set) {
		return false, nil
	}

	current, err := r.line(ctx, ev)
	if err != nil {
		return false, err
	}

	plan, ok := MakePlan(current, ev.LineNr, p, r.set)
	if !ok {
		r.log.Debug("line %d no longer ends with the inserted word; skipping", ev.LineNr)
		return false, nil
	}

	width, err := batch.Defer(ctx, r.host, func(b *batch.Batch) *batch.Future[int] {
		return host.ByteLength(b, plan.CursorText)
	})
	if err != nil {
		return false, fmt.Errorf("measure cursor column: %w", err)
	}
	n, err := width.Get()
	if err != nil {
		return false, fmt.Errorf("measure cursor column: %w", err)
	}
	plan.Cursor.Column = n + 1

	if err := r.host.ReplaceLines(ctx, plan.Start, plan.Lines, plan.Cursor); err != nil {
		return false, fmt.Errorf("replace line %d: %w", plan.Start, err)
	}
	r.log.Debug("replaced line %d with %d lines, cursor %d:%d",
		plan.Start, len(plan.Lines), plan.Cursor.Line, plan.Cursor.Column)
	return true, nil
}

func (r *Reconciler) line(ctx context.Context, ev Event) (string, error) {
	if ev.Line != "" {
		return ev.Line, nil
	}
	line, err := batch.Defer(ctx, r.host, func(b *batch.Batch) *batch.Future[string] {
		return host.Line(b, ev.LineNr)
	})
	if err != nil {
		return "", fmt.Errorf("read line %d: %w", ev.LineNr, err)
	}
	current, err := line.Get()
	if err != nil {
		return "", fmt.Errorf("read line %d: %w", ev.LineNr, err)
	}
	return current, nil
}
