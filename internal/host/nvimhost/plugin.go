package nvimhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/neovim/go-client/nvim/plugin"

	"github.com/dshills/regcomp/internal/config"
	"github.com/dshills/regcomp/internal/logging"
	"github.com/dshills/regcomp/internal/reconcile"
	"github.com/dshills/regcomp/internal/source"
)

// Function names exported to Neovim.
const (
	FuncGather  = "RegcompGather"
	FuncConfirm = "RegcompConfirm"
)

// Plugin serves the completion source as Neovim remote functions. The source
// is initialized on first use because initialization needs a live
// connection.
type Plugin struct {
	host   *Host
	params func() config.Params
	log    *logging.Logger

	mu  sync.Mutex
	src *source.Source
}

// NewPlugin creates the handlers. params is consulted on every gather so a
// reloaded configuration takes effect without a restart.
func NewPlugin(h *Host, params func() config.Params, log *logging.Logger) *Plugin {
	return &Plugin{
		host:   h,
		params: params,
		log:    logging.OrNull(log).WithComponent("plugin"),
	}
}

// Register installs the remote functions on p.
func (pl *Plugin) Register(p *plugin.Plugin) {
	p.HandleFunction(&plugin.FunctionOptions{Name: FuncGather}, pl.gather)
	p.HandleFunction(&plugin.FunctionOptions{Name: FuncConfirm}, pl.confirm)
}

func (pl *Plugin) source(ctx context.Context) (*source.Source, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.src != nil {
		return pl.src, nil
	}
	src, err := source.New(ctx, pl.host, source.WithLogger(pl.log))
	if err != nil {
		return nil, err
	}
	pl.src = src
	return src, nil
}

// gather handles RegcompGather(params, next_input). Failures are logged and
// answered with an empty list.
func (pl *Plugin) gather(args []any) ([]source.Candidate, error) {
	ctx := context.Background()
	empty := []source.Candidate{}

	var raw any
	var next string
	if len(args) > 0 {
		raw = args[0]
	}
	if len(args) > 1 {
		next, _ = args[1].(string)
	}

	params, err := mergeParams(pl.params(), raw)
	if err != nil {
		pl.log.Warn("%s: %v", FuncGather, err)
		return empty, nil
	}

	src, err := pl.source(ctx)
	if err != nil {
		pl.log.Error("%s: %v", FuncGather, err)
		return empty, nil
	}
	cands, err := src.Gather(ctx, params, next)
	if err != nil {
		return empty, nil
	}
	return cands, nil
}

// confirm handles RegcompConfirm(event, user_data).
func (pl *Plugin) confirm(args []any) (bool, error) {
	if len(args) < 2 {
		return false, fmt.Errorf("%s: want (event, user_data), got %d arguments", FuncConfirm, len(args))
	}
	var ev reconcile.Event
	if err := decode(args[0], &ev); err != nil {
		return false, fmt.Errorf("%s: event: %w", FuncConfirm, err)
	}
	var p reconcile.Pending
	if err := decode(args[1], &p); err != nil {
		return false, fmt.Errorf("%s: user_data: %w", FuncConfirm, err)
	}

	ctx := context.Background()
	src, err := pl.source(ctx)
	if err != nil {
		return false, err
	}
	changed, err := src.OnCompleteDone(ctx, ev, p)
	if err != nil {
		pl.log.Error("%s: %v", FuncConfirm, err)
		return false, err
	}
	return changed, nil
}

// decode converts a loosely typed msgpack value into out through JSON.
func decode(v any, out any) error {
	data, err := json.Marshal(normalize(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// mergeParams overlays the decoded msgpack map from Neovim on base.
func mergeParams(base config.Params, raw any) (config.Params, error) {
	if raw == nil {
		return base, nil
	}
	data, err := json.Marshal(normalize(raw))
	if err != nil {
		return base, fmt.Errorf("encode source params: %w", err)
	}
	return config.MergeParams(base, json.RawMessage(data))
}

// normalize converts msgpack maps with interface keys into JSON-encodable
// maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []byte:
		return string(t)
	default:
		return v
	}
}
