package dispatch

import "code.cloudfoundry.org/handy-httpd/internal/httperr"

// Handler is the single operation the core dispatches to: perform side
// effects on ctx.Response. Any error it returns is caught by the
// exception handler.
type Handler func(ctx *Context) error

// Continuation is passed to a Filter's Apply; invoking it runs the rest
// of the chain. It must be invoked at most once.
type Continuation func(ctx *Context) error

// Filter is one stage of the dispatch chain. Apply may transform the
// response and return without calling next (short-circuit), or call next
// exactly once and optionally post-process afterward.
type Filter interface {
	Apply(ctx *Context, next Continuation) error
}

// FilterFunc adapts a plain function to Filter, the way negroni.HandlerFunc
// adapts a function to negroni.Handler.
type FilterFunc func(ctx *Context, next Continuation) error

func (f FilterFunc) Apply(ctx *Context, next Continuation) error { return f(ctx, next) }

// Chain links an ordered list of filters to a terminal Handler. Run walks
// the filter slice on every request, building each filter's one-shot
// continuation as it goes.
type Chain struct {
	terminal Handler
	filters  []Filter
}

// NewChain returns a Chain that runs filters in order and then the
// terminal handler.
func NewChain(terminal Handler, filters ...Filter) *Chain {
	return &Chain{terminal: terminal, filters: filters}
}

// Run executes the chain against ctx. Each filter's continuation is
// wrapped with a one-shot guard: a second invocation is a programming
// error and is reported as httperr.KindInternal rather than silently
// re-running the rest of the chain.
func (c *Chain) Run(ctx *Context) error {
	return runFrom(ctx, c.filters, c.terminal)
}

func runFrom(ctx *Context, filters []Filter, terminal Handler) error {
	if len(filters) == 0 {
		return terminal(ctx)
	}

	current := filters[0]
	rest := filters[1:]

	invoked := false
	next := Continuation(func(ctx *Context) error {
		if invoked {
			return httperr.Internal("filter invoked its continuation more than once")
		}
		invoked = true
		return runFrom(ctx, rest, terminal)
	})

	return current.Apply(ctx, next)
}
