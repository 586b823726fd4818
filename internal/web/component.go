// Package web defines the contract between the container and the handler,
// filter and listener components it hosts.
package web

// Component is anything the container instantiates lazily and initialises
// exactly once before first use.
type Component interface {
	Init(cfg Config) error
}

type Handler interface {
	Component
	Service(req *Request, res Response) error
}

// Filter intercepts a request before its handler. Forwarding is done by
// calling next.Proceed; returning without doing so short-circuits the chain.
type Filter interface {
	Component
	DoFilter(req *Request, res Response, next Chain) error
}

// Destroyer is implemented by components that release resources on shutdown.
type Destroyer interface {
	Destroy()
}

type Outcome int

const (
	Completed Outcome = iota
	ShortCircuited
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case ShortCircuited:
		return "short_circuited"
	default:
		return "unknown"
	}
}

// Chain is the remainder of a filter chain, ending in the handler.
type Chain interface {
	Proceed(req *Request, res Response) (Outcome, error)
}

// HandlerFunc adapts a plain function into a Handler with a no-op Init.
type HandlerFunc func(req *Request, res Response) error

func (f HandlerFunc) Init(Config) error { return nil }

func (f HandlerFunc) Service(req *Request, res Response) error { return f(req, res) }

// FilterFunc adapts a plain function into a Filter with a no-op Init.
type FilterFunc func(req *Request, res Response, next Chain) error

func (f FilterFunc) Init(Config) error { return nil }

func (f FilterFunc) DoFilter(req *Request, res Response, next Chain) error {
	return f(req, res, next)
}
