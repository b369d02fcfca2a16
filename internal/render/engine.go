// Package render decides, for each page request, whether to render in place,
// redirect, or render into a buffer that the redirected request replays.
package render

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
	"github.com/objectfs/pagestate/pkg/utils"
)

// BufferedResponse is a fully rendered response held for later replay.
type BufferedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Page is the page a request responds with.
type Page interface {
	// TargetURL maps the page to its canonical URL. It may change once the
	// page has rendered, since rendering can change statelessness.
	TargetURL() string
	// Stateless reports whether the page currently holds no state.
	Stateless() bool
	// Render renders the page as if it had been requested at url.
	Render(url string) (*BufferedResponse, error)
}

// BufferStore holds rendered responses keyed by session and URL until the
// redirected request fetches them. Implementations must be safe for
// concurrent use.
type BufferStore interface {
	Store(session, url string, resp *BufferedResponse)
	// FetchAndRemove returns and forgets the response stored for url.
	FetchAndRemove(session, url string) (*BufferedResponse, bool)
}

// Responder writes the single response of a request.
type Responder interface {
	Write(resp *BufferedResponse) error
	Redirect(url string) error
}

// Request is the per-request decision context.
type Request struct {
	Session          string
	CurrentURL       string
	Policy           RedirectPolicy
	Ajax             bool
	NewPageInstance  bool
	SessionTemporary bool
	// PreserveURL asks for the client URL to be kept, e.g. for a bookmarkable
	// error page.
	PreserveURL bool
	Page        Page
}

// Decision describes what Respond did.
type Decision struct {
	Action     Action
	URL        string
	Rerendered bool
}

// Config configures an Engine.
type Config struct {
	Strategy                       RenderStrategy
	EnableRedirectForStatelessPage bool
	// DefaultPolicy applies to requests whose Policy is RedirectAuto.
	DefaultPolicy RedirectPolicy
}

// Engine applies the render strategy. It holds no per-request state.
type Engine struct {
	config  Config
	buffers BufferStore
	metrics types.MetricsRecorder
	logger  *utils.StructuredLogger
}

// NewEngine creates an engine. buffers is required for RedirectToBuffer.
func NewEngine(config Config, buffers BufferStore, metrics types.MetricsRecorder, logger *utils.StructuredLogger) (*Engine, error) {
	if buffers == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "buffer store is required").
			WithComponent("render")
	}
	if metrics == nil {
		metrics = types.NopMetrics{}
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Engine{
		config:  config,
		buffers: buffers,
		metrics: metrics,
		logger:  logger.WithComponent("render"),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Respond produces exactly one response for req through out. Rules are
// tried in order and the first match wins:
//
//  1. replay a response buffered for the current URL
//  2. render in place
//  3. redirect without rendering
//  4. redirect when no buffer can be kept for a new URL
//  5. render into a buffer, then write it or store it and redirect
func (e *Engine) Respond(req Request, out Responder) (Decision, error) {
	if req.Policy == RedirectAuto {
		req.Policy = e.config.DefaultPolicy
	}
	if buf, ok := e.buffers.FetchAndRemove(req.Session, req.CurrentURL); ok {
		return e.finish(req, "", Decision{Action: ActionReplay, URL: req.CurrentURL}, out.Write(buf))
	}

	targetURL := req.Page.TargetURL()
	sameURL := targetURL == req.CurrentURL
	stateless := req.Page.Stateless()

	if e.shouldRenderInPlace(req, sameURL, stateless) {
		resp, err := req.Page.Render(req.CurrentURL)
		if err != nil {
			return e.fail(req, targetURL, err)
		}
		return e.finish(req, targetURL, Decision{Action: ActionRender, URL: req.CurrentURL}, out.Write(resp))
	}

	if e.shouldRedirectNow(req, sameURL) ||
		(!sameURL && (req.NewPageInstance || (req.SessionTemporary && stateless))) {
		return e.finish(req, targetURL, Decision{Action: ActionRedirect, URL: targetURL}, out.Redirect(targetURL))
	}

	return e.renderToBuffer(req, targetURL, out)
}

func (e *Engine) shouldRenderInPlace(req Request, sameURL, stateless bool) bool {
	if req.Policy == RedirectNever {
		return true
	}
	if req.Policy == RedirectAlways {
		return false
	}
	switch {
	case e.config.Strategy == OnePassRender && !req.Ajax:
		return true
	case sameURL && !req.NewPageInstance && !stateless:
		return true
	case sameURL && e.config.Strategy == RedirectToRender:
		return true
	default:
		return req.PreserveURL
	}
}

func (e *Engine) shouldRedirectNow(req Request, sameURL bool) bool {
	return req.Policy == RedirectAlways ||
		e.config.Strategy == RedirectToRender ||
		(req.Ajax && sameURL)
}

func (e *Engine) renderToBuffer(req Request, beforeURL string, out Responder) (Decision, error) {
	resp, err := req.Page.Render(req.CurrentURL)
	if err != nil {
		return e.fail(req, beforeURL, err)
	}

	decision := Decision{}
	afterURL := req.Page.TargetURL()
	// Relative links in the buffer are only valid for the path depth they were
	// rendered against. Re-render once if it changed.
	if segmentCount(afterURL) != segmentCount(beforeURL) {
		resp, err = req.Page.Render(afterURL)
		if err != nil {
			return e.fail(req, afterURL, err)
		}
		decision.Rerendered = true
	}

	switch {
	case afterURL == req.CurrentURL:
		decision.Action, decision.URL = ActionWriteBuffer, req.CurrentURL
		return e.finish(req, afterURL, decision, out.Write(resp))

	case req.Page.Stateless() && !e.config.EnableRedirectForStatelessPage:
		decision.Action, decision.URL = ActionWriteBuffer, req.CurrentURL
		return e.finish(req, afterURL, decision, out.Write(resp))

	default:
		e.buffers.Store(req.Session, afterURL, resp)
		decision.Action, decision.URL = ActionBufferRedirect, afterURL
		return e.finish(req, afterURL, decision, out.Redirect(afterURL))
	}
}

func (e *Engine) finish(req Request, targetURL string, d Decision, err error) (Decision, error) {
	e.metrics.RecordRenderDecision(d.Action.String())
	e.logger.Debug("render decision", map[string]interface{}{
		"session":     req.Session,
		"current_url": req.CurrentURL,
		"target_url":  targetURL,
		"action":      d.Action.String(),
		"rerendered":  d.Rerendered,
	})
	if err != nil {
		return d, errors.Wrap(err, errors.ErrCodeRenderFailed, "failed to write response").
			WithComponent("render").WithOperation(d.Action.String()).WithSession(req.Session)
	}
	return d, nil
}

func (e *Engine) fail(req Request, targetURL string, err error) (Decision, error) {
	e.logger.Warn("page render failed", map[string]interface{}{
		"session":     req.Session,
		"current_url": req.CurrentURL,
		"target_url":  targetURL,
		"error":       err,
	})
	return Decision{}, errors.Wrap(err, errors.ErrCodeRenderFailed, "failed to render page").
		WithComponent("render").WithOperation("Render").WithSession(req.Session)
}

// segmentCount returns the number of path segments in rawURL.
func segmentCount(rawURL string) int {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return 0
	}
	return strings.Count(path, "/") + 1
}
