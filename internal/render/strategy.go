package render

import (
	"fmt"
	"strings"
)

// RedirectPolicy is the per-request redirect preference.
type RedirectPolicy int

const (
	// RedirectAuto lets the render strategy decide.
	RedirectAuto RedirectPolicy = iota
	// RedirectNever always renders in place.
	RedirectNever
	// RedirectAlways always redirects to the target URL.
	RedirectAlways
)

func (p RedirectPolicy) String() string {
	switch p {
	case RedirectAuto:
		return "auto"
	case RedirectNever:
		return "never"
	case RedirectAlways:
		return "always"
	default:
		return fmt.Sprintf("RedirectPolicy(%d)", int(p))
	}
}

// ParseRedirectPolicy parses "auto", "never" or "always".
func ParseRedirectPolicy(s string) (RedirectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return RedirectAuto, nil
	case "never":
		return RedirectNever, nil
	case "always":
		return RedirectAlways, nil
	default:
		return RedirectAuto, fmt.Errorf("unknown redirect policy: %q", s)
	}
}

// RenderStrategy is the application-wide render strategy.
type RenderStrategy int

const (
	// OnePassRender renders every non-Ajax request in place.
	OnePassRender RenderStrategy = iota
	// RedirectToRender redirects to the target URL and renders there.
	RedirectToRender
	// RedirectToBuffer renders into a buffer, stores it and redirects; the
	// redirected request replays the buffer.
	RedirectToBuffer
)

func (s RenderStrategy) String() string {
	switch s {
	case OnePassRender:
		return "one_pass_render"
	case RedirectToRender:
		return "redirect_to_render"
	case RedirectToBuffer:
		return "redirect_to_buffer"
	default:
		return fmt.Sprintf("RenderStrategy(%d)", int(s))
	}
}

// ParseRenderStrategy parses a strategy name such as "redirect_to_buffer".
func ParseRenderStrategy(s string) (RenderStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "one_pass_render":
		return OnePassRender, nil
	case "redirect_to_render":
		return RedirectToRender, nil
	case "", "redirect_to_buffer":
		return RedirectToBuffer, nil
	default:
		return RedirectToBuffer, fmt.Errorf("unknown render strategy: %q", s)
	}
}

// Action is the response the engine produced.
type Action int

const (
	// ActionReplay wrote a previously buffered response.
	ActionReplay Action = iota
	// ActionRender rendered the page directly against the current URL.
	ActionRender
	// ActionRedirect redirected to the target URL without rendering.
	ActionRedirect
	// ActionWriteBuffer rendered into a buffer and wrote it in place.
	ActionWriteBuffer
	// ActionBufferRedirect stored the rendered buffer and redirected to it.
	ActionBufferRedirect
)

func (a Action) String() string {
	switch a {
	case ActionReplay:
		return "replay"
	case ActionRender:
		return "render"
	case ActionRedirect:
		return "redirect"
	case ActionWriteBuffer:
		return "write_buffer"
	case ActionBufferRedirect:
		return "buffer_redirect"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Redirects reports whether the action sends a redirect to the client.
func (a Action) Redirects() bool {
	return a == ActionRedirect || a == ActionBufferRedirect
}
