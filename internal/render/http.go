package render

import (
	"bytes"
	"net/http"
)

// HTTPResponder writes engine output to an http.ResponseWriter.
type HTTPResponder struct {
	W http.ResponseWriter
	R *http.Request
	// RedirectStatus defaults to 302 Found.
	RedirectStatus int
}

// Write implements Responder.
func (h *HTTPResponder) Write(resp *BufferedResponse) error {
	header := h.W.Header()
	for key, values := range resp.Header {
		header[key] = append([]string(nil), values...)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	h.W.WriteHeader(status)
	_, err := h.W.Write(resp.Body)
	return err
}

// Redirect implements Responder.
func (h *HTTPResponder) Redirect(url string) error {
	status := h.RedirectStatus
	if status == 0 {
		status = http.StatusFound
	}
	http.Redirect(h.W, h.R, url, status)
	return nil
}

// BufferingWriter is an http.ResponseWriter that captures a response in
// memory, so an http.Handler can render a page into a BufferedResponse.
type BufferingWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

// NewBufferingWriter creates an empty BufferingWriter.
func NewBufferingWriter() *BufferingWriter {
	return &BufferingWriter{header: make(http.Header)}
}

// Header implements http.ResponseWriter.
func (b *BufferingWriter) Header() http.Header {
	return b.header
}

// WriteHeader implements http.ResponseWriter. Only the first call counts.
func (b *BufferingWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

// Write implements http.ResponseWriter.
func (b *BufferingWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// Response returns the captured response.
func (b *BufferingWriter) Response() *BufferedResponse {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	return &BufferedResponse{
		StatusCode: status,
		Header:     b.header.Clone(),
		Body:       append([]byte(nil), b.body.Bytes()...),
	}
}

// RenderHandler renders h against url by replaying r with the URL replaced.
func RenderHandler(h http.Handler, r *http.Request, url string) (*BufferedResponse, error) {
	req := r.Clone(r.Context())
	target, err := r.URL.Parse(url)
	if err != nil {
		return nil, err
	}
	req.URL = target
	req.RequestURI = target.RequestURI()

	w := NewBufferingWriter()
	h.ServeHTTP(w, req)
	return w.Response(), nil
}
