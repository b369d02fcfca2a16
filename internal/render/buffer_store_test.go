package render

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/pagestate/pkg/errors"
)

func body(s string) *BufferedResponse {
	return &BufferedResponse{StatusCode: http.StatusOK, Body: []byte(s)}
}

func TestLRUBufferStore_FetchAndRemove(t *testing.T) {
	store, err := NewLRUBufferStore(4)
	require.NoError(t, err)

	store.Store("s1", "/a", body("a"))

	_, ok := store.FetchAndRemove("s2", "/a")
	assert.False(t, ok, "other session")

	resp, ok := store.FetchAndRemove("s1", "/a")
	require.True(t, ok)
	assert.Equal(t, "a", string(resp.Body))

	_, ok = store.FetchAndRemove("s1", "/a")
	assert.False(t, ok, "second fetch")
}

func TestLRUBufferStore_Capacity(t *testing.T) {
	store, err := NewLRUBufferStore(2)
	require.NoError(t, err)

	store.Store("s1", "/a", body("a"))
	store.Store("s1", "/b", body("b"))
	store.Store("s1", "/c", body("c"))

	assert.Equal(t, 2, store.Len())
	_, ok := store.FetchAndRemove("s1", "/a")
	assert.False(t, ok, "oldest buffer dropped")
	_, ok = store.FetchAndRemove("s1", "/c")
	assert.True(t, ok)
}

func TestLRUBufferStore_RemoveSession(t *testing.T) {
	store, err := NewLRUBufferStore(8)
	require.NoError(t, err)

	store.Store("s1", "/a", body("a"))
	store.Store("s1", "/b", body("b"))
	store.Store("s2", "/a", body("a"))

	assert.Equal(t, 2, store.RemoveSession("s1"))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 0, store.RemoveSession("s1"))
}

func TestLRUBufferStore_InvalidCapacity(t *testing.T) {
	_, err := NewLRUBufferStore(0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidBound, errors.CodeOf(err))
}

func TestLRUBufferStore_Concurrent(t *testing.T) {
	store, err := NewLRUBufferStore(1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			session := fmt.Sprintf("s%d", g)
			for i := 0; i < 50; i++ {
				url := fmt.Sprintf("/p/%d", i)
				store.Store(session, url, body(url))
				resp, ok := store.FetchAndRemove(session, url)
				if assert.True(t, ok) {
					assert.Equal(t, url, string(resp.Body))
				}
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 0, store.Len())
}

func TestHTTPResponder(t *testing.T) {
	t.Run("write", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := &HTTPResponder{W: rec, R: httptest.NewRequest(http.MethodGet, "/form", nil)}

		err := r.Write(&BufferedResponse{
			StatusCode: http.StatusAccepted,
			Header:     http.Header{"Content-Type": {"text/html"}},
			Body:       []byte("<p>hi</p>"),
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
		assert.Equal(t, "<p>hi</p>", rec.Body.String())
	})

	t.Run("write defaults to ok", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := &HTTPResponder{W: rec, R: httptest.NewRequest(http.MethodGet, "/form", nil)}
		require.NoError(t, r.Write(&BufferedResponse{Body: []byte("x")}))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("redirect", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := &HTTPResponder{W: rec, R: httptest.NewRequest(http.MethodPost, "/form", nil)}
		require.NoError(t, r.Redirect("/orders?1"))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/orders?1", rec.Header().Get("Location"))
	})

	t.Run("redirect status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := &HTTPResponder{W: rec, R: httptest.NewRequest(http.MethodPost, "/form", nil), RedirectStatus: http.StatusSeeOther}
		require.NoError(t, r.Redirect("/orders?1"))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})
}

func TestBufferingWriter(t *testing.T) {
	w := NewBufferingWriter()
	w.Header().Set("X-Page", "1")
	w.WriteHeader(http.StatusCreated)
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte("hello "))
	_, _ = w.Write([]byte("world"))

	resp := w.Response()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Page"))
	assert.Equal(t, "hello world", string(resp.Body))

	w.Header().Set("X-Page", "2")
	assert.Equal(t, "1", resp.Header.Get("X-Page"), "response is a snapshot")

	assert.Equal(t, http.StatusOK, NewBufferingWriter().Response().StatusCode)
}

func TestRenderHandler(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "path=%s query=%s", r.URL.Path, r.URL.RawQuery)
	})
	r := httptest.NewRequest(http.MethodPost, "http://example.com/form", nil)

	resp, err := RenderHandler(h, r, "/orders?3")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "path=/orders query=3", string(resp.Body))
	assert.Equal(t, "/form", r.URL.Path, "original request untouched")
}
