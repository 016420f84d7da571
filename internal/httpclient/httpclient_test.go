package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
)

func TestRequest(t *testing.T) {
	c := qt.New(t)
	token := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Check(r.Header.Get("Authorization"), qt.Equals, "Bearer "+token.String())
		c.Check(r.URL.Path, qt.Equals, "/v1/pub/elections/01")
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		c.Check(json.Unmarshal(body, &req), qt.IsNil)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(req["echo"]))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL + "/v1/pub")
	c.Assert(err, qt.IsNil)
	cl := New(u, &token)
	data, status, err := cl.Request(context.Background(), http.MethodPost,
		map[string]string{"echo": "hello"}, "elections", "01")
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusTeapot)
	c.Assert(string(data), qt.Equals, "hello")
	// the base URL is not modified by requests
	c.Assert(cl.Host().Path, qt.Equals, "/v1/pub")
}

func TestRequestRetriesOnlyGET(t *testing.T) {
	c := qt.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// drop the connection without answering
		conn, _, err := w.(http.Hijacker).Hijack()
		if !c.Check(err, qt.IsNil) {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	c.Assert(err, qt.IsNil)
	cl := New(u, nil)
	cl.SetRetries(2)

	_, _, err = cl.Request(context.Background(), http.MethodGet, nil, "x")
	c.Assert(err, qt.IsNotNil)
	c.Assert(hits.Load(), qt.Equals, int32(2))

	hits.Store(0)
	_, _, err = cl.Request(context.Background(), http.MethodPost, struct{}{}, "x")
	c.Assert(err, qt.IsNotNil)
	c.Assert(hits.Load(), qt.Equals, int32(1))

	hits.Store(0)
	_, _, err = cl.RequestOnce(context.Background(), http.MethodGet, nil, "x")
	c.Assert(err, qt.IsNotNil)
	c.Assert(hits.Load(), qt.Equals, int32(1))
}
