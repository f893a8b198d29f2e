package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/kdevda/go-mailflow/core"
)

func TestRESTAdapter_SendsHeadersAndBody(t *testing.T) {
	var gotAuth, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"prov_1"}`))
	}))
	defer server.Close()

	req, err := NewJSONRequest(http.MethodPost, server.URL+"/emails", map[string]any{"subject": "hi"})
	if err != nil {
		t.Fatalf("new json request: %v", err)
	}
	req.Headers["Authorization"] = "Bearer re_test"

	res, err := NewRESTAdapter(server.Client()).Do(context.Background(), req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != `{"id":"prov_1"}` {
		t.Fatalf("unexpected response %#v", res)
	}
	if gotAuth != "Bearer re_test" || gotContentType != "application/json" {
		t.Fatalf("unexpected headers auth=%q content-type=%q", gotAuth, gotContentType)
	}
	if gotBody != `{"subject":"hi"}` {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestRESTAdapter_TimeoutIsExternalError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewRESTAdapter(server.Client()).Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     server.URL,
		Timeout: 20 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal || rich.TextCode != core.MailflowErrorProviderError {
		t.Fatalf("expected external provider error, got %#v", rich)
	}
}

func TestRESTAdapter_EnforcesResponseLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	_, err := NewRESTAdapter(server.Client()).Do(context.Background(), Request{
		URL:                  server.URL,
		MaxResponseBodyBytes: 16,
	})
	if err == nil || !strings.Contains(err.Error(), "exceeds limit") {
		t.Fatalf("expected response limit error, got %v", err)
	}
}

func TestRESTAdapter_RejectsInvalidURL(t *testing.T) {
	_, err := NewRESTAdapter(nil).Do(context.Background(), Request{URL: "::not-a-url"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input error, got %v", err)
	}
}
