package egress

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type stubRT struct {
	calls int
}

func (s *stubRT) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
		Header:     make(http.Header),
	}, nil
}

func TestAllowlistRoundTripper(t *testing.T) {
	stub := &stubRT{}
	rt := NewAllowlistRoundTripper(stub, []string{"api.openai.com"})
	req, _ := http.NewRequest(http.MethodGet, "https://api.openai.com/v1/models", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, target := range []string{"http://api.openai.com/v1/models", "https://example.com", "https://127.0.0.1/v1"} {
		blocked, _ := http.NewRequest(http.MethodGet, target, nil)
		if _, err := rt.RoundTrip(blocked); !errors.Is(err, ErrBlocked) {
			t.Fatalf("expected %s to be blocked, got %v", target, err)
		}
	}
	if stub.calls != 1 {
		t.Fatalf("expected one request to reach the base transport, got %d", stub.calls)
	}
}

func TestSiteRoundTripperPinsHost(t *testing.T) {
	stub := &stubRT{}
	rt, err := NewSiteRoundTripper(stub, "http://127.0.0.1:8080/blog")
	if err != nil {
		t.Fatalf("new site round tripper: %v", err)
	}
	ok, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:8080/wp-json/wp/v2/posts", nil)
	if _, err := rt.RoundTrip(ok); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, target := range []string{"https://127.0.0.1:8080/wp-json", "http://127.0.0.1:9090/wp-json", "http://evil.test/wp-json"} {
		blocked, _ := http.NewRequest(http.MethodGet, target, nil)
		if _, err := rt.RoundTrip(blocked); !errors.Is(err, ErrBlocked) {
			t.Fatalf("expected %s to be blocked, got %v", target, err)
		}
	}
	if _, err := NewSiteRoundTripper(nil, "ftp://example.com"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ftp site to be rejected, got %v", err)
	}
}
