package llm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodyBytes = 2048

// CheckStatus maps an HTTP status to the provider sentinel errors. It returns
// nil for 2xx responses.
func CheckStatus(provider string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return ErrUnavailable
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return fmt.Errorf("%s error: %s - %s", provider, resp.Status, strings.TrimSpace(string(body)))
}

// TransportError keeps egress policy failures recognizable after net/http
// wraps them.
func TransportError(err error) error {
	if errors.Is(err, ErrEgressBlocked) {
		return ErrEgressBlocked
	}
	return err
}

// ReadSSE feeds every `data:` payload of a server-sent event stream to onData
// until the stream ends, onData returns done, or a "[DONE]" payload arrives.
func ReadSSE(body io.Reader, onData func(data string) (done bool, err error)) error {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 2*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}
		done, err := onData(data)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return scanner.Err()
}
