package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

func trimBase(u string) string {
	return strings.TrimRight(u, "/")
}

// chatCall posts body to url and returns the first choice's content.
func chatCall(ctx context.Context, hc *http.Client, backend, url string, timeout time.Duration, header http.Header, body chatRequest) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &GatewayError{Backend: backend, Message: "marshaling request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &GatewayError{Backend: backend, Message: "creating request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return "", &GatewayError{Backend: backend, Message: "executing request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &GatewayError{Backend: backend, Message: msg, Status: resp.StatusCode}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &GatewayError{Backend: backend, Message: "decoding response", Err: err}
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", &GatewayError{Backend: backend, Message: out.Error.Message}
	}
	if len(out.Choices) == 0 {
		return "", &GatewayError{Backend: backend, Message: "response has no choices"}
	}
	return out.Choices[0].Message.Content, nil
}
