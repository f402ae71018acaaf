// Package httptemplate executes validated provider descriptors over HTTP.
package httptemplate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"talkback/internal/provider"
)

const maxErrorBody = 512

// request carries the runtime values for one call. files maps a reserved
// placeholder to raw bytes uploaded when a form field references it.
type request struct {
	values map[string]string
	raw    map[string]bool
	files  map[string][]byte
}

type client struct {
	desc       provider.Descriptor
	httpClient *http.Client
}

func newClient(desc provider.Descriptor, httpClient *http.Client) client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return client{desc: desc, httpClient: httpClient}
}

func (c client) do(ctx context.Context, req request) (string, error) {
	body, contentType, err := c.body(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, c.desc.Method, provider.Render(c.desc.URL, req.values), body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for _, h := range c.desc.Headers {
		if contentType != "" && strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		httpReq.Header.Add(h.Name, provider.Render(h.Value, req.values))
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, truncate(string(respBody)))
	}

	text, err := provider.Extract(respBody, c.desc.ResponsePath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// body renders either the data payload or the multipart form. The returned
// content type is only set for multipart bodies.
func (c client) body(req request) (io.Reader, string, error) {
	if len(c.desc.Form) > 0 {
		return c.multipart(req)
	}
	if c.desc.Body == "" {
		return nil, "", nil
	}

	values := req.values
	if c.desc.JSONBody() {
		values = make(map[string]string, len(req.values))
		for name, value := range req.values {
			if req.raw[name] {
				values[name] = value
				continue
			}
			values[name] = jsonEscape(value)
		}
	}
	return strings.NewReader(provider.Render(c.desc.Body, values)), "", nil
}

func (c client) multipart(req request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, field := range c.desc.Form {
		if field.File {
			data, name := c.fileContent(field.Value, req)
			part, err := writer.CreateFormFile(field.Name, name)
			if err != nil {
				return nil, "", fmt.Errorf("failed to create form file: %w", err)
			}
			if _, err := part.Write(data); err != nil {
				return nil, "", fmt.Errorf("failed to write form file: %w", err)
			}
			continue
		}
		if err := writer.WriteField(field.Name, provider.Render(field.Value, req.values)); err != nil {
			return nil, "", fmt.Errorf("failed to write form field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// fileContent resolves an @-prefixed form value. A bare reserved placeholder
// uploads the raw bytes registered for it; anything else is sent as text.
func (c client) fileContent(value string, req request) ([]byte, string) {
	for name, data := range req.files {
		if strings.TrimSpace(value) == "{{"+name+"}}" {
			return data, strings.ToLower(name) + ".wav"
		}
	}
	return []byte(provider.Render(value, req.values)), "upload"
}

func jsonEscape(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded[1 : len(encoded)-1])
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
