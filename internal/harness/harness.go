package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/nexus/internal/api"
	"github.com/roach88/nexus/internal/attach"
	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/index"
	"github.com/roach88/nexus/internal/ledger"
	"github.com/roach88/nexus/internal/store"
	"github.com/roach88/nexus/internal/testutil"
	"github.com/roach88/nexus/internal/validate"
)

// BaseURL prefixes every @id produced during a scenario run.
const BaseURL = "http://nexus.test"

// Retry budget for eventually steps.
const (
	initialBackoff = 5 * time.Millisecond
	maxBackoff     = 200 * time.Millisecond
	waitBudget     = 5 * time.Second
)

// maxAttachmentSize is small so scenarios can exercise the limit.
const maxAttachmentSize = 1024

// Harness executes steps against one stack and keeps captured variables.
type Harness struct {
	handler http.Handler
	vars    map[string]string
	logger  *slog.Logger
}

// Run executes scenario against a fresh stack in a temporary directory.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "nexus-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	l, err := ledger.Open(filepath.Join(dir, "nexus.db"))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	ix, err := index.New(l.DB(), 2)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ix.Start(ctx)
	defer ix.Close()

	s := store.New(l,
		store.WithValidator(validate.New(nil)),
		store.WithObserver(ix),
		store.WithClock(testutil.NewStepClock()),
		store.WithIDGenerator(testutil.NewSequenceIDs()),
	)
	blobs, err := attach.NewFSBlobStore(filepath.Join(dir, "blobs"))
	if err != nil {
		return nil, fmt.Errorf("create blob store: %w", err)
	}
	attachments := attach.NewService(s, blobs, attach.WithMaxSize(maxAttachmentSize))

	h := &Harness{
		handler: api.New(s, attachments, ix, api.WithBaseURL(BaseURL)).Handler(),
		vars:    map[string]string{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

type response struct {
	status int
	body   []byte
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	var (
		resp     response
		failures []string
		err      error
	)
	deadline := time.Now().Add(waitBudget)
	backoff := initialBackoff
	for {
		resp, err = h.send(step)
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Name, err)
		}
		failures = check(step.Expect, resp)
		if len(failures) == 0 || !step.Eventually || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}

	result.Outcomes = append(result.Outcomes, Outcome{
		Name:   step.Name,
		Method: step.Method,
		Status: resp.status,
		Code:   errorCode(resp),
	})
	for _, f := range failures {
		result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Name, f))
	}

	if len(failures) == 0 {
		for name, field := range step.Capture {
			v, err := captureField(resp, field)
			if err != nil {
				result.AddError(fmt.Sprintf("step %d (%s): capture %s: %v", i, step.Name, name, err))
				continue
			}
			h.vars[name] = v
		}
	}
	h.logger.Debug("step completed", "step", i, "name", step.Name, "status", resp.status)
	return nil
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

func (h *Harness) expand(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := h.vars[m[2:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

func (h *Harness) send(step Step) (response, error) {
	// Captured @ids are absolute; requests go straight to the handler.
	target := strings.TrimPrefix(h.expand(step.Path), BaseURL)
	if len(step.Query) > 0 {
		q := url.Values{}
		for k, v := range step.Query {
			q.Set(k, h.expand(v))
		}
		target += "?" + q.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case step.Body != nil:
		v, err := doc.FromAny(step.Body)
		if err != nil {
			return response{}, fmt.Errorf("encode body: %w", err)
		}
		data, err := doc.MarshalCanonical(v)
		if err != nil {
			return response{}, fmt.Errorf("encode body: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	case step.Raw != "":
		body, contentType = strings.NewReader(step.Raw), "application/json"
	case step.Upload != nil:
		data, ct, err := multipartBody(step.Upload)
		if err != nil {
			return response{}, err
		}
		body, contentType = bytes.NewReader(data), ct
	}

	req := httptest.NewRequest(step.Method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return response{status: rec.Code, body: rec.Body.Bytes()}, nil
}

func multipartBody(up *Upload) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.Filename))
	if up.MediaType != "" {
		header.Set("Content-Type", up.MediaType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart: %w", err)
	}
	if _, err := part.Write([]byte(up.Content)); err != nil {
		return nil, "", fmt.Errorf("write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// errorCode extracts "code" from JSON error bodies.
func errorCode(resp response) string {
	if resp.status < 400 {
		return ""
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return ""
	}
	return body.Code
}

func captureField(resp response, field string) (string, error) {
	obj, err := doc.ParseObject(resp.body)
	if err != nil {
		return "", fmt.Errorf("response is not a JSON object")
	}
	v, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("field %q not in response", field)
	}
	switch val := v.(type) {
	case doc.String:
		return string(val), nil
	case doc.Number:
		return string(val), nil
	default:
		return "", fmt.Errorf("field %q is not a string or number", field)
	}
}
