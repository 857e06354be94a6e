package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/attach"
	"github.com/roach88/nexus/internal/index"
	"github.com/roach88/nexus/internal/ledger"
	"github.com/roach88/nexus/internal/metrics"
	"github.com/roach88/nexus/internal/store"
	"github.com/roach88/nexus/internal/testutil"
	"github.com/roach88/nexus/internal/validate"
)

const (
	baseURL      = "http://nexus.test"
	firstID      = "00000000-0000-7000-8000-000000000001"
	schemaPath   = "/v0/schemas/bbp/core/person/v1.0.0"
	dataPath     = "/v0/data/bbp/core/person/v1.0.0"
	instancePath = dataPath + "/" + firstID
)

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
	ix  *index.Index
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	m := metrics.New()
	ix, err := index.New(l.DB(), 2, index.WithMetrics(m))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ix.Start(ctx)

	s := store.New(l,
		store.WithValidator(validate.New(nil)),
		store.WithObserver(ix),
		store.WithClock(testutil.NewStepClock()),
		store.WithIDGenerator(testutil.NewSequenceIDs()),
		store.WithMetrics(m),
	)
	blobs, err := attach.NewFSBlobStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	svc := attach.NewService(s, blobs, attach.WithMaxSize(1024))

	srv := httptest.NewServer(New(s, svc, ix, WithBaseURL(baseURL), WithMetrics(m)).Handler())
	t.Cleanup(func() {
		srv.Close()
		ix.Close()
		cancel()
	})
	return &testAPI{t: t, srv: srv, ix: ix}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.body, &out), string(r.body))
	return out
}

func (a *testAPI) do(method, path string, body io.Reader, contentType string) response {
	a.t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, body)
	require.NoError(a.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}

func (a *testAPI) send(method, path, body string) response {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return a.do(method, path, r, "application/json")
}

func (a *testAPI) drain() {
	a.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(a.t, a.ix.Drain(ctx))
}

// seed creates org bbp, domain core and a published person schema.
func (a *testAPI) seed() {
	a.t.Helper()
	require.Equal(a.t, http.StatusCreated, a.send("PUT", "/v0/organizations/bbp", `{"description": "BBP"}`).status)
	require.Equal(a.t, http.StatusCreated, a.send("PUT", "/v0/domains/bbp/core", `{"description": "Core Domain"}`).status)
	require.Equal(a.t, http.StatusCreated, a.send("PUT", schemaPath, testutil.PersonSchema).status)
	require.Equal(a.t, http.StatusOK, a.send("PATCH", schemaPath+"/config?rev=1", `{"published": true}`).status)
}

func assertError(t *testing.T, r response, status int, code string) {
	t.Helper()
	assert.Equal(t, status, r.status, string(r.body))
	assert.Equal(t, code, r.json(t)["code"])
}

func TestOrganizationLifecycle(t *testing.T) {
	a := newTestAPI(t)

	r := a.send("PUT", "/v0/organizations/bbp", `{"description": "Big Brain Project"}`)
	require.Equal(t, http.StatusCreated, r.status)
	assert.Equal(t, map[string]any{"@id": baseURL + "/v0/organizations/bbp", "nxv:rev": 1.0}, r.json(t))

	assertError(t, a.send("PUT", "/v0/organizations/bbp", `{}`), http.StatusConflict, "ResourceAlreadyExists")

	r = a.send("PUT", "/v0/organizations/bbp?rev=1", `{"description": "Blue Brain Project"}`)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, 2.0, r.json(t)["nxv:rev"])

	assertError(t, a.send("PUT", "/v0/organizations/bbp?rev=1", `{}`), http.StatusConflict, "IncorrectRevisionProvided")

	got := a.send("GET", "/v0/organizations/bbp", "").json(t)
	assert.Equal(t, "Blue Brain Project", got["description"])
	assert.Equal(t, false, got["nxv:deprecated"])
	assert.NotContains(t, got, "nxv:published")

	old := a.send("GET", "/v0/organizations/bbp?rev=1", "").json(t)
	assert.Equal(t, "Big Brain Project", old["description"])

	r = a.send("DELETE", "/v0/organizations/bbp", "")
	assertError(t, r, http.StatusBadRequest, "MissingRevision")
	assert.Equal(t, "Request is missing required query parameter 'rev'", r.json(t)["message"])

	r = a.send("DELETE", "/v0/organizations/bbp?rev=2", "")
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, 3.0, r.json(t)["nxv:rev"])
	assert.Equal(t, true, a.send("GET", "/v0/organizations/bbp", "").json(t)["nxv:deprecated"])

	assertError(t, a.send("DELETE", "/v0/organizations/bbp?rev=3", ""), http.StatusBadRequest, "OrganizationAlreadyDeprecated")
	assertError(t, a.send("PUT", "/v0/domains/bbp/core", `{}`), http.StatusBadRequest, "OrganizationIsDeprecated")
}

func TestReadErrors(t *testing.T) {
	a := newTestAPI(t)
	assertError(t, a.send("GET", "/v0/organizations/nope", ""), http.StatusNotFound, "ResourceNotFound")
	assertError(t, a.send("GET", "/v0/organizations/nope?rev=abc", ""), http.StatusBadRequest, "IllegalPayload")
	assertError(t, a.send("GET", "/v0/schemas/bbp/core/person/1.0", ""), http.StatusBadRequest, "IllegalRef")
	assertError(t, a.send("PUT", "/v0/organizations/bbp", `[1, 2]`), http.StatusBadRequest, "IllegalPayload")
	assert.Equal(t, http.StatusMethodNotAllowed, a.send("POST", "/v0/organizations/bbp", `{}`).status)
}

func TestRevisionParameterMustBePositive(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusCreated, a.send("PUT", "/v0/organizations/bbp", `{}`).status)

	for _, rev := range []string{"0", "-1"} {
		assertError(t, a.send("GET", "/v0/organizations/bbp?rev="+rev, ""), http.StatusBadRequest, "IllegalPayload")
		assertError(t, a.send("PUT", "/v0/organizations/bbp?rev="+rev, `{}`), http.StatusBadRequest, "IllegalPayload")
		assertError(t, a.send("DELETE", "/v0/organizations/bbp?rev="+rev, ""), http.StatusBadRequest, "IllegalPayload")
	}
	assert.Equal(t, http.StatusOK, a.send("GET", "/v0/organizations/bbp?rev=1", "").status)
}

func TestSchemaAndInstances(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusCreated, a.send("PUT", "/v0/organizations/bbp", `{}`).status)
	require.Equal(t, http.StatusCreated, a.send("PUT", "/v0/domains/bbp/core", `{}`).status)
	require.Equal(t, http.StatusCreated, a.send("PUT", schemaPath, testutil.PersonSchema).status)

	assertError(t, a.send("POST", dataPath, testutil.Einstein), http.StatusBadRequest, "SchemaIsNotPublished")
	assertError(t, a.send("PATCH", schemaPath+"/config?rev=1", `{"published": false}`), http.StatusBadRequest, "IllegalPayload")
	require.Equal(t, http.StatusOK, a.send("PATCH", schemaPath+"/config?rev=1", `{"published": true}`).status)
	assert.Equal(t, true, a.send("GET", schemaPath, "").json(t)["nxv:published"])
	assertError(t, a.send("PUT", schemaPath+"?rev=2", testutil.PersonSchema), http.StatusBadRequest, "SchemaIsPublished")

	r := a.send("POST", dataPath, testutil.Einstein)
	require.Equal(t, http.StatusCreated, r.status, string(r.body))
	id, _ := r.json(t)["@id"].(string)
	require.True(t, strings.HasPrefix(id, baseURL+dataPath+"/"), id)

	r = a.send("POST", dataPath, `{"givenName": "Nobody"}`)
	assertError(t, r, http.StatusBadRequest, "ShapeConstraintViolations")
	assert.Contains(t, r.json(t)["message"], "violates 1 schema constraint(s): familyName: expected at least 1 value(s), found 0")

	got := a.send("GET", strings.TrimPrefix(id, baseURL), "").json(t)
	assert.Equal(t, "Einstein", got["familyName"])
	assert.Equal(t, 1.0, got["nxv:rev"])
}

func TestSearch(t *testing.T) {
	a := newTestAPI(t)
	a.seed()
	require.Equal(t, http.StatusCreated, a.send("POST", dataPath, testutil.Einstein).status)
	require.Equal(t, http.StatusCreated, a.send("POST", dataPath, `{"familyName": "Curie"}`).status)
	a.drain()

	domains := a.send("GET", "/v0/domains/bbp?q=core&size=10", "").json(t)
	assert.Equal(t, 1.0, domains["total"])
	results := domains["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, baseURL+"/v0/domains/bbp/core", results[0].(map[string]any)["resultId"])

	filter := `{"op":"eq","path":"schema:familyName","value":"Einstein"}`
	r := a.send("GET", dataPath+"?filter="+url.QueryEscape(filter), "")
	require.Equal(t, http.StatusOK, r.status, string(r.body))
	hits := r.json(t)["results"].([]any)
	require.Len(t, hits, 1)
	source := hits[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, baseURL+instancePath, source["@id"])

	all := a.send("GET", "/v0/data/bbp?size=1", "").json(t)
	assert.Equal(t, 2.0, all["total"])
	assert.Len(t, all["results"], 1)

	assertError(t, a.send("GET", dataPath+"?filter="+url.QueryEscape(`{"op":"gt"}`), ""), http.StatusBadRequest, "IllegalPayload")
	assertError(t, a.send("GET", dataPath+"?size=-1", ""), http.StatusBadRequest, "IllegalPayload")
}

func TestAttachments(t *testing.T) {
	a := newTestAPI(t)
	a.seed()
	require.Equal(t, http.StatusCreated, a.send("POST", dataPath, testutil.Einstein).status)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "relativity.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("E=mc^2"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := a.do("PUT", instancePath+"/attachment?rev=1", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, r.status, string(r.body))
	assert.Equal(t, 2.0, r.json(t)["nxv:rev"])

	got := a.send("GET", instancePath, "").json(t)
	meta := got["nxv:attachment"].(map[string]any)
	assert.Equal(t, "relativity.txt", meta["originalFileName"])
	assert.Equal(t, 6.0, meta["contentSize"])

	r = a.send("GET", instancePath+"/attachment", "")
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "E=mc^2", string(r.body))
	assert.Contains(t, r.header.Get("Content-Disposition"), "relativity.txt")

	r = a.do("PUT", instancePath+"/attachment?rev=2&filename=raw.bin", strings.NewReader("raw"), "application/octet-stream")
	require.Equal(t, http.StatusCreated, r.status, string(r.body))

	require.Equal(t, http.StatusOK, a.send("DELETE", instancePath+"/attachment?rev=3", "").status)

	r = a.send("GET", instancePath+"/attachment", "")
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, "The requested resource could not be found but may be available again in the future.", string(r.body))
	assert.Equal(t, "text/plain; charset=utf-8", r.header.Get("Content-Type"))
	assert.Equal(t, "nosniff", r.header.Get("X-Content-Type-Options"))

	r = a.send("GET", instancePath+"/attachment?rev=2", "")
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "E=mc^2", string(r.body))

	assertError(t, a.send("DELETE", instancePath+"/attachment?rev=4", ""), http.StatusNotFound, "AttachmentNotFound")
	assertError(t, a.do("PUT", instancePath+"/attachment?rev=4", strings.NewReader(strings.Repeat("x", 2048)), "text/plain"),
		http.StatusBadRequest, "AttachmentTooLarge")
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.send("GET", "/v0/organizations/nope", "")

	r := a.send("GET", "/metrics", "")
	require.Equal(t, http.StatusOK, r.status)
	assert.Contains(t, string(r.body), `nexus_http_requests_total{method="GET",route="GET /v0/organizations/{org}",status="404"} 1`)
}
