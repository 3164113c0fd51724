package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/PhotoShare/internal/calendar"
	"github.com/PaulBabatuyi/PhotoShare/internal/metadata"
	"github.com/PaulBabatuyi/PhotoShare/internal/models"
	"github.com/PaulBabatuyi/PhotoShare/internal/observability"
	"github.com/PaulBabatuyi/PhotoShare/internal/service"
	"github.com/PaulBabatuyi/PhotoShare/internal/storage"
	"github.com/PaulBabatuyi/PhotoShare/internal/testutil"
)

const testAPIKey = "test-key-456"

type testServer struct {
	*httptest.Server
	dataDir string
}

func setupTestServer(t *testing.T, policy calendar.Policy, maxUpload int64) *testServer {
	t.Helper()

	tmpDir := t.TempDir()
	extractor := metadata.NewExtractor(nil)
	storageLayer, err := storage.NewFilesystemStorage(tmpDir, extractor)
	require.NoError(t, err)

	metrics, err := observability.InitMetrics()
	require.NoError(t, err)

	srv := service.NewFileServer(storageLayer, calendar.New(policy, nil), extractor, metrics, nil, service.Options{
		APIKey:         testAPIKey,
		MaxUploadBytes: maxUpload,
	})

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, dataDir: tmpDir}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) upload(t *testing.T, filename string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return ts.do(t, http.MethodPost, "/upload", &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthzIsPublic(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestProtectedEndpointsRequireKey(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	for _, path := range []string{"/files", "/download/a.jpg", "/calendar/2024/3"} {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/files", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEcho(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	resp := ts.do(t, http.MethodPost, "/echo", bytes.NewBufferString(`{"text":"안녕 family"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[models.EchoResponse](t, resp)
	assert.Equal(t, "안녕 family", out.Text)
	assert.Equal(t, 9, out.Length)

	resp = ts.do(t, http.MethodPost, "/echo", bytes.NewBufferString(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadDownloadFlow(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	photo := testutil.JPEGWithExif(map[uint16]string{testutil.TagDateTimeOriginal: "2024:03:05 09:00:00"})

	// 1. Upload the same name twice
	resp := ts.upload(t, "photo.jpg", photo)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[models.UploadResult](t, resp)
	assert.Equal(t, "photo.jpg", first.Filename)
	require.NotNil(t, first.TakenDate)
	assert.Equal(t, "2024-03-05", *first.TakenDate)

	resp = ts.upload(t, "photo.jpg", []byte("just text"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[models.UploadResult](t, resp)
	assert.Equal(t, "photo_1.jpg", second.Filename)
	assert.Nil(t, second.TakenDate)

	// 2. Download returns the original bytes
	resp = ts.do(t, http.MethodGet, "/download/photo.jpg", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, photo, got)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "photo.jpg")

	// 3. List
	resp = ts.do(t, http.MethodGet, "/files", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	files := decode[[]models.FileRecord](t, resp)
	require.Len(t, files, 2)
	names := []string{files[0].Filename, files[1].Filename}
	assert.ElementsMatch(t, []string{"photo.jpg", "photo_1.jpg"}, names)
}

func TestListJSONShape(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	resp := ts.do(t, http.MethodGet, "/files", nil, "")
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `[]`, string(body))

	ts.upload(t, "notes.txt", []byte("hello"))
	resp = ts.do(t, http.MethodGet, "/files", nil, "")

	var raw []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "notes.txt", raw[0]["filename"])
	assert.Equal(t, float64(5), raw[0]["size_bytes"])
	assert.Contains(t, raw[0], "taken_date")
	assert.Nil(t, raw[0]["taken_date"])
	_, err := time.Parse(time.RFC3339Nano, raw[0]["uploaded_at"].(string))
	assert.NoError(t, err)
}

func TestUploadValidation(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 16)

	resp := ts.upload(t, "big.bin", make([]byte, 17))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = ts.upload(t, "..", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/upload", bytes.NewBufferString("raw"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())
	resp = ts.do(t, http.MethodPost, "/upload", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	entries, err := os.ReadDir(ts.dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadPathTraversalStaysInRoot(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	resp := ts.upload(t, "../../escape.jpg", []byte("x"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[models.UploadResult](t, resp)
	assert.Equal(t, "escape.jpg", out.Filename)
	assert.FileExists(t, filepath.Join(ts.dataDir, "escape.jpg"))
}

func TestDownloadNotFound(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	resp := ts.do(t, http.MethodGet, "/download/missing.jpg", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/download/..%2F..%2Fetc%2Fpasswd", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// a stored a.jpg must not answer for a path that merely ends in it
	require.Equal(t, http.StatusOK, ts.upload(t, "a.jpg", []byte("x")).StatusCode)
	resp = ts.do(t, http.MethodGet, "/download/sub%2Fa.jpg", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/download/a.jpg", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCalendar(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	for i := 0; i < 3; i++ {
		ts.upload(t, "a.jpg", testutil.JPEGWithExif(map[uint16]string{testutil.TagDateTimeOriginal: "2024:03:05 10:00:00"}))
	}
	ts.upload(t, "b.jpg", testutil.JPEGWithExif(map[uint16]string{testutil.TagDateTime: "2024:03:07 10:00:00"}))

	// no capture date: falls back to mtime
	ts.upload(t, "c.txt", []byte("text"))
	stamp := time.Date(2023, 11, 20, 8, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(filepath.Join(ts.dataDir, "c.txt"), stamp, stamp))

	resp := ts.do(t, http.MethodGet, "/calendar/2024/3", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"year":2024,"month":3,"days":[5,7],"count_by_day":{"5":3,"7":1}}`, string(body))

	resp = ts.do(t, http.MethodGet, "/calendar/2023/11", nil, "")
	summary := decode[models.CalendarMonthSummary](t, resp)
	assert.Equal(t, []int{20}, summary.Days)
	assert.Equal(t, models.DayCounter{20: 1}, summary.CountByDay)

	resp = ts.do(t, http.MethodGet, "/calendar/2024/13", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/calendar/year/3", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCalendarMalformedTakenDate(t *testing.T) {
	bad := testutil.JPEGWithExif(map[uint16]string{testutil.TagDateTimeOriginal: "2024:13:45 10:00:00"})

	strict := setupTestServer(t, calendar.PolicyStrict, 0)
	strict.upload(t, "bad.jpg", bad)
	resp := strict.do(t, http.MethodGet, "/calendar/2024/3", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	lenient := setupTestServer(t, calendar.PolicyLenient, 0)
	lenient.upload(t, "bad.jpg", bad)
	stamp := time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(filepath.Join(lenient.dataDir, "bad.jpg"), stamp, stamp))

	resp = lenient.do(t, http.MethodGet, "/calendar/2024/3", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[models.CalendarMonthSummary](t, resp)
	assert.Equal(t, []int{9}, summary.Days)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)
	ts.do(t, http.MethodGet, "/files", nil, "")

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `http_requests_total{code="200",endpoint="files"} 1`)
}

func TestUploadCancelledWhileQueued(t *testing.T) {
	extractor := metadata.NewExtractor(nil)
	storageLayer, err := storage.NewFilesystemStorage(t.TempDir(), extractor)
	require.NoError(t, err)
	metrics, err := observability.InitMetrics()
	require.NoError(t, err)

	srv := service.NewFileServer(storageLayer, calendar.New(calendar.PolicyLenient, nil), extractor, metrics, nil, service.Options{
		APIKey: testAPIKey,
	})
	routes := srv.Routes()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "late.jpg")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("x"))
	require.NoError(t, mw.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf).WithContext(ctx)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", testAPIKey)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	files, err := storageLayer.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `photo_uploads_total{result="cancelled"} 1`)
	assert.Contains(t, body, `http_requests_total{code="503",endpoint="upload"} 1`)
}

func TestRequestIDWrapsAllRoutes(t *testing.T) {
	ts := setupTestServer(t, calendar.PolicyLenient, 0)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	// rejected before reaching a handler, still tagged
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/files", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}
