package blob

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"

	"github.com/any-hub/imgcache/internal/cache"
	"github.com/any-hub/imgcache/internal/server"
)

var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xff, 0xd9}

func TestPutThenGetRoundTrip(t *testing.T) {
	app := newTestApp(t, afero.NewMemMapFs())

	resp := doRequest(t, app, http.MethodPut, "/200", jpegBytes)
	expectStatus(t, resp, fiber.StatusCreated)

	resp = doRequest(t, app, http.MethodGet, "/200", nil)
	body := expectStatus(t, resp, fiber.StatusOK)
	if !bytes.Equal(body, jpegBytes) {
		t.Fatalf("round trip mismatch: %v", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != ContentType {
		t.Fatalf("expected %s content type, got %s", ContentType, ct)
	}
}

func TestPutStoresBodyVerbatimRegardlessOfContentEncoding(t *testing.T) {
	var gzipped bytes.Buffer
	zw := gzip.NewWriter(&gzipped)
	if _, err := zw.Write(jpegBytes); err != nil {
		t.Fatalf("gzip write error: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close error: %v", err)
	}

	testCases := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"invalid gzip", "gzip", jpegBytes},
		{"valid gzip", "gzip", gzipped.Bytes()},
		{"unknown encoding", "foo", jpegBytes},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, afero.NewMemMapFs())

			req := httptest.NewRequest(http.MethodPut, "/200", bytes.NewReader(tc.body))
			req.Header.Set("Content-Encoding", tc.encoding)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test error: %v", err)
			}
			expectStatus(t, resp, fiber.StatusCreated)

			stored := expectStatus(t, doRequest(t, app, http.MethodGet, "/200", nil), fiber.StatusOK)
			if !bytes.Equal(stored, tc.body) {
				t.Fatalf("expected stored bytes to equal request bytes, got %q", stored)
			}
		})
	}
}

func TestGetNeverWrittenReturns404(t *testing.T) {
	app := newTestApp(t, afero.NewMemMapFs())

	resp := doRequest(t, app, http.MethodGet, "/404", nil)
	body := expectStatus(t, resp, fiber.StatusNotFound)
	if string(body) != "not found" {
		t.Fatalf("unexpected body %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text body, got %s", ct)
	}
}

func TestDeleteThenGetReturns404(t *testing.T) {
	app := newTestApp(t, afero.NewMemMapFs())

	expectStatus(t, doRequest(t, app, http.MethodPut, "/200", jpegBytes), fiber.StatusCreated)
	expectStatus(t, doRequest(t, app, http.MethodDelete, "/200", nil), fiber.StatusOK)
	expectStatus(t, doRequest(t, app, http.MethodGet, "/200", nil), fiber.StatusNotFound)
}

func TestDeleteIsIdempotentInEffect(t *testing.T) {
	app := newTestApp(t, afero.NewMemMapFs())

	expectStatus(t, doRequest(t, app, http.MethodDelete, "/321", nil), fiber.StatusNotFound)
	expectStatus(t, doRequest(t, app, http.MethodDelete, "/321", nil), fiber.StatusNotFound)
}

func TestSequentialPutsLastWriteWins(t *testing.T) {
	app := newTestApp(t, afero.NewMemMapFs())

	expectStatus(t, doRequest(t, app, http.MethodPut, "/777", []byte("b1-longer-payload")), fiber.StatusCreated)
	expectStatus(t, doRequest(t, app, http.MethodPut, "/777", []byte("b2")), fiber.StatusCreated)

	body := expectStatus(t, doRequest(t, app, http.MethodGet, "/777", nil), fiber.StatusOK)
	if string(body) != "b2" {
		t.Fatalf("expected b2, got %q", body)
	}
}

func TestMalformedPathReturns400(t *testing.T) {
	app := newTestApp(t, afero.NewMemMapFs())
	for _, path := range []string{"/abc", "/20", "/2000", "/200/"} {
		resp := doRequest(t, app, http.MethodGet, path, nil)
		body := expectStatus(t, resp, fiber.StatusBadRequest)
		if string(body) != server.InvalidPathMessage {
			t.Fatalf("unexpected 400 body for %s: %q", path, body)
		}
	}
}

func TestOptionsReturns405(t *testing.T) {
	app := newTestApp(t, afero.NewMemMapFs())

	resp := doRequest(t, app, http.MethodOptions, "/200", nil)
	expectStatus(t, resp, fiber.StatusMethodNotAllowed)
	if allow := resp.Header.Get("Allow"); allow != server.AllowedMethods {
		t.Fatalf("expected Allow header %q, got %q", server.AllowedMethods, allow)
	}
}

func TestReadOnlyFilesystemReturns500(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("/cache", 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := afero.WriteFile(base, "/cache/100.jpeg", []byte("ro"), 0o644); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	app := newTestApp(t, afero.NewReadOnlyFs(base))

	resp := doRequest(t, app, http.MethodPut, "/100", jpegBytes)
	body := expectStatus(t, resp, fiber.StatusInternalServerError)
	if strings.Contains(string(body), "/cache") {
		t.Fatalf("error body must not expose filesystem paths: %q", body)
	}
	expectStatus(t, doRequest(t, app, http.MethodDelete, "/100", nil), fiber.StatusInternalServerError)

	// server keeps serving after failures
	body = expectStatus(t, doRequest(t, app, http.MethodGet, "/100", nil), fiber.StatusOK)
	if string(body) != "ro" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestWriteRejectsOversizedBody(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store, err := cache.NewStore(afero.NewMemMapFs(), "/cache", nil)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	h := NewHandler(logger, store, 4)

	app := fiber.New()
	app.Put("/:key", func(c fiber.Ctx) error {
		return h.Write(c, cache.Key(c.Params("key")))
	})

	resp := doRequest(t, app, http.MethodPut, "/123", []byte("too large"))
	expectStatus(t, resp, fiber.StatusRequestEntityTooLarge)

	if _, err := store.Get(t.Context(), "123"); err != cache.ErrNotFound {
		t.Fatalf("oversized body must not reach disk, got %v", err)
	}
}

func TestOutcomesAreLoggedWithFileName(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store, err := cache.NewStore(afero.NewMemMapFs(), "/cache", nil)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Handler:     NewHandler(logger, store, 1024),
		MaxBodySize: 1024,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	expectStatus(t, doRequest(t, app, http.MethodGet, "/042", nil), fiber.StatusNotFound)
	expectStatus(t, doRequest(t, app, http.MethodPut, "/042", jpegBytes), fiber.StatusCreated)
	expectStatus(t, doRequest(t, app, http.MethodGet, "/042", nil), fiber.StatusOK)
	expectStatus(t, doRequest(t, app, http.MethodDelete, "/042", nil), fiber.StatusOK)

	var outcomes []string
	for _, entry := range hook.AllEntries() {
		if entry.Data["file"] != "042.jpeg" {
			continue
		}
		outcomes = append(outcomes, entry.Data["outcome"].(string))
	}
	want := []string{"miss", "stored", "hit", "deleted"}
	if strings.Join(outcomes, ",") != strings.Join(want, ",") {
		t.Fatalf("expected outcomes %v, got %v", want, outcomes)
	}
}

func newTestApp(t *testing.T, fsys afero.Fs) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := cache.NewStore(fsys, "/cache", nil)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Handler:     NewHandler(logger, store, 1<<20),
		MaxBodySize: 1 << 20,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, target string, body []byte) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, status int) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != status {
		t.Fatalf("expected status %d, got %d (body=%s)", status, resp.StatusCode, string(body))
	}
	return body
}
