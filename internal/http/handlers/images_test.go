package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imagestudio/internal/imageapi"
	"imagestudio/internal/infra"
)

type formFile struct {
	field    string
	filename string
	mime     string
	data     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files []formFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	for _, file := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + file.field + `"; filename="` + file.filename + `"`}
		h["Content-Type"] = []string{file.mime}
		part, err := writer.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(file.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func newTestApp(t *testing.T, upstream http.HandlerFunc) (*App, *atomic.Int32, func()) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		upstream(w, r)
	}))

	cfg := &infra.Config{
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: ts.URL,
	}
	client := imageapi.NewClient(imageapi.ClientOptions{
		BaseURL:      ts.URL,
		MaxRetries:   0,
		RetryBackoff: time.Millisecond,
	})
	pipeline := imageapi.NewPipeline(client, imageapi.NewMaterializer(ts.Client()))
	app := NewApp(cfg, zerolog.New(io.Discard), pipeline)
	return app, &calls, ts.Close
}

func inlineImageUpstream(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString(data)},
			},
		})
	}
}

func TestImagesEditHappyPath(t *testing.T) {
	app, calls, done := newTestApp(t, inlineImageUpstream([]byte("edited-image")))
	defer done()

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "Add a sunset background"},
		[]formFile{{field: "image", filename: "in.png", mime: "image/png", data: make([]byte, 2*1024*1024)}},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/images/edit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.ImagesEdit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp resultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	if resp.Items[0].Filename != "generated_image.png" {
		t.Fatalf("unexpected filename: %s", resp.Items[0].Filename)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Items[0].B64)
	if err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if string(decoded) != "edited-image" {
		t.Fatalf("unexpected image bytes: %q", decoded)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestImagesEditRejectsOversizeBeforeUpstream(t *testing.T) {
	app, calls, done := newTestApp(t, inlineImageUpstream(nil))
	defer done()

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "p"},
		[]formFile{{field: "image", filename: "big.png", mime: "image/png", data: make([]byte, imageapi.MaxEditBytes)}},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/images/edit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.ImagesEdit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if calls.Load() != 0 {
		t.Fatalf("validation failure must not reach the API, got %d calls", calls.Load())
	}
}

func TestImagesEditRejectsNonPNG(t *testing.T) {
	app, calls, done := newTestApp(t, inlineImageUpstream(nil))
	defer done()

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "p"},
		[]formFile{{field: "image", filename: "in.jpg", mime: "image/jpeg", data: []byte("jpg")}},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/images/edit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.ImagesEdit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no upstream calls, got %d", calls.Load())
	}
}

func TestImagesComposeRejectsTooManyReferences(t *testing.T) {
	app, calls, done := newTestApp(t, inlineImageUpstream(nil))
	defer done()

	files := make([]formFile, 5)
	for i := range files {
		files[i] = formFile{field: "images", filename: "r.png", mime: "image/png", data: []byte("x")}
	}
	body, contentType := multipartBody(t, map[string]string{"prompt": "p"}, files)
	req := httptest.NewRequest(http.MethodPost, "/v1/images/compose", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.ImagesCompose(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no upstream calls, got %d", calls.Load())
	}
}

func TestImagesComposeHappyPath(t *testing.T) {
	app, _, done := newTestApp(t, inlineImageUpstream([]byte("composed")))
	defer done()

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "combine them"},
		[]formFile{
			{field: "images", filename: "a.png", mime: "image/png", data: []byte("a")},
			{field: "images", filename: "b.jpg", mime: "image/jpeg", data: []byte("b")},
		},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/images/compose", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.ImagesCompose(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestImagesInpaintZipBundle(t *testing.T) {
	app, _, done := newTestApp(t, inlineImageUpstream([]byte("inpainted")))
	defer done()

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "fill the sky", "quality": "high", "bundle": "zip", "filename": "sky.png"},
		[]formFile{
			{field: "image", filename: "base.png", mime: "image/png", data: []byte("base")},
			{field: "mask", filename: "mask.png", mime: "image/png", data: []byte("mask")},
		},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/images/inpaint", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.ImagesInpaint(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Fatalf("content type = %s, want application/zip", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected archive bytes")
	}
}

func TestOutputFilename(t *testing.T) {
	tests := []struct {
		requested string
		index     int
		total     int
		want      string
	}{
		{"", 0, 1, "generated_image.png"},
		{"", 1, 3, "generated_image_2.png"},
		{"sky.png", 0, 1, "sky.png"},
		{"sky.jpg", 1, 2, "sky_2.jpg"},
		{"sky", 0, 2, "sky_1.png"},
	}
	for _, tt := range tests {
		if got := outputFilename(tt.requested, "generated_image", tt.index, tt.total); got != tt.want {
			t.Errorf("outputFilename(%q, %d, %d) = %q, want %q", tt.requested, tt.index, tt.total, got, tt.want)
		}
	}
}

func TestMissingAPIKey(t *testing.T) {
	app, calls, done := newTestApp(t, inlineImageUpstream(nil))
	defer done()
	app.Config.OpenAIAPIKey = ""
	t.Setenv("OPENAI_API_KEY", "")

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "p"},
		[]formFile{{field: "image", filename: "in.png", mime: "image/png", data: []byte("png")}},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/images/edit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.ImagesEdit(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no upstream calls, got %d", calls.Load())
	}
}

func TestUpstreamRateLimitSurfaced(t *testing.T) {
	app, calls, done := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer done()

	body, contentType := multipartBody(t,
		map[string]string{"prompt": "p"},
		[]formFile{{field: "image", filename: "in.png", mime: "image/png", data: []byte("png")}},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/images/edit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	app.ImagesEdit(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if calls.Load() != 1 {
		t.Fatalf("rate limited requests must not be retried, got %d calls", calls.Load())
	}
}
