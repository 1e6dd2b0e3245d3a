package imageapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEditSubmissionValidates(t *testing.T) {
	image := ImageAsset{Name: "in.png", Format: FormatPNG, Data: make([]byte, 2*1024*1024)}

	sub, err := NewEditSubmission(image, "Add a sunset background", Params{})
	require.NoError(t, err)
	require.Equal(t, EndpointEdit, sub.Kind)
	require.Equal(t, ModelEdit, sub.Request.Model)

	_, err = NewEditSubmission(image, "", Params{})
	require.ErrorIs(t, err, ErrPromptRequired)

	_, err = NewEditSubmission(image, strings.Repeat("x", MaxPromptLen+1), Params{})
	require.ErrorIs(t, err, ErrPromptTooLong)

	// The limit counts characters, not bytes: a multibyte prompt at the
	// character limit passes even though its byte length exceeds it.
	_, err = NewEditSubmission(image, strings.Repeat("é", MaxPromptLen), Params{})
	require.NoError(t, err)

	_, err = NewEditSubmission(image, strings.Repeat("é", MaxPromptLen+1), Params{})
	require.ErrorIs(t, err, ErrPromptTooLong)

	oversized := ImageAsset{Name: "in.png", Format: FormatPNG, Data: make([]byte, MaxEditBytes)}
	_, err = NewEditSubmission(oversized, "prompt", Params{})
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestNewComposeSubmissionValidates(t *testing.T) {
	refs := []ImageAsset{
		{Name: "a.png", Format: FormatPNG, Data: []byte("a")},
		{Name: "b.webp", Format: FormatWEBP, Data: []byte("b")},
	}
	sub, err := NewComposeSubmission(refs, "combine", Params{N: 2})
	require.NoError(t, err)
	require.Equal(t, EndpointVisionGenerate, sub.Kind)
	require.Equal(t, ModelVision, sub.Request.Model)
	require.Len(t, sub.Request.References, 2)

	_, err = NewComposeSubmission(nil, "combine", Params{})
	require.ErrorIs(t, err, ErrReferenceCount)
}

func TestNewInpaintSubmissionCarriesWarning(t *testing.T) {
	base := ImageAsset{Name: "base.png", Format: FormatPNG, Data: pngBytes(t, 20, 20)}
	mask := MaskAsset{Name: "mask.png", Format: FormatPNG, Data: pngBytes(t, 10, 10)}

	sub, err := NewInpaintSubmission(base, mask, "fill the sky", Params{Quality: "high"})
	require.NoError(t, err)
	require.Equal(t, EndpointEdit, sub.Kind)
	require.NotNil(t, sub.Request.Mask)
	require.NotEmpty(t, sub.Warning)
}

// End-to-end through build, submit and materialize: a small PNG plus prompt
// yields exactly one downloadable image.
func TestPipelineRunEndToEnd(t *testing.T) {
	var upstreamCalls atomic.Int32
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("final-image-bytes"))
	}))
	defer cdn.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		require.Equal(t, "/images/edits", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(8<<20))
		require.Equal(t, "Add a sunset background", r.FormValue("prompt"))
		require.Equal(t, "1", r.FormValue("n"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": cdn.URL + "/out.png"}},
		})
	}))
	defer api.Close()

	client := NewClient(ClientOptions{
		BaseURL:      api.URL,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	pipeline := NewPipeline(client, NewMaterializer(cdn.Client()))

	image := ImageAsset{Name: "in.png", Format: FormatPNG, Data: make([]byte, 2*1024*1024)}
	sub, err := NewEditSubmission(image, "Add a sunset background", Params{})
	require.NoError(t, err)

	outputs, err := pipeline.Run(context.Background(), sub, "sk-test")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, []byte("final-image-bytes"), outputs[0].Data)
	require.EqualValues(t, 1, upstreamCalls.Load())
}

// A compose submission must land on the edits operation, since the remote
// generations operation is JSON-only and would reject the multipart body.
func TestPipelineRunComposeEndToEnd(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/edits" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.NoError(t, r.ParseMultipartForm(8<<20))
		require.Len(t, r.MultipartForm.File["image[]"], 2)
		require.Equal(t, ModelVision, r.FormValue("model"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString([]byte("composed"))},
			},
		})
	}))
	defer api.Close()

	client := NewClient(ClientOptions{BaseURL: api.URL, RetryBackoff: time.Millisecond})
	pipeline := NewPipeline(client, NewMaterializer(nil))

	refs := []ImageAsset{
		{Name: "a.png", Format: FormatPNG, Data: []byte("a")},
		{Name: "b.jpg", Format: FormatJPG, Data: []byte("b")},
	}
	sub, err := NewComposeSubmission(refs, "combine them", Params{})
	require.NoError(t, err)

	outputs, err := pipeline.Run(context.Background(), sub, "sk-test")
	require.NoError(t, err)
	require.Equal(t, []byte("composed"), outputs[0].Data)
}

func TestPipelineRunInlineResult(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString([]byte("inline-image"))},
			},
		})
	}))
	defer api.Close()

	client := NewClient(ClientOptions{BaseURL: api.URL, RetryBackoff: time.Millisecond})
	pipeline := NewPipeline(client, NewMaterializer(nil))

	sub, err := NewEditSubmission(ImageAsset{Name: "in.png", Format: FormatPNG, Data: []byte("png")}, "prompt", Params{})
	require.NoError(t, err)

	outputs, err := pipeline.Run(context.Background(), sub, "sk-test")
	require.NoError(t, err)
	require.Equal(t, []byte("inline-image"), outputs[0].Data)
}
