package imageapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Output is one materialized image from a generation batch. Err is set when
// this item could not be retrieved; Data is populated otherwise.
type Output struct {
	Index int
	MIME  string
	Data  []byte
	Err   error
}

// Materializer resolves descriptors into image bytes, downloading remote
// URLs with its own HTTP client.
type Materializer struct {
	httpClient *http.Client
}

// NewMaterializer constructs a materializer. A nil client falls back to a
// default with no timeout; callers that download should pass the shared
// configured client.
func NewMaterializer(httpClient *http.Client) *Materializer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Materializer{httpClient: httpClient}
}

// Materialize resolves every descriptor in order. Items that fail carry a
// per-item error instead of aborting the batch: a partially delivered batch
// is still worth more to the user than none of it. The returned error is
// non-nil only when every single item failed.
func (m *Materializer) Materialize(ctx context.Context, result *GenerationResult) ([]Output, error) {
	if result == nil || len(result.Images) == 0 {
		return nil, wrapf(ErrDecodeFailed, "empty result")
	}
	outputs := make([]Output, len(result.Images))
	var failures *multierror.Error
	for i, desc := range result.Images {
		data, mime, err := m.resolve(ctx, desc)
		outputs[i] = Output{Index: i, MIME: mime, Data: data, Err: err}
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("image %d: %w", i+1, err))
		}
	}
	if failures != nil && len(failures.Errors) == len(outputs) {
		return outputs, failures.ErrorOrNil()
	}
	return outputs, nil
}

// defaultOutputMIME is assumed when the source does not declare a type;
// inline payloads from the API are PNG.
const defaultOutputMIME = "image/png"

func (m *Materializer) resolve(ctx context.Context, desc Descriptor) ([]byte, string, error) {
	if b64 := strings.TrimSpace(desc.B64JSON); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, defaultOutputMIME, wrapf(ErrDecodeFailed, "%v", err)
		}
		if len(data) == 0 {
			return nil, defaultOutputMIME, wrapf(ErrDecodeFailed, "empty image payload")
		}
		return data, defaultOutputMIME, nil
	}
	if url := strings.TrimSpace(desc.URL); url != "" {
		return m.download(ctx, url)
	}
	return nil, defaultOutputMIME, wrapf(ErrDecodeFailed, "descriptor has neither url nor inline data")
}

func (m *Materializer) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, defaultOutputMIME, wrapf(ErrDownloadFailed, "%v", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, defaultOutputMIME, wrapf(ErrDownloadFailed, "%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, defaultOutputMIME, wrapf(ErrDownloadFailed, "status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, defaultOutputMIME, wrapf(ErrDownloadFailed, "%v", err)
	}
	if len(data) == 0 {
		return nil, defaultOutputMIME, wrapf(ErrDownloadFailed, "empty body")
	}
	return data, downloadedMIME(resp.Header.Get("Content-Type")), nil
}

// downloadedMIME trims parameters off a Content-Type header and falls back
// to PNG when the server declares no image type.
func downloadedMIME(contentType string) string {
	mime := strings.TrimSpace(contentType)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !strings.HasPrefix(mime, "image/") {
		return defaultOutputMIME
	}
	return mime
}
