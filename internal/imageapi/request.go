package imageapi

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
)

// Default generation parameters, matching the remote API defaults the
// application has always used.
const (
	DefaultSize    = "1024x1024"
	DefaultQuality = "auto"
	DefaultN       = 1

	// MaxPromptLen caps the prompt accepted from any front end.
	MaxPromptLen = 4000
)

// GenerationRequest is a fully validated submission. Construct one per user
// action; it is never mutated after construction.
type GenerationRequest struct {
	Prompt     string
	Image      ImageAsset
	References []ImageAsset
	Mask       *MaskAsset
	N          int
	Size       string
	Quality    string
	Model      string
}

// Payload is an API-ready multipart body plus its content type.
type Payload struct {
	ContentType string
	Body        []byte
}

// BuildPayload renders the request as multipart form data. Image bytes go
// under the "image" field ("image[]" when references are present), mask
// bytes under "mask". All structural invariants were enforced by validation
// upstream; the only failure left is a missing prompt.
func BuildPayload(req GenerationRequest) (Payload, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Payload{}, ErrPromptRequired
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if len(req.References) > 0 {
		for _, ref := range req.References {
			if err := writeImagePart(writer, "image[]", ref); err != nil {
				return Payload{}, err
			}
		}
	} else if err := writeImagePart(writer, "image", req.Image); err != nil {
		return Payload{}, err
	}
	if req.Mask != nil {
		if err := writeImagePart(writer, "mask", *req.Mask); err != nil {
			return Payload{}, err
		}
	}

	if req.Model != "" {
		_ = writer.WriteField("model", req.Model)
	}
	_ = writer.WriteField("prompt", prompt)
	_ = writer.WriteField("n", strconv.Itoa(valueOrDefault(req.N, DefaultN)))
	_ = writer.WriteField("size", stringOrDefault(req.Size, DefaultSize))
	_ = writer.WriteField("quality", stringOrDefault(req.Quality, DefaultQuality))

	if err := writer.Close(); err != nil {
		return Payload{}, fmt.Errorf("close multipart writer: %w", err)
	}
	return Payload{ContentType: writer.FormDataContentType(), Body: body.Bytes()}, nil
}

// writeImagePart adds an image file part with an explicit content type; the
// remote API rejects parts tagged application/octet-stream.
func writeImagePart(writer *multipart.Writer, field string, asset ImageAsset) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, partFilename(asset)))
	h.Set("Content-Type", asset.Format.MIME())
	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := part.Write(asset.Data); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}

func partFilename(asset ImageAsset) string {
	if name := strings.TrimSpace(asset.Name); name != "" {
		return name
	}
	return "image." + string(asset.Format)
}

func valueOrDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func stringOrDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
