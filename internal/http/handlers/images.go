package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"imagestudio/internal/imageapi"
	"imagestudio/internal/middleware"
	"imagestudio/pkg/zip"
)

// maxUploadBytes bounds the whole multipart body: four reference images at
// the 20 MiB per-file ceiling plus form overhead.
const maxUploadBytes = 96 << 20

type resultItem struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	B64      string `json:"b64,omitempty"`
	Error    string `json:"error,omitempty"`
}

type resultResponse struct {
	Items   []resultItem `json:"items"`
	Warning string       `json:"warning,omitempty"`
}

// ImagesEdit handles single-image edit: one PNG under 4 MiB plus a prompt.
func (a *App) ImagesEdit(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseForm(w, r)
	if !ok {
		return
	}
	image, err := readUpload(r, "image")
	if err != nil {
		a.inputError(w, "image", err)
		return
	}
	sub, err := imageapi.NewEditSubmission(image, form.prompt, form.params)
	if err != nil {
		a.inputError(w, "image", err)
		return
	}
	a.run(w, r, sub, form, "generated_image")
}

// ImagesCompose handles reference-guided generation: 1-4 images plus a
// prompt.
func (a *App) ImagesCompose(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseForm(w, r)
	if !ok {
		return
	}
	refs, err := readUploads(r, "images")
	if err != nil {
		a.inputError(w, "images", err)
		return
	}
	sub, err := imageapi.NewComposeSubmission(refs, form.prompt, form.params)
	if err != nil {
		a.inputError(w, "images", err)
		return
	}
	a.run(w, r, sub, form, "generated_image")
}

// ImagesInpaint handles masked edit: base image, mask, prompt and quality.
func (a *App) ImagesInpaint(w http.ResponseWriter, r *http.Request) {
	form, ok := a.parseForm(w, r)
	if !ok {
		return
	}
	base, err := readUpload(r, "image")
	if err != nil {
		a.inputError(w, "image", err)
		return
	}
	mask, err := readUpload(r, "mask")
	if err != nil {
		a.inputError(w, "mask", err)
		return
	}
	sub, err := imageapi.NewInpaintSubmission(base, mask, form.prompt, form.params)
	if err != nil {
		a.inputError(w, "image", err)
		return
	}
	a.run(w, r, sub, form, "masked_image")
}

type submitForm struct {
	prompt   string
	params   imageapi.Params
	apiKey   string
	filename string
	bundle   string
}

func (a *App) parseForm(w http.ResponseWriter, r *http.Request) (submitForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return submitForm{}, false
	}
	form := submitForm{
		prompt:   r.FormValue("prompt"),
		apiKey:   r.FormValue("api_key"),
		filename: strings.TrimSpace(r.FormValue("filename")),
		bundle:   r.FormValue("bundle"),
		params: imageapi.Params{
			Size:    r.FormValue("size"),
			Quality: r.FormValue("quality"),
		},
	}
	if n := r.FormValue("n"); n != "" {
		count, err := strconv.Atoi(n)
		if err != nil || count < 1 || count > 10 {
			a.error(w, http.StatusBadRequest, "bad_request", "n must be between 1 and 10")
			return submitForm{}, false
		}
		form.params.N = count
	}
	return form, true
}

func (a *App) run(w http.ResponseWriter, r *http.Request, sub imageapi.Submission, form submitForm, baseName string) {
	apiKey, err := a.Creds.Resolve(firstNonEmpty(form.apiKey, a.Config.OpenAIAPIKey))
	if err != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	outputs, err := a.Pipeline.Run(r.Context(), sub, apiKey)
	if err != nil {
		a.pipelineError(w, err)
		return
	}
	a.Logger.Info().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("endpoint", string(sub.Kind)).
		Int("outputs", len(outputs)).
		Msg("generation request completed")

	items := lo.Map(outputs, func(out imageapi.Output, _ int) resultItem {
		item := resultItem{
			Index:    out.Index,
			Filename: outputFilename(form.filename, baseName, out.Index, len(outputs)),
			MIME:     out.MIME,
		}
		if out.Err != nil {
			item.Error = out.Err.Error()
			return item
		}
		item.B64 = base64.StdEncoding.EncodeToString(out.Data)
		return item
	})

	if form.bundle == "zip" {
		a.writeZip(w, outputs, items)
		return
	}
	a.json(w, http.StatusOK, resultResponse{Items: items, Warning: sub.Warning})
}

func (a *App) writeZip(w http.ResponseWriter, outputs []imageapi.Output, items []resultItem) {
	assets := make([]zip.Asset, len(outputs))
	for i, out := range outputs {
		assets[i] = zip.Asset{Filename: items[i].Filename, MIME: out.MIME, Data: out.Data}
	}
	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="generated_images.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) inputError(w http.ResponseWriter, field string, err error) {
	if imageapi.IsRecoverableInput(err) {
		a.json(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_input",
			"field":   field,
			"message": err.Error(),
		})
		return
	}
	a.error(w, http.StatusBadRequest, "bad_request", err.Error())
}

func (a *App) pipelineError(w http.ResponseWriter, err error) {
	switch {
	case imageapi.IsRecoverableInput(err):
		a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, imageapi.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, imageapi.ErrRateLimited):
		a.error(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	default:
		a.error(w, http.StatusBadGateway, "upstream_error", err.Error())
	}
}

func readUpload(r *http.Request, field string) (imageapi.ImageAsset, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return imageapi.ImageAsset{}, imageapi.ErrEmpty
	}
	return assetFromHeader(r.MultipartForm.File[field][0])
}

func readUploads(r *http.Request, field string) ([]imageapi.ImageAsset, error) {
	if r.MultipartForm == nil {
		return nil, imageapi.ErrEmpty
	}
	headers := r.MultipartForm.File[field]
	assets := make([]imageapi.ImageAsset, 0, len(headers))
	for _, header := range headers {
		asset, err := assetFromHeader(header)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", header.Filename, err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func assetFromHeader(header *multipart.FileHeader) (imageapi.ImageAsset, error) {
	file, err := header.Open()
	if err != nil {
		return imageapi.ImageAsset{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return imageapi.ImageAsset{}, fmt.Errorf("read upload: %w", err)
	}
	return imageapi.NewAsset(header.Filename, header.Header.Get("Content-Type"), data)
}

func outputFilename(requested, baseName string, index, total int) string {
	if requested != "" {
		if total == 1 {
			return requested
		}
		ext := filepath.Ext(requested)
		stem := strings.TrimSuffix(requested, ext)
		if ext == "" {
			ext = ".png"
		}
		return fmt.Sprintf("%s_%d%s", stem, index+1, ext)
	}
	if total == 1 {
		return baseName + ".png"
	}
	return fmt.Sprintf("%s_%d.png", baseName, index+1)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
