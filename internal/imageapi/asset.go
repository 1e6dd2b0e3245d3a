package imageapi

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects the workflow a request follows and with it the validation
// limits applied to its inputs.
type Mode string

const (
	// ModeEdit edits a single PNG image guided by a prompt.
	ModeEdit Mode = "edit"
	// ModeCompose generates a new image from 1-4 reference images.
	ModeCompose Mode = "compose"
	// ModeInpaint regenerates the masked region of a base image.
	ModeInpaint Mode = "inpaint"
)

// NormalizeMode sanitizes free-form user input into a supported mode.
func NormalizeMode(mode string) Mode {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeCompose):
		return ModeCompose
	case string(ModeInpaint):
		return ModeInpaint
	default:
		return ModeEdit
	}
}

// Format identifies the declared encoding of an asset, derived from the file
// extension or the upload's content type.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
)

// MIME returns the content type for the format.
func (f Format) MIME() string {
	switch f {
	case FormatJPG, FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatWEBP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// FormatFromName derives a Format from a file name. The second return is
// false when the extension is not one of the supported image types.
func FormatFromName(name string) (Format, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch Format(ext) {
	case FormatPNG, FormatJPG, FormatJPEG, FormatGIF, FormatWEBP:
		return Format(ext), true
	default:
		return "", false
	}
}

// FormatFromMIME derives a Format from an upload content type.
func FormatFromMIME(mime string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return FormatPNG, true
	case "image/jpeg", "image/jpg":
		return FormatJPEG, true
	case "image/gif":
		return FormatGIF, true
	case "image/webp":
		return FormatWEBP, true
	default:
		return "", false
	}
}

// ImageAsset is a named byte buffer with a declared format. It is immutable
// once it has passed validation.
type ImageAsset struct {
	Name   string
	Format Format
	Data   []byte
}

// MaskAsset has the shape of an image asset but is interpreted by the remote
// API as a region selector: transparent or white pixels mark the area to
// regenerate, everything else is preserved.
type MaskAsset = ImageAsset

// NewAsset wraps uploaded bytes as an asset candidate. Format is taken from
// the declared content type when recognized, otherwise from the file name.
func NewAsset(name, mime string, data []byte) (ImageAsset, error) {
	format, ok := FormatFromMIME(mime)
	if !ok {
		if format, ok = FormatFromName(name); !ok {
			return ImageAsset{}, wrapf(ErrUnsupportedFormat, "%s", displayType(name, mime))
		}
	}
	return ImageAsset{Name: name, Format: format, Data: data}, nil
}

// LoadAssetFile reads a local file into an asset candidate. A missing or
// unreadable path maps to ErrNotFound.
func LoadAssetFile(path string) (ImageAsset, error) {
	format, ok := FormatFromName(path)
	if !ok {
		return ImageAsset{}, wrapf(ErrUnsupportedFormat, "%s", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ImageAsset{}, wrapf(ErrNotFound, "%s", path)
		}
		return ImageAsset{}, wrapf(ErrNotFound, "%s: %v", path, err)
	}
	return ImageAsset{Name: filepath.Base(path), Format: format, Data: data}, nil
}

func displayType(name, mime string) string {
	if mime != "" {
		return mime
	}
	if ext := filepath.Ext(name); ext != "" {
		return ext
	}
	return "unknown"
}
