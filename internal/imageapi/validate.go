package imageapi

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Per-file byte ceilings, exclusive. The edit endpoint only accepts small
// PNGs; reference and mask uploads follow the general upload limit.
const (
	MaxEditBytes      = 4 * 1024 * 1024
	MaxReferenceBytes = 20 * 1024 * 1024
)

// Reference image count bounds for compose mode, inclusive.
const (
	MinReferenceImages = 1
	MaxReferenceImages = 4
)

// ValidateAsset checks a candidate asset against the limits of the given
// mode and returns it unchanged on success. The asset bytes are never
// modified.
func ValidateAsset(asset ImageAsset, mode Mode) (ImageAsset, error) {
	if len(asset.Data) == 0 {
		return ImageAsset{}, wrapf(ErrEmpty, "%s", asset.Name)
	}
	switch mode {
	case ModeEdit:
		if asset.Format != FormatPNG {
			return ImageAsset{}, wrapf(ErrUnsupportedFormat, "%s: edit mode requires PNG", asset.Name)
		}
		if len(asset.Data) >= MaxEditBytes {
			return ImageAsset{}, wrapf(ErrTooLarge, "%s is %d bytes, limit is %d", asset.Name, len(asset.Data), MaxEditBytes)
		}
	default:
		if len(asset.Data) >= MaxReferenceBytes {
			return ImageAsset{}, wrapf(ErrTooLarge, "%s is %d bytes, limit is %d", asset.Name, len(asset.Data), MaxReferenceBytes)
		}
	}
	return asset, nil
}

// ValidateReferences validates a compose-mode reference set, enforcing the
// per-file rules and the 1-4 count bound.
func ValidateReferences(assets []ImageAsset) ([]ImageAsset, error) {
	if len(assets) < MinReferenceImages || len(assets) > MaxReferenceImages {
		return nil, wrapf(ErrReferenceCount, "got %d", len(assets))
	}
	for i, asset := range assets {
		if _, err := ValidateAsset(asset, ModeCompose); err != nil {
			return nil, fmt.Errorf("reference %d: %w", i+1, err)
		}
	}
	return assets, nil
}

// ValidateMaskPair validates a base image and its mask independently under
// the inpaint-mode rules. A pixel dimension mismatch between the two is
// returned as a warning string rather than an error, since the remote API is
// the final arbiter of mask compatibility.
func ValidateMaskPair(base ImageAsset, mask MaskAsset) (ImageAsset, MaskAsset, string, error) {
	base, err := ValidateAsset(base, ModeInpaint)
	if err != nil {
		return ImageAsset{}, MaskAsset{}, "", fmt.Errorf("base image: %w", err)
	}
	mask, err = ValidateAsset(mask, ModeInpaint)
	if err != nil {
		return ImageAsset{}, MaskAsset{}, "", fmt.Errorf("mask image: %w", err)
	}
	return base, mask, dimensionWarning(base, mask), nil
}

// dimensionWarning compares pixel dimensions where a decoder is available.
// WEBP has no stdlib decoder, so those assets are skipped.
func dimensionWarning(base ImageAsset, mask MaskAsset) string {
	bw, bh, ok := decodeDimensions(base.Data)
	if !ok {
		return ""
	}
	mw, mh, ok := decodeDimensions(mask.Data)
	if !ok {
		return ""
	}
	if bw != mw || bh != mh {
		return fmt.Sprintf("mask is %dx%d but base image is %dx%d; results may be misaligned", mw, mh, bw, bh)
	}
	return ""
}

func decodeDimensions(data []byte) (int, int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
