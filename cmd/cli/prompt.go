package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"imagestudio/internal/imageapi"
)

// prompter drives the interactive ask/validate/re-ask loop on a reader and
// writer pair so the flow can be scripted in tests.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask reads one trimmed line. Empty answers are re-asked until the reader is
// exhausted.
func (p *prompter) ask(label string) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		line, err := p.in.ReadString('\n')
		if answer := strings.TrimSpace(line); answer != "" {
			return answer, nil
		}
		if err != nil {
			return "", fmt.Errorf("no input for %q: %w", label, err)
		}
	}
}

// askAsset asks for a file path until one loads and validates under the
// given mode. Validation failures are reported and re-asked rather than
// terminating the run; seed is tried first when non-empty (a path supplied
// via flag).
func (p *prompter) askAsset(label, seed string, mode imageapi.Mode) (imageapi.ImageAsset, error) {
	path := strings.TrimSpace(seed)
	for {
		if path == "" {
			answer, err := p.ask(label)
			if err != nil {
				return imageapi.ImageAsset{}, err
			}
			path = answer
		}
		asset, err := loadValidated(path, mode)
		if err == nil {
			return asset, nil
		}
		if !imageapi.IsRecoverableInput(err) {
			return imageapi.ImageAsset{}, err
		}
		fmt.Fprintf(p.out, "%v\n", err)
		path = ""
	}
}

// askAssets collects 1-4 reference paths, one per line, terminated by a
// blank line.
func (p *prompter) askAssets(label string, seeds []string) ([]imageapi.ImageAsset, error) {
	for {
		paths := seeds
		seeds = nil
		if len(paths) == 0 {
			fmt.Fprintf(p.out, "%s (1-4 paths, blank line to finish):\n", label)
			for len(paths) < imageapi.MaxReferenceImages {
				fmt.Fprintf(p.out, "  path %d: ", len(paths)+1)
				line, err := p.in.ReadString('\n')
				answer := strings.TrimSpace(line)
				if answer == "" {
					if err != nil && len(paths) == 0 {
						return nil, fmt.Errorf("no reference images provided: %w", err)
					}
					break
				}
				paths = append(paths, answer)
			}
		}
		assets, err := loadReferences(paths)
		if err == nil {
			return assets, nil
		}
		if !imageapi.IsRecoverableInput(err) {
			return nil, err
		}
		fmt.Fprintf(p.out, "%v\n", err)
	}
}

func loadValidated(path string, mode imageapi.Mode) (imageapi.ImageAsset, error) {
	asset, err := imageapi.LoadAssetFile(path)
	if err != nil {
		return imageapi.ImageAsset{}, err
	}
	return imageapi.ValidateAsset(asset, mode)
}

func loadReferences(paths []string) ([]imageapi.ImageAsset, error) {
	assets := make([]imageapi.ImageAsset, 0, len(paths))
	for _, path := range paths {
		asset, err := imageapi.LoadAssetFile(path)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return imageapi.ValidateReferences(assets)
}
