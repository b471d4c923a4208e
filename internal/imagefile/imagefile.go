// Package imagefile models the closed set of image formats the pipeline
// accepts and the RAW/raster split that drives commit strategy selection.
package imagefile

import (
	"path/filepath"
	"strings"
)

// Kind identifies a supported image format.
type Kind string

const (
	KindJPEG Kind = "jpeg"
	KindPNG  Kind = "png"
	KindTIFF Kind = "tiff"
	KindCR2  Kind = "cr2"
	KindCR3  Kind = "cr3"
	KindNEF  Kind = "nef"
	KindARW  Kind = "arw"
	KindRAF  Kind = "raf"
	KindORF  Kind = "orf"
	KindRW2  Kind = "rw2"
	KindDNG  Kind = "dng"
)

var rasterKinds = map[Kind]struct{}{
	KindJPEG: {},
	KindPNG:  {},
	KindTIFF: {},
}

var rawKinds = map[Kind]struct{}{
	KindCR2: {},
	KindCR3: {},
	KindNEF: {},
	KindARW: {},
	KindRAF: {},
	KindORF: {},
	KindRW2: {},
	KindDNG: {},
}

var kindByExtension = map[string]Kind{
	".jpg":  KindJPEG,
	".jpeg": KindJPEG,
	".png":  KindPNG,
	".tif":  KindTIFF,
	".tiff": KindTIFF,
	".cr2":  KindCR2,
	".cr3":  KindCR3,
	".nef":  KindNEF,
	".arw":  KindARW,
	".raf":  KindRAF,
	".orf":  KindORF,
	".rw2":  KindRW2,
	".dng":  KindDNG,
}

// Classify maps a file path to its image kind. The second return value is
// false for unsupported extensions.
func Classify(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
	kind, ok := kindByExtension[ext]
	return kind, ok
}

// ParseKind converts a stored kind string back into a known Kind.
func ParseKind(value string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := rasterKinds[kind]; ok {
		return kind, true
	}
	if _, ok := rawKinds[kind]; ok {
		return kind, true
	}
	return "", false
}

// IsRaw reports whether the kind is a camera-native RAW format. RAW sources
// are never written in place; commits always go to a sidecar.
func (k Kind) IsRaw() bool {
	_, ok := rawKinds[k]
	return ok
}

// SupportedExtensions returns the recognized extensions in sorted-stable order.
func SupportedExtensions() []string {
	exts := []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".cr2", ".cr3", ".nef", ".arw", ".raf", ".orf", ".rw2", ".dng"}
	cp := make([]string, len(exts))
	copy(cp, exts)
	return cp
}
