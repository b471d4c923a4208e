// Package metadata commits final race-number identifications into photo
// files. Raster images can take embedded keyword writes through exiftool;
// camera raw sources are never modified and always receive an XMP sidecar.
// Commits against the same path are serialized.
package metadata
