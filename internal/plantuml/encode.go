// Package plantuml holds the pure text transformations of the pipeline:
// transport encoding for the render server, markup extraction from model
// output, and the per-type default skeletons.
package plantuml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
)

// The render server expects raw DEFLATE output re-encoded with its own
// base64 alphabet (see plantuml.com/text-encoding).
const encodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"

var encoding = base64.NewEncoding(encodeAlphabet).WithPadding(base64.NoPadding)

// Encode compresses diagram markup into the URL-safe form used in render
// server paths.
func Encode(text string) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("init deflate: %w", err)
	}
	if _, err := w.Write([]byte(text)); err != nil {
		return "", fmt.Errorf("compress markup: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("flush deflate: %w", err)
	}
	return encoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode.
func Decode(encoded string) (string, error) {
	compressed, err := encoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode markup: %w", err)
	}
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decompress markup: %w", err)
	}
	return string(raw), nil
}
