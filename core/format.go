package core

import (
	"bytes"
	"mime"
	"strings"
)

// DetectFormat sniffs the leading magic bytes of data. It never consults
// any client-supplied hint.
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return FormatTIFF
	case len(data) >= 14 && data[0] == 'B' && data[1] == 'M':
		return FormatBMP
	}
	return FormatUnknown
}

// ParseFormat accepts a format name ("jpg", "PNG", "tiff") or a MIME type
// ("image/jpeg; q=1") and returns the matching Format.
func ParseFormat(s string) Format {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return FormatUnknown
	}
	if strings.Contains(s, "/") {
		if mt, _, err := mime.ParseMediaType(s); err == nil {
			s = mt
		}
		return contentTypeToFormat(s)
	}
	switch strings.TrimPrefix(s, ".") {
	case "jpeg", "jpg", "jpe":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "gif":
		return FormatGIF
	case "bmp":
		return FormatBMP
	case "tiff", "tif":
		return FormatTIFF
	case "webp":
		return FormatWebP
	}
	return FormatUnknown
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	case FormatWebP:
		return "image/webp"
	}
	return "application/octet-stream"
}

// SupportsAlpha reports whether an encoder for f can carry transparency.
func (f Format) SupportsAlpha() bool {
	switch f {
	case FormatJPEG:
		return false
	}
	return true
}

// Compressed reports whether the encoded form of f is already compressed,
// so storing it compressed again gains nothing.
func (f Format) Compressed() bool {
	switch f {
	case FormatBMP, FormatTIFF, FormatUnknown:
		return false
	}
	return true
}

// contentTypeToFormat maps MIME types to Format values.
func contentTypeToFormat(ct string) Format {
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return FormatJPEG
	case "image/png", "image/x-png":
		return FormatPNG
	case "image/gif":
		return FormatGIF
	case "image/bmp", "image/x-bmp", "image/x-ms-bmp":
		return FormatBMP
	case "image/tiff", "image/tiff-fx":
		return FormatTIFF
	case "image/webp":
		return FormatWebP
	}
	return FormatUnknown
}
