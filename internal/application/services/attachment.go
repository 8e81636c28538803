package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

// Messages never carry attachment bytes, only a reference to an object that
// was uploaded through the separate upload service. A reference is either an
// http(s) URL or a bare storage path; both must end in an allowlisted file
// extension, and bare paths must not contain traversal sequences, raw or
// percent-encoded.

const maxAttachmentLength = 2048

// SVG is deliberately absent (script execution risk).
var allowedExtensions = map[string]bool{
	// Images
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true, "ico": true,
	// Documents
	"pdf": true, "doc": true, "docx": true, "txt": true, "rtf": true, "odt": true,
	// Audio
	"mp3": true, "wav": true, "ogg": true, "m4a": true, "aac": true,
	// Video
	"mp4": true, "webm": true, "avi": true, "mov": true, "mkv": true,
	// Archives
	"zip": true, "rar": true, "7z": true, "tar": true, "gz": true,
}

var extensionPattern = regexp.MustCompile(`\.([^./?#\\]+)(?:[?#]|$)`)

func extractExtension(s string) string {
	m := extensionPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// ValidateAttachment checks an attachment reference and returns it
// normalized. An empty reference is valid and means "no attachment".
func ValidateAttachment(reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", nil
	}
	if len(reference) > maxAttachmentLength {
		return "", apperrors.InvalidArg(fmt.Sprintf("attachment reference exceeds maximum length of %d characters", maxAttachmentLength))
	}

	if u, err := url.Parse(reference); err == nil && u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", apperrors.InvalidArg("only HTTP and HTTPS attachment URLs are allowed")
		}
		ext := extractExtension(u.Path)
		if ext == "" {
			return "", apperrors.InvalidArg("attachment URL must include a file extension")
		}
		if !allowedExtensions[ext] {
			return "", apperrors.InvalidArg(fmt.Sprintf("file type %q is not allowed", "."+ext))
		}
		return reference, nil
	}

	// Bare storage path.
	ext := extractExtension(reference)
	if ext == "" {
		return "", apperrors.InvalidArg("attachment must be a valid URL or file path with an extension")
	}
	if !allowedExtensions[ext] {
		return "", apperrors.InvalidArg(fmt.Sprintf("file type %q is not allowed", "."+ext))
	}

	decoded, err := url.QueryUnescape(reference)
	if err != nil {
		// Undecodable percent sequences are treated as hostile.
		return "", apperrors.InvalidArg("invalid attachment reference encoding")
	}
	for _, candidate := range []string{strings.ToLower(reference), strings.ToLower(decoded)} {
		if strings.Contains(candidate, "../") || strings.Contains(candidate, `..\`) {
			return "", apperrors.InvalidArg("directory traversal is not allowed in attachment paths")
		}
	}

	return reference, nil
}
