package albumkeep

import (
	"net/url"
	"strings"
)

// Accepted image file extensions, matched case-insensitively.
var acceptedExtensions = map[string]bool{
	"jpeg": true,
	"png":  true,
}

// DecodeObjectKey turns an object key as reported by the object store
// (URL-encoded, with '+' representing space) into the plain key used as the
// metadata record's primary key.
func DecodeObjectKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", err
	}
	return key, nil
}

// FileExtension returns the lowercased token after the final '.' in key.
// A key without a '.' has no extension and yields "".
func FileExtension(key string) string {
	i := strings.LastIndex(key, ".")
	if i < 0 || i == len(key)-1 {
		return ""
	}
	return strings.ToLower(key[i+1:])
}

// AcceptedImage reports whether the key names a supported image type.
func AcceptedImage(key string) bool {
	return acceptedExtensions[FileExtension(key)]
}
