package storage

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	HeaderHash                    = "X-Goog-Hash"
	HeaderGeneration              = "X-Goog-Generation"
	HeaderMetageneration          = "X-Goog-Metageneration"
	HeaderStoredContentLength     = "X-Goog-Stored-Content-Length"
	HeaderStoredContentEncoding   = "X-Goog-Stored-Content-Encoding"
	HeaderUploadContentLength     = "X-Upload-Content-Length"
	HeaderUploadContentType       = "X-Upload-Content-Type"
	HeaderResponseTransformations = "X-Guploader-Response-Body-Transformations"
	HeaderEmulatorInstructions    = "X-Goog-Emulator-Instructions"
)

// FormatHashHeader renders hashes the way X-Goog-Hash carries them.
func FormatHashHeader(hashes HashValues) string {
	var parts []string
	if hashes.Crc32c != "" {
		parts = append(parts, "crc32c="+hashes.Crc32c)
	}
	if hashes.Md5 != "" {
		parts = append(parts, "md5="+hashes.Md5)
	}
	return strings.Join(parts, ",")
}

// ParseHashHeader reads all X-Goog-Hash values. Unknown hash names are
// ignored.
func ParseHashHeader(values []string) HashValues {
	var hashes HashValues
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			name, hash, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok {
				continue
			}

			switch strings.ToLower(name) {
			case "crc32c":
				hashes.Crc32c = hash
			case "md5":
				hashes.Md5 = hash
			}
		}
	}
	return hashes
}

// ContentRange is a parsed upload Content-Range header. First and Last are
// nil for "bytes */..." and Total is nil for ".../*".
type ContentRange struct {
	First *int64
	Last  *int64
	Total *int64
}

func (c ContentRange) String() string {
	span := "*"
	if c.First != nil && c.Last != nil {
		span = fmt.Sprintf("%d-%d", *c.First, *c.Last)
	}

	total := "*"
	if c.Total != nil {
		total = strconv.FormatInt(*c.Total, 10)
	}

	return fmt.Sprintf("bytes %s/%s", span, total)
}

func ParseContentRange(header string) (ContentRange, error) {
	var result ContentRange

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return result, fmt.Errorf("invalid content range %q", header)
	}

	span, total, ok := strings.Cut(spec, "/")
	if !ok {
		return result, fmt.Errorf("invalid content range %q", header)
	}

	if total != "*" {
		n, err := strconv.ParseInt(total, 10, 64)
		if err != nil || n < 0 {
			return result, fmt.Errorf("invalid total in content range %q", header)
		}
		result.Total = &n
	}

	if span == "*" {
		return result, nil
	}

	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return result, fmt.Errorf("invalid content range %q", header)
	}

	a, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return result, fmt.Errorf("invalid content range %q", header)
	}

	b, err := strconv.ParseInt(last, 10, 64)
	if err != nil || b < a || a < 0 {
		return result, fmt.Errorf("invalid content range %q", header)
	}

	result.First = &a
	result.Last = &b
	return result, nil
}

// ParseCommittedRange reads the Range header of a 308 response, which is
// "bytes=0-n" for n+1 committed bytes.
func ParseCommittedRange(header string) (uint64, bool) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return 0, false
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok || first != "0" {
		return 0, false
	}

	n, err := strconv.ParseUint(last, 10, 64)
	if err != nil {
		return 0, false
	}

	return n + 1, true
}
