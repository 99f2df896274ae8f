package transcript

import (
	"path"
	"strings"
)

// placeholders are exporter stand-ins for content that is not text.
var placeholders = map[string]bool{
	"<media omitted>":          true,
	"null":                     true,
	"...":                      true,
	"this message was deleted": true,
	"you deleted this message": true,
}

// mediaExtensions are attachment suffixes; a message ending in one of them
// is an attachment name, e.g. "IMG-20240101-WA0001.jpg (file attached)".
var mediaExtensions = map[string]bool{
	// images
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
	// video
	".mp4": true, ".mov": true, ".3gp": true, ".avi": true, ".mkv": true,
	// audio
	".opus": true, ".mp3": true, ".m4a": true, ".aac": true, ".ogg": true, ".wav": true,
	// documents
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".txt": true, ".vcf": true, ".zip": true, ".apk": true,
}

const attachedSuffix = "(file attached)"

// IsNoise reports whether msg is a placeholder or ends in a media or
// document extension. Comparison is case-insensitive.
func IsNoise(msg string) bool {
	m := strings.ToLower(strings.TrimSpace(msg))
	if placeholders[m] {
		return true
	}
	m = strings.TrimSpace(strings.TrimSuffix(m, attachedSuffix))
	return mediaExtensions[path.Ext(m)]
}
