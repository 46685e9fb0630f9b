package domain

import (
	"mime"
	"path/filepath"
	"time"
)

// Kind classifies an artifact by its extension.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// KindOf maps a requested format onto the artifact kind it produces.
func KindOf(f Format) Kind {
	if f == FormatVideo {
		return KindVideo
	}
	return KindAudio
}

// Artifact is a produced file available for download.
type Artifact struct {
	Filename   string
	SizeBytes  int64
	ModifiedAt time.Time
	Kind       Kind
}

// ContentType returns the MIME type an artifact is served with.
func (a Artifact) ContentType() string {
	switch ext := filepath.Ext(a.Filename); ext {
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}
