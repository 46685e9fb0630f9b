package domain

import "errors"

var (
	ErrInvalidFormat     = errors.New("invalid format")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrJobNotFound       = errors.New("job not found")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrNoExtractor       = errors.New("no extractor for URL")
)

// MsgArtifactMissing is recorded when extraction reports success but no
// matching file can be located.
const MsgArtifactMissing = "artifact not found after processing"
