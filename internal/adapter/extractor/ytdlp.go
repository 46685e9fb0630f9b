package extractor

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/cwygoda/mediagrab/internal/domain"
)

// DefaultYtDlpPattern matches any http(s) URL; yt-dlp decides what it supports.
const DefaultYtDlpPattern = `^https?://`

// YtDlpOptions configures the yt-dlp extractor.
type YtDlpOptions struct {
	Binary       string
	FFmpegPath   string
	AudioQuality string
	AudioExt     string
	VideoExt     string
	Pattern      string
}

// YtDlp downloads media with yt-dlp, extracting audio with ffmpeg when the
// audio format is requested.
type YtDlp struct {
	opts      YtDlpOptions
	pattern   *regexp.Regexp
	targetDir string
}

// NewYtDlp creates a yt-dlp extractor writing into targetDir.
func NewYtDlp(targetDir string, opts YtDlpOptions) (*YtDlp, error) {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.AudioQuality == "" {
		opts.AudioQuality = "192K"
	}
	if opts.AudioExt == "" {
		opts.AudioExt = "mp3"
	}
	if opts.VideoExt == "" {
		opts.VideoExt = "mp4"
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultYtDlpPattern
	}
	re, err := regexp.Compile(opts.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, err)
	}
	return &YtDlp{opts: opts, pattern: re, targetDir: targetDir}, nil
}

// Name returns the extractor name.
func (p *YtDlp) Name() string {
	return "yt-dlp"
}

// Match reports whether the URL should be handled by yt-dlp.
func (p *YtDlp) Match(url string) bool {
	return p.pattern.MatchString(url)
}

// Extract downloads into a temp dir and moves the result into the target
// dir. Output names are {jobID}_{sanitized title}.{ext}.
func (p *YtDlp) Extract(ctx context.Context, req domain.ExtractRequest) (string, error) {
	accept := artifactFilter(req.JobID, p.opts.AudioExt, p.opts.VideoExt)
	moved, err := runIsolated(ctx, req.JobID, p.targetDir, accept, func(ctx context.Context, dir string) *exec.Cmd {
		return exec.CommandContext(ctx, p.opts.Binary, p.args(req, dir)...)
	})
	if err != nil {
		return "", err
	}

	hint := pickHint(moved, p.ext(req.Format))
	log.Printf("job %s: yt-dlp produced %v", req.JobID, moved)
	return hint, nil
}

func (p *YtDlp) ext(f domain.Format) string {
	if f == domain.FormatVideo {
		return p.opts.VideoExt
	}
	return p.opts.AudioExt
}

// args builds the yt-dlp command line. Playlists resolve to their first
// entry.
func (p *YtDlp) args(req domain.ExtractRequest, dir string) []string {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--restrict-filenames",
		"-o", filepath.Join(dir, req.JobID+"_%(title)s.%(ext)s"),
	}
	if p.opts.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", p.opts.FFmpegPath)
	}

	switch req.Format {
	case domain.FormatVideo:
		args = append(args,
			"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
			"--merge-output-format", p.opts.VideoExt,
		)
	default:
		args = append(args,
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", p.opts.AudioExt,
			"--audio-quality", p.opts.AudioQuality,
		)
	}
	return append(args, "--", req.SourceURL)
}
