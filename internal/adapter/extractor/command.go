package extractor

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/cwygoda/mediagrab/internal/config"
	"github.com/cwygoda/mediagrab/internal/domain"
)

// Command runs a configured external command for matching URLs.
//
// Args support the placeholders {url}, {job}, {format}, {ext} and {dir};
// {dir} is the directory the command must write its output into.
type Command struct {
	name      string
	pattern   *regexp.Regexp
	command   string
	args      []string
	targetDir string
	isolate   bool
	audioExt  string
	videoExt  string
}

// NewCommand creates an extractor from config. Isolation defaults to true.
func NewCommand(ec config.ExtractorConfig, targetDir, audioExt, videoExt string) (*Command, error) {
	if ec.Command == "" {
		return nil, fmt.Errorf("extractor %q: command is required", ec.Name)
	}
	re, err := regexp.Compile(ec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", ec.Pattern, err)
	}

	isolate := true
	if ec.Isolate != nil {
		isolate = *ec.Isolate
	}

	return &Command{
		name:      ec.Name,
		pattern:   re,
		command:   config.ExpandPath(ec.Command),
		args:      ec.Args,
		targetDir: targetDir,
		isolate:   isolate,
		audioExt:  audioExt,
		videoExt:  videoExt,
	}, nil
}

func (p *Command) Name() string {
	return p.name
}

func (p *Command) Match(url string) bool {
	return p.pattern.MatchString(url)
}

func (p *Command) Extract(ctx context.Context, req domain.ExtractRequest) (string, error) {
	ext := p.audioExt
	if req.Format == domain.FormatVideo {
		ext = p.videoExt
	}

	build := func(ctx context.Context, dir string) *exec.Cmd {
		r := strings.NewReplacer(
			"{url}", req.SourceURL,
			"{job}", req.JobID,
			"{format}", string(req.Format),
			"{ext}", ext,
			"{dir}", dir,
		)
		args := make([]string, len(p.args))
		for i, arg := range p.args {
			args[i] = r.Replace(arg)
		}
		return exec.CommandContext(ctx, p.command, args...)
	}

	run := runDirect
	if p.isolate {
		run = runIsolated
	}
	files, err := run(ctx, req.JobID, p.targetDir, artifactFilter(req.JobID, p.audioExt, p.videoExt), build)
	if err != nil {
		return "", err
	}
	return pickHint(files, ext), nil
}
