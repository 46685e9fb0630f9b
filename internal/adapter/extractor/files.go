package extractor

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// waitDelay bounds how long Wait keeps reading output after the process
// group was killed.
const waitDelay = 5 * time.Second

// commandFunc builds the command to run with workDir as its output directory.
type commandFunc func(ctx context.Context, workDir string) *exec.Cmd

// acceptFunc reports whether a produced file is kept as an artifact.
type acceptFunc func(name string) bool

// artifactFilter accepts files carrying the job prefix and one of exts.
// Thumbnails, info json and other side products are rejected.
func artifactFilter(jobID string, exts ...string) acceptFunc {
	return func(name string) bool {
		if !strings.HasPrefix(name, jobID) {
			return false
		}
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		for _, e := range exts {
			if strings.EqualFold(ext, e) {
				return true
			}
		}
		return false
	}
}

// combinedOutput runs cmd in its own process group so a cancelled context
// takes down the children it spawned (ffmpeg under yt-dlp) too.
func combinedOutput(cmd *exec.Cmd) ([]byte, error) {
	configureProcess(cmd)
	return cmd.CombinedOutput()
}

// runIsolated runs the command in a temp dir and moves accepted files into
// targetDir only if it succeeds, so a failed run never leaves a partial
// artifact behind. It returns the names of the moved files.
func runIsolated(ctx context.Context, jobID, targetDir string, accept acceptFunc, build commandFunc) ([]string, error) {
	tempDir, err := os.MkdirTemp("", fmt.Sprintf("mediagrab-job-%s-*", jobID))
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	log.Printf("job %s: running isolated in %s", jobID, tempDir)
	defer os.RemoveAll(tempDir)

	cmd := build(ctx, tempDir)
	cmd.Dir = tempDir
	if output, err := combinedOutput(cmd); err != nil {
		return nil, commandError(ctx, cmd, err, output)
	}

	return moveFiles(jobID, tempDir, targetDir, accept)
}

// runDirect runs the command with targetDir as its output directory. On
// failure every file carrying the job prefix is removed; on success so are
// the job's files that accept rejects.
func runDirect(ctx context.Context, jobID, targetDir string, accept acceptFunc, build commandFunc) ([]string, error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("create target dir: %w", err)
	}

	before := jobFiles(jobID, targetDir)
	cmd := build(ctx, targetDir)
	cmd.Dir = targetDir
	if output, err := combinedOutput(cmd); err != nil {
		purge(jobID, targetDir)
		return nil, commandError(ctx, cmd, err, output)
	}

	var produced []string
	for name := range jobFiles(jobID, targetDir) {
		if before[name] {
			continue
		}
		if !accept(name) {
			if err := os.Remove(filepath.Join(targetDir, name)); err != nil && !os.IsNotExist(err) {
				log.Printf("job %s: remove side product %s: %v", jobID, name, err)
			}
			continue
		}
		produced = append(produced, name)
	}
	return produced, nil
}

// moveFiles moves accepted files from srcDir to targetDir, skipping
// existing ones. Rejected files stay behind in srcDir. If any move fails,
// files already moved for this run are removed again.
func moveFiles(jobID, srcDir, targetDir string, accept acceptFunc) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}

	var files, discarded []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !accept(entry.Name()) {
			discarded = append(discarded, entry.Name())
			continue
		}
		files = append(files, entry.Name())
	}
	log.Printf("job %s: found %d file(s): %v", jobID, len(files), files)
	if len(discarded) > 0 {
		log.Printf("job %s: discarding %v", jobID, discarded)
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, err
	}

	var moved []string
	for _, name := range files {
		src := filepath.Join(srcDir, name)
		dst := filepath.Join(targetDir, name)

		// Skip if destination exists (no overwrite)
		if _, err := os.Stat(dst); err == nil {
			log.Printf("job %s: skipped %s (exists)", jobID, name)
			continue
		}

		if err := os.Rename(src, dst); err != nil {
			// Cross-device fallback
			if err := copyFile(src, dst); err != nil {
				for _, m := range moved {
					os.Remove(filepath.Join(targetDir, m))
				}
				return nil, fmt.Errorf("move %s: %w", name, err)
			}
			os.Remove(src)
		}
		moved = append(moved, name)
	}
	log.Printf("job %s: moved %d file(s) to %s", jobID, len(moved), targetDir)
	return moved, nil
}

// copyFile copies src to a hidden temp name next to dst and renames it into
// place, so dst never exists half-written.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".partial")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func jobFiles(jobID, dir string) map[string]bool {
	out := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasPrefix(entry.Name(), jobID) {
			out[entry.Name()] = true
		}
	}
	return out
}

func purge(jobID, dir string) {
	for name := range jobFiles(jobID, dir) {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			log.Printf("job %s: remove leftover %s: %v", jobID, name, err)
		}
	}
}

// commandError condenses a failed run into a client-presentable message.
func commandError(ctx context.Context, cmd *exec.Cmd, err error, output []byte) error {
	name := filepath.Base(cmd.Path)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s aborted: %w", name, ctxErr)
	}
	if line := lastLine(output); line != "" {
		return fmt.Errorf("%s failed: %s", name, line)
	}
	return fmt.Errorf("%s failed: %w", name, err)
}

// lastLine returns the last non-empty line of output, which is where
// command-line downloaders report the fatal error.
func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// pickHint returns the first file with the wanted extension.
func pickHint(files []string, ext string) string {
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), "."+ext) {
			return f
		}
	}
	return ""
}
