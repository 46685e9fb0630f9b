package storage

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cwygoda/mediagrab/internal/domain"
	"github.com/dustin/go-humanize"
)

// Store implements domain.ArtifactStore over a flat directory. Files whose
// extension is not a configured audio or video extension are invisible to
// every operation.
type Store struct {
	dir    string
	maxAge time.Duration
	kinds  map[string]domain.Kind
	exts   map[domain.Kind]string
	now    func() time.Time
	remove func(string) error
}

// New creates the artifact directory if needed. Extensions are given
// without the leading dot.
func New(dir string, maxAge time.Duration, audioExt, videoExt string) (*Store, error) {
	audioExt = strings.TrimPrefix(audioExt, ".")
	videoExt = strings.TrimPrefix(videoExt, ".")
	if audioExt == "" || videoExt == "" || audioExt == videoExt {
		return nil, fmt.Errorf("audio and video extensions must be distinct and non-empty (got %q, %q)", audioExt, videoExt)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	return &Store{
		dir:    dir,
		maxAge: maxAge,
		kinds: map[string]domain.Kind{
			"." + audioExt: domain.KindAudio,
			"." + videoExt: domain.KindVideo,
		},
		exts: map[domain.Kind]string{
			domain.KindAudio: audioExt,
			domain.KindVideo: videoExt,
		},
		now:    time.Now,
		remove: os.Remove,
	}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Ext returns the file extension produced for a format.
func (s *Store) Ext(format domain.Format) string {
	return s.exts[domain.KindOf(format)]
}

// List sweeps expired artifacts and returns the survivors, newest first.
// Every call rereads the directory.
func (s *Store) List(ctx context.Context) ([]domain.Artifact, error) {
	artifacts, _, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(artifacts, func(a, b domain.Artifact) int {
		if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Filename, b.Filename)
	})
	return artifacts, nil
}

// Sweep deletes expired artifacts and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	_, removed, err := s.scan(ctx)
	return removed, err
}

// scan walks the directory once, deleting expired artifacts as it goes.
// A failed delete is logged and the file is left out of the result.
func (s *Store) scan(ctx context.Context) ([]domain.Artifact, int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read artifact dir: %w", err)
	}

	now := s.now()
	var (
		artifacts []domain.Artifact
		removed   int
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, removed, err
		}
		kind, ok := s.kindOf(entry.Name())
		if !ok || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Vanished since ReadDir.
			if !os.IsNotExist(err) {
				log.Printf("artifacts: stat %s: %v", entry.Name(), err)
			}
			continue
		}

		if now.Sub(info.ModTime()) > s.maxAge {
			if err := s.remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
				log.Printf("artifacts: remove %s: %v", entry.Name(), err)
				continue
			}
			log.Printf("artifacts: removed expired %s (%s, modified %s)",
				entry.Name(), humanize.Bytes(uint64(info.Size())), humanize.RelTime(info.ModTime(), now, "ago", "from now"))
			removed++
			continue
		}

		artifacts = append(artifacts, domain.Artifact{
			Filename:   entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
			Kind:       kind,
		})
	}
	return artifacts, removed, nil
}

// Resolve opens a named artifact for reading. Names that are not plain
// recognized filenames inside the directory, symlinks, and expired files
// all resolve to ErrArtifactNotFound.
func (s *Store) Resolve(name string) (*os.File, domain.Artifact, error) {
	if !validName(name) {
		return nil, domain.Artifact{}, domain.ErrArtifactNotFound
	}
	kind, ok := s.kindOf(name)
	if !ok {
		return nil, domain.Artifact{}, domain.ErrArtifactNotFound
	}

	path := filepath.Join(s.dir, name)
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.Artifact{}, domain.ErrArtifactNotFound
		}
		return nil, domain.Artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() || s.now().Sub(info.ModTime()) > s.maxAge {
		return nil, domain.Artifact{}, domain.ErrArtifactNotFound
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.Artifact{}, domain.ErrArtifactNotFound
		}
		return nil, domain.Artifact{}, fmt.Errorf("open artifact: %w", err)
	}

	return f, domain.Artifact{
		Filename:   name,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
		Kind:       kind,
	}, nil
}

// Locate finds the newest artifact whose name starts with jobID and whose
// extension matches format. Extractors do not reliably predict the final
// name, so the directory is searched.
func (s *Store) Locate(jobID string, format domain.Format) (string, error) {
	if jobID == "" {
		return "", domain.ErrArtifactNotFound
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrArtifactNotFound
		}
		return "", fmt.Errorf("read artifact dir: %w", err)
	}

	want := domain.KindOf(format)
	var (
		best    string
		bestMod time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasPrefix(name, jobID) {
			continue
		}
		if kind, ok := s.kindOf(name); !ok || kind != want {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = name, info.ModTime()
		}
	}
	if best == "" {
		return "", domain.ErrArtifactNotFound
	}
	return best, nil
}

func (s *Store) kindOf(name string) (domain.Kind, bool) {
	kind, ok := s.kinds[filepath.Ext(name)]
	return kind, ok
}

// validName accepts only bare filenames that cannot address anything
// outside the artifact directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return fs.ValidPath(name) && filepath.Base(name) == name
}
