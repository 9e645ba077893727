// Package scratch keeps short-lived files, such as downloaded attachments,
// in per-run directories that are removed when the run ends.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger().WithField("package", "scratch")

type Store struct {
	dir string
}

// New returns a store rooted at dir, creating it if needed. An empty dir
// selects a fresh temporary directory.
func New(dir string) (*Store, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "comprobantes-")
		if err != nil {
			return nil, fmt.Errorf("unable to create temporary directory: %w", err)
		}
		dir = tmp
	}
	_, err := os.Stat(dir)
	if os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0700)
		if err != nil {
			return nil, fmt.Errorf("unable to create scratch directory: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Store{dir: abs}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// RunDir creates and returns the directory owned by runId.
func (s *Store) RunDir(runId string) (string, error) {
	if runId == "" || strings.ContainsAny(runId, `/\`) || runId == "." || runId == ".." {
		return "", fmt.Errorf("invalid run id %q", runId)
	}
	p := filepath.Join(s.dir, runId)
	if err := os.MkdirAll(p, 0700); err != nil {
		return "", fmt.Errorf("unable to create run directory: %w", err)
	}
	return p, nil
}

func (s *Store) Read(path string) ([]byte, error) {
	if err := s.contains(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *Store) Remove(path string) error {
	if err := s.contains(path); err != nil {
		return err
	}
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	log.Debugf("removed %s", path)
	return nil
}

// RemoveRun deletes the directory owned by runId with everything in it.
func (s *Store) RemoveRun(runId string) error {
	if runId == "" {
		return nil
	}
	p := filepath.Join(s.dir, runId)
	if err := s.contains(p); err != nil {
		return err
	}
	return os.RemoveAll(p)
}

// Cleanup removes every run directory left behind, e.g. by a crashed run.
func (s *Store) Cleanup() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) contains(path string) error {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %s is outside of the scratch directory", path)
	}
	return nil
}
