package scenario

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// acquireFixture gives the session a working directory. With IsolateFixture it is a fresh copy
// of the fixture; otherwise it is the fixture itself, and the session holds the Runner's turn
// on it until Close, so that no other scenario can clean or rebuild it underneath a running
// server.
func (r *Runner) acquireFixture(ctx context.Context, s *Session) error {
	if !r.config.IsolateFixture {
		select {
		case r.fixtureTurn <- struct{}{}:
		default:
			s.logger.Printf("Waiting for another scenario to finish with %s", r.config.Fixture)
			select {
			case r.fixtureTurn <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		s.Dir = r.config.Fixture
		s.release = func() { <-r.fixtureTurn }
		return nil
	}

	dir, err := os.MkdirTemp(r.config.WorkDir, "ssr-"+s.RunID[:8]+"-")
	if err != nil {
		return fmt.Errorf("could not create working copy of fixture: %w", err)
	}
	s.Dir = dir
	s.release = func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Printf("Warning: could not remove %s: %s", dir, err)
		}
	}
	s.logger.Printf("Copying %s to %s", r.config.Fixture, dir)
	if err := copyDirectory(r.config.Fixture, dir, r.outputDir()); err != nil {
		return fmt.Errorf("could not copy fixture: %w", err)
	}
	return nil
}

// copyDirectory copies the contents of src into the existing directory dst, keeping file modes
// and recreating symlinks as symlinks. A top-level entry named skip is not copied.
func copyDirectory(src, dst, skip string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == skip {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := os.Mkdir(dstPath, info.Mode().Perm()); err != nil {
				return err
			}
			if err := copyDirectory(srcPath, dstPath, ""); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, info.Mode().Perm()); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		return err
	}
	return destFile.Close()
}
