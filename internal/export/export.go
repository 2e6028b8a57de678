// Package export builds the production frontend and packages the frontend and
// backend into the archives that `trellis deploy` uploads.
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/toolchain"
)

// Archive names.
const (
	FrontendZip = "frontend.zip"
	BackendZip  = "backend.zip"
)

// StaticDir is where the frontend export script writes the static site,
// relative to the project.
var StaticDir = filepath.Join(toolchain.WebDir, "_static")

// ScriptRunner runs a package.json script in the frontend directory.
type ScriptRunner interface {
	RunScript(ctx context.Context, out io.Writer, script string, env []string) error
}

// Options selects what to export and where.
type Options struct {
	Dir string
	// OutDir receives the archives; defaults to Dir.
	OutDir    string
	Frontend  bool
	Backend   bool
	Zip       bool
	APIURL    string
	DeployURL string
	Runner    ScriptRunner
	Output    io.Writer
	Logger    *zap.Logger
}

// Result names what was produced. Archive paths are empty when not zipped.
type Result struct {
	StaticDir   string
	FrontendZip string
	BackendZip  string
}

// Export builds the frontend and writes the requested archives.
func Export(ctx context.Context, opts Options) (Result, error) {
	var res Result
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = opts.Dir
	}

	if opts.Frontend {
		env := []string{
			config.EnvAPIURL + "=" + opts.APIURL,
			config.EnvDeployURL + "=" + opts.DeployURL,
		}
		logger.Debug("building frontend", zap.String("api_url", opts.APIURL), zap.String("deploy_url", opts.DeployURL))
		if err := opts.Runner.RunScript(ctx, out, toolchain.ScriptExport, env); err != nil {
			return res, fmt.Errorf("failed to build frontend: %w", err)
		}
		res.StaticDir = filepath.Join(opts.Dir, StaticDir)
		if opts.Zip {
			res.FrontendZip = filepath.Join(outDir, FrontendZip)
			if err := ZipDir(res.StaticDir, res.FrontendZip, nil); err != nil {
				return res, fmt.Errorf("failed to zip frontend: %w", err)
			}
		}
	}

	if opts.Backend && opts.Zip {
		m, err := LoadMatcher(opts.Dir)
		if err != nil {
			return res, fmt.Errorf("failed to read %s: %w", IgnoreFile, err)
		}
		res.BackendZip = filepath.Join(outDir, BackendZip)
		if err := ZipDir(opts.Dir, res.BackendZip, m); err != nil {
			return res, fmt.Errorf("failed to zip backend: %w", err)
		}
	}
	return res, nil
}

// ZipDir writes every regular file under root to dest, skipping paths that
// ignore matches. dest is never included in itself.
func ZipDir(root, dest string, ignore *Matcher) (err error) {
	if ignore == nil {
		ignore = NewMatcher(nil)
	}
	if _, err := os.Stat(root); err != nil {
		return err
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	zw := zip.NewWriter(f)
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		if ignore.Match(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absDest {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
