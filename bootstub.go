//go:build linux

// Package bootstub is a self-extracting application loader. The loader
// binary carries an xz-compressed tar archive in a section of its own ELF
// image; at startup it unpacks the archive into a private workspace,
// rewrites the packaged application's interpreter and runtime search paths
// to point into that workspace, runs the application as a child process,
// and mirrors the child's exit code or terminating signal.
package bootstub

import (
	"fmt"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/packlab/bootstub/elfpatch"
	"github.com/packlab/bootstub/extract"
	"github.com/packlab/bootstub/supervise"
	"github.com/packlab/bootstub/workspace"
)

const (
	// ArchiveSection is the loader image section holding the compressed
	// archive. Its on-disk size equals the compressed payload size.
	ArchiveSection = ".bootstub.archive"

	// InterpMember and ProgMember are the fixed member paths of the
	// dynamic loader and the packaged application inside the archive.
	InterpMember = ".bootstub.interp"
	ProgMember   = ".bootstub.prog"

	// FatalStatus is the loader's exit status for any unrecoverable
	// error; ExecFailStatus distinguishes a program that could not be
	// executed at all.
	FatalStatus    = 2
	ExecFailStatus = 3
)

// selfImage is the default loader image to read the archive from.
const selfImage = "/proc/self/exe"

// Options control a loader run.
type Options struct {
	// ImagePath overrides the loader image carrying the embedded
	// archive. Empty means the running executable.
	ImagePath string
}

// Run executes the whole loader pipeline and returns the child's outcome.
// passArgs are handed to the packaged application verbatim; its argv[0] is
// the path of the extracted, patched binary.
//
// Any error is fatal to the run. An error raised after the workspace was
// created leaves the directory behind: this is a pre-execution boot path,
// and failing fast beats acting further on a corrupted state.
func Run(logger log.Logger, opts Options, passArgs []string) (supervise.Outcome, error) {
	image := opts.ImagePath
	if image == "" {
		image = selfImage
	}

	home, err := workspace.Create()
	if err != nil {
		return supervise.Outcome{}, err
	}
	level.Debug(logger).Log("msg", "created workspace", "dir", home)

	if err := extractEmbedded(logger, image, home); err != nil {
		return supervise.Outcome{}, err
	}

	prog := filepath.Join(home, ProgMember)
	if err := patchProg(logger, prog, filepath.Join(home, InterpMember), home); err != nil {
		return supervise.Outcome{}, err
	}

	outcome, err := supervise.Run(logger, prog, passArgs)
	if err != nil {
		return supervise.Outcome{}, err
	}

	workspace.Destroy(logger, home)
	return outcome, nil
}

// extractEmbedded maps the loader image, locates the archive section, and
// extracts its members into home. The mapping is released before any
// extracted file is touched further.
func extractEmbedded(logger log.Logger, imagePath, home string) error {
	m, err := elfpatch.Acquire(imagePath, false)
	if err != nil {
		return err
	}
	defer m.Release()

	v, err := elfpatch.NewView(m)
	if err != nil {
		return fmt.Errorf("loader image %s: %w", imagePath, err)
	}
	sec, err := v.SectionByName(ArchiveSection)
	if err != nil {
		return fmt.Errorf("loader image %s has no embedded archive: %w", imagePath, err)
	}
	data, err := sec.Data()
	if err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "found embedded archive", "section", ArchiveSection, "size", len(data))

	if err := extract.ExtractAll(logger, data, home); err != nil {
		return err
	}
	return m.Release()
}

// patchProg rewrites the packaged application's interpreter path and
// runtime search path in place. The writable mapping is released, flushing
// the mutations, before the binary is executed.
func patchProg(logger log.Logger, progPath, interpPath, runPath string) error {
	m, err := elfpatch.Acquire(progPath, true)
	if err != nil {
		return err
	}
	defer m.Release()

	v, err := elfpatch.NewView(m)
	if err != nil {
		return fmt.Errorf("program %s: %w", progPath, err)
	}
	if err := v.SetInterp(interpPath); err != nil {
		return fmt.Errorf("program %s: %w", progPath, err)
	}
	level.Debug(logger).Log("msg", "set interpreter", "prog", progPath, "interp", interpPath)

	if err := v.SetRunPath(runPath); err != nil {
		return fmt.Errorf("program %s: %w", progPath, err)
	}
	level.Debug(logger).Log("msg", "set run path", "prog", progPath, "runpath", runPath)

	return m.Release()
}
