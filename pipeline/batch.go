package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/ngen/pkg/classfile"
	"github.com/chazu/ngen/pkg/jvm"
)

// Job is one class of a batch. Class is used when set, otherwise the
// class file at Path is read.
type Job struct {
	Index int
	Path  string
	Class *jvm.Class
}

// Failure records a class that produced no output.
type Failure struct {
	Job Job
	Err error
}

func (f Failure) Error() string {
	if f.Job.Path != "" {
		return fmt.Sprintf("%s: %v", f.Job.Path, f.Err)
	}
	return f.Err.Error()
}

// Summary is the outcome of a batch, in job order.
type Summary struct {
	Outputs  []*Output
	Filtered []string // classes rejected by Options.Accept
	Failures []Failure
	Bytes    int // bytes written to OutputDir
}

// RunAll generates every job, at most opts.Parallelism at a time. A failing
// class does not stop the others. Cancelling ctx stops new classes from
// starting; the returned error is then ctx.Err() and the summary covers
// the classes that ran.
func RunAll(ctx context.Context, jobs []Job, opts Options) (*Summary, error) {
	type result struct {
		out      *Output
		filtered string
		bytes    int
		err      error
		ran      bool
	}
	results := make([]result, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(opts.Parallelism, 1))
	for i, job := range jobs {
		i, job := i, job
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r := &results[i]
			r.ran = true
			class, err := load(job)
			if err != nil {
				r.err = err
				return nil
			}
			if opts.Accept != nil && !opts.Accept(class.Name) {
				r.filtered = class.Name
				return nil
			}
			log.Infof("generating %s", class.DisplayName())
			if r.out, r.err = Generate(class, job.Index, opts); r.err != nil {
				return nil
			}
			if opts.OutputDir != "" {
				r.bytes, r.err = r.out.Write(opts.OutputDir, opts.Reports)
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := &Summary{}
	for i, r := range results {
		switch {
		case !r.ran:
		case r.err != nil:
			f := Failure{Job: jobs[i], Err: r.err}
			log.Errorf("%s", f.Error())
			sum.Failures = append(sum.Failures, f)
		case r.filtered != "":
			sum.Filtered = append(sum.Filtered, r.filtered)
		default:
			sum.Outputs = append(sum.Outputs, r.out)
			sum.Bytes += r.bytes
		}
	}
	return sum, ctx.Err()
}

func load(job Job) (*jvm.Class, error) {
	if job.Class != nil {
		return job.Class, nil
	}
	data, err := os.ReadFile(job.Path)
	if err != nil {
		return nil, err
	}
	return classfile.Read(data)
}

// Collect expands paths into jobs. Directories are searched recursively
// for .class files. Jobs are numbered in sorted path order so indices do
// not depend on the order the arguments were given in.
func Collect(paths []string) ([]Job, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(p, ".class") {
				add(filepath.Clean(p))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	jobs := make([]Job, len(files))
	for i, f := range files {
		jobs[i] = Job{Index: i, Path: f}
	}
	return jobs, nil
}
