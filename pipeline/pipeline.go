// Package pipeline drives generation: one class through translation,
// trampoline injection and assembly, or many classes in parallel.
package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/ngen/pkg/jvm"
	"github.com/chazu/ngen/report"
	"github.com/chazu/ngen/source"
	"github.com/chazu/ngen/translate"
)

var log = commonlog.GetLogger("ngen.pipeline")

// File extensions of the outputs.
const (
	ArtifactExt = ".cpp"
	ReportExt   = ".ngen"
)

// Options configures a run.
type Options struct {
	NativeDir string
	Snippets  map[string]string

	// OutputDir receives the artifacts. Nothing is written when empty.
	OutputDir string
	Reports   bool

	// Parallelism bounds the classes generated at once; below 1 means 1.
	Parallelism int

	// Accept filters classes by internal name; nil accepts all.
	Accept func(className string) bool
}

// Output is the result of generating one class.
type Output struct {
	Class       *jvm.Class
	File        string // artifact stem, see naming.ClassFileName
	Artifact    []byte
	Result      *translate.Result
	Trampolines []*jvm.Method
	Report      *report.Report
}

// Generate translates class, injects its trampolines and assembles the
// artifact in memory. index is the position of the class in the run and
// keeps file names unique.
//
// On success the trampolines stay appended to class. On failure class is
// left as it was. Generating an already processed class again yields the
// same artifact.
func Generate(class *jvm.Class, index int, opts Options) (out *Output, err error) {
	ctx := translate.NewClassContext(class, translate.Options{
		NativeDir: opts.NativeDir,
		Snippets:  opts.Snippets,
	})
	res, err := translate.TranslateClass(ctx)
	if err != nil {
		return nil, err
	}
	methods := class.Methods
	trampolines, err := translate.InjectTrampolines(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			class.Methods = methods
		}
	}()

	var buf bytes.Buffer
	b := source.New(&buf, class.Name, index, ctx.Pool)
	c := ctx.Caches
	if err := b.AddHeader(c.Strings.Len(), c.Classes.Len(), c.Methods.Len(), c.Fields.Len()); err != nil {
		return nil, err
	}
	for _, t := range res.Methods {
		if err := b.AddInstructions(t.Code); err != nil {
			return nil, err
		}
	}
	if err := b.RegisterMethods(c.Strings, c.Classes, ctx.Natives, ctx.StaticIface); err != nil {
		return nil, fmt.Errorf("%s: %w", class.Name, err)
	}
	if err := b.Close(); err != nil {
		return nil, err
	}

	out = &Output{
		Class:       class,
		File:        b.Filename(),
		Artifact:    buf.Bytes(),
		Result:      res,
		Trampolines: trampolines,
	}
	out.Report = report.New(ctx, res, trampolines, out.File+ArtifactExt, out.Artifact)
	for _, s := range res.Skipped {
		log.Debugf("%s: left %s%s as bytecode (%s)", class.Name, s.Method.Name, s.Method.Desc, s.Reason)
	}
	return out, nil
}

// Write stores the artifact, and the report when enabled, under dir.
// It returns the number of bytes written.
func (o *Output) Write(dir string, reports bool) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("cannot create %s: %w", dir, err)
	}
	path := filepath.Join(dir, o.File+ArtifactExt)
	if err := os.WriteFile(path, o.Artifact, 0644); err != nil {
		return 0, fmt.Errorf("cannot write %s: %w", path, err)
	}
	n := len(o.Artifact)
	if !reports {
		return n, nil
	}
	data, err := report.Marshal(o.Report)
	if err != nil {
		return n, err
	}
	path = filepath.Join(dir, o.File+ReportExt)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return n, fmt.Errorf("cannot write %s: %w", path, err)
	}
	return n + len(data), nil
}
