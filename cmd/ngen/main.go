// ngen translates compiled JVM classes into JNI C++ sources.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/chazu/ngen/manifest"
	"github.com/chazu/ngen/pipeline"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	configPath := flag.String("config", "", "Path to the configuration file (default: nearest ngen.toml)")
	outDir := flag.String("o", "", "Output directory (overrides [output] dir)")
	jobs := flag.Int("j", 0, "Classes generated in parallel (overrides [build] parallelism)")
	noReport := flag.Bool("no-report", false, "Do not write .ngen side-car reports")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ngen [options] paths...\n\n")
		fmt.Fprintf(os.Stderr, "Translates .class files (or directories of them) into JNI C++ sources.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ngen build/classes              # Translate every class, output to ./native\n")
		fmt.Fprintf(os.Stderr, "  ngen -o jni -j 4 Main.class     # One class, four workers\n")
		fmt.Fprintf(os.Stderr, "  ngen -config ci/ngen.toml out/  # Explicit configuration\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	m, err := loadManifest(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := pipeline.Options{
		NativeDir:   m.Native.Dir,
		Snippets:    m.Snippets,
		OutputDir:   m.OutputDir(),
		Reports:     m.WriteReports() && !*noReport,
		Parallelism: m.Build.Parallelism,
		Accept:      m.Accepts,
	}
	if *outDir != "" {
		opts.OutputDir = *outDir
	}
	if *jobs > 0 {
		opts.Parallelism = *jobs
	}

	list, err := pipeline.Collect(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Printf("Found %d class files, output to %s\n", len(list), opts.OutputDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	sum, err := pipeline.RunAll(ctx, list, opts)

	methods, trampolines := 0, 0
	for _, out := range sum.Outputs {
		methods += len(out.Result.Methods)
		trampolines += len(out.Trampolines)
	}
	fmt.Printf("Generated %d classes (%d native methods, %d trampolines), %s written\n",
		len(sum.Outputs), methods, trampolines, humanize.Bytes(uint64(sum.Bytes)))
	if len(sum.Filtered) > 0 {
		fmt.Printf("Filtered %d classes\n", len(sum.Filtered))
	}
	for _, f := range sum.Failures {
		fmt.Fprintf(os.Stderr, "Error: %v\n", f)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(sum.Failures) > 0 {
		os.Exit(1)
	}
}

// loadManifest reads the explicit configuration file, else the nearest
// ngen.toml above the working directory, else the defaults.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		m = manifest.Default(wd)
	}
	return m, nil
}
