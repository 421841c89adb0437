package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/ngen/pkg/jvm"
	"github.com/chazu/ngen/report"
	"github.com/chazu/ngen/translate"
)

func calcClass(name string) *jvm.Class {
	c := &jvm.Class{Name: name, Super: "java/lang/Object", Access: jvm.AccPublic}
	c.AddMethod(&jvm.Method{
		Name: "compute", Desc: "(II)I", Access: jvm.AccPublic | jvm.AccStatic,
		MaxStack: 2, MaxLocals: 2,
		Instructions: []*jvm.Instruction{
			jvm.VarInsn(jvm.ILOAD, 0),
			jvm.VarInsn(jvm.ILOAD, 1),
			jvm.InvokeDynamicInsn("applyAsInt", "(II)I", nil),
			jvm.Insn(jvm.IRETURN),
		},
	})
	c.AddMethod(&jvm.Method{
		Name: "greet", Desc: "()Ljava/lang/String;", Access: jvm.AccPublic | jvm.AccStatic,
		MaxStack: 1,
		Instructions: []*jvm.Instruction{
			jvm.LdcInsn("hello"),
			jvm.Insn(jvm.ARETURN),
		},
	})
	return c
}

func brokenClass(name string) *jvm.Class {
	c := &jvm.Class{Name: name, Super: "java/lang/Object"}
	c.AddMethod(&jvm.Method{
		Name: "f", Desc: "()V", Access: jvm.AccStatic,
		Instructions: []*jvm.Instruction{jvm.JumpInsn(jvm.JSR, 1), jvm.Insn(jvm.RETURN)},
	})
	return c
}

func TestGenerate(t *testing.T) {
	class := calcClass("com/example/Calc")
	out, err := Generate(class, 4, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.File != "com_example_Calc_4" {
		t.Errorf("File = %q", out.File)
	}
	art := string(out.Artifact)
	for _, want := range []string{
		"namespace native_jvm::classes::__ngen_com_example_Calc_4 {",
		"JNIEXPORT jint JNICALL __ngen_0_compute(",
		"JNIEXPORT jobject JNICALL __ngen_1_greet(",
		"void __ngen_register_methods(JNIEnv *env, jclass clazz)",
	} {
		if !strings.Contains(art, want) {
			t.Errorf("artifact missing %q", want)
		}
	}
	if strings.Index(art, "__ngen_0_compute(") > strings.Index(art, "__ngen_1_greet(") {
		t.Error("functions are not in method order")
	}

	if len(out.Trampolines) != 1 || len(class.Methods) != 3 {
		t.Fatalf("trampolines = %d, methods = %d", len(out.Trampolines), len(class.Methods))
	}
	if class.Methods[2] != out.Trampolines[0] {
		t.Error("trampoline not appended to the class")
	}
	if out.Report.File != "com_example_Calc_4.cpp" || len(out.Report.Natives) != 2 {
		t.Errorf("report = %+v", out.Report)
	}
}

func TestGenerateFailure(t *testing.T) {
	class := brokenClass("com/example/Bad")
	_, err := Generate(class, 0, Options{})
	var te *translate.Error
	if !errors.As(err, &te) || !errors.Is(err, translate.ErrUnsupported) {
		t.Fatalf("err = %v, want *translate.Error wrapping ErrUnsupported", err)
	}
	if te.Class != "com/example/Bad" || te.Method != "f()V" {
		t.Errorf("error location = %s %s", te.Class, te.Method)
	}
	if len(class.Methods) != 1 {
		t.Error("failed class was modified")
	}
}

func TestGenerateTwice(t *testing.T) {
	class := calcClass("com/example/Calc")
	first, err := Generate(class, 0, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := Generate(class, 0, Options{})
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !bytes.Equal(first.Artifact, second.Artifact) {
		t.Errorf("artifact changed on the second run:\n%s\n---\n%s", first.Artifact, second.Artifact)
	}
	if len(class.Methods) != 3 || len(second.Trampolines) != 1 || second.Trampolines[0] != first.Trampolines[0] {
		t.Errorf("methods = %d, trampolines = %d", len(class.Methods), len(second.Trampolines))
	}
}

func TestGenerateHonorsOptions(t *testing.T) {
	out, err := Generate(calcClass("A"), 0, Options{
		NativeDir: "org/acme/rt",
		Snippets:  map[string]string{"TRYCATCH": "if (env->ExceptionCheck()) { env->ExceptionDescribe(); $return }"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	art := string(out.Artifact)
	if !strings.Contains(art, "env->ExceptionDescribe();") {
		t.Error("snippet override not applied")
	}
	if !strings.Contains(out.Trampolines[0].Desc, "Lorg/acme/rt/InvokeDynamicPlaceholder;") {
		t.Errorf("trampoline desc = %s", out.Trampolines[0].Desc)
	}
}

func jobsFor(classes ...*jvm.Class) []Job {
	jobs := make([]Job, len(classes))
	for i, c := range classes {
		jobs[i] = Job{Index: i, Class: c}
	}
	return jobs
}

func freshBatch() []Job {
	return jobsFor(
		calcClass("com/example/A"),
		brokenClass("com/example/Bad"),
		calcClass("com/example/B"),
		calcClass("org/other/C"),
		calcClass("com/example/D"),
	)
}

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		OutputDir:   dir,
		Reports:     true,
		Parallelism: 3,
		Accept:      func(name string) bool { return strings.HasPrefix(name, "com/") },
	}
	sum, err := RunAll(context.Background(), freshBatch(), opts)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(sum.Outputs) != 3 || len(sum.Failures) != 1 || len(sum.Filtered) != 1 {
		t.Fatalf("outputs %d failures %d filtered %v", len(sum.Outputs), len(sum.Failures), sum.Filtered)
	}
	if sum.Failures[0].Job.Index != 1 {
		t.Errorf("failure for job %d, want 1", sum.Failures[0].Job.Index)
	}
	if sum.Filtered[0] != "org/other/C" {
		t.Errorf("Filtered = %v", sum.Filtered)
	}
	if _, err := os.Stat(filepath.Join(dir, "com_example_Bad_1"+ArtifactExt)); !os.IsNotExist(err) {
		t.Error("failed class left an artifact")
	}

	total := 0
	for _, out := range sum.Outputs {
		art, err := os.ReadFile(filepath.Join(dir, out.File+ArtifactExt))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(art, out.Artifact) {
			t.Errorf("%s: file differs from output", out.File)
		}
		data, err := os.ReadFile(filepath.Join(dir, out.File+ReportExt))
		if err != nil {
			t.Fatal(err)
		}
		r, err := report.Unmarshal(data)
		if err != nil {
			t.Fatal(err)
		}
		if r.ID != out.Report.ID {
			t.Errorf("%s: report ID mismatch", out.File)
		}
		total += len(art) + len(data)
	}
	if sum.Bytes != total {
		t.Errorf("Bytes = %d, want %d", sum.Bytes, total)
	}
}

func TestRunAllMatchesSequential(t *testing.T) {
	seq, err := RunAll(context.Background(), freshBatch(), Options{Parallelism: 1})
	if err != nil {
		t.Fatal(err)
	}
	par, err := RunAll(context.Background(), freshBatch(), Options{Parallelism: 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(seq.Outputs) != len(par.Outputs) {
		t.Fatalf("outputs %d vs %d", len(seq.Outputs), len(par.Outputs))
	}
	for i := range seq.Outputs {
		if !bytes.Equal(seq.Outputs[i].Artifact, par.Outputs[i].Artifact) {
			t.Errorf("artifact %s differs between runs", seq.Outputs[i].File)
		}
	}
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := RunAll(ctx, freshBatch(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(sum.Outputs) != 0 || len(sum.Failures) != 0 {
		t.Errorf("cancelled run produced %d outputs", len(sum.Outputs))
	}
}

func TestRunAllReadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "Bad.class")
	if err := os.WriteFile(bad, []byte("not a class"), 0644); err != nil {
		t.Fatal(err)
	}
	jobs := []Job{{Index: 0, Path: bad}, {Index: 1, Path: filepath.Join(dir, "Missing.class")}}
	sum, err := RunAll(context.Background(), jobs, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Failures) != 2 {
		t.Fatalf("failures = %v", sum.Failures)
	}
	if !strings.HasPrefix(sum.Failures[0].Error(), bad+": ") {
		t.Errorf("failure message = %q", sum.Failures[0].Error())
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"b/B.class", "a/A.class", "a/notes.txt", "C.class"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	jobs, err := Collect([]string{filepath.Join(dir, "b"), dir, filepath.Join(dir, "C.class")})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []string{"C.class", "a/A.class", "b/B.class"}
	if len(jobs) != len(want) {
		t.Fatalf("jobs = %v", jobs)
	}
	for i, w := range want {
		if jobs[i].Path != filepath.Join(dir, w) || jobs[i].Index != i {
			t.Errorf("job %d = %+v, want %s", i, jobs[i], w)
		}
	}
	if _, err := Collect([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Collect accepted a missing path")
	}
}
