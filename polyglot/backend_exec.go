package polyglot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
)

// execSpec describes how to turn a wrapped source fragment into a running
// child process for one subprocess-backed language (spec §4.7.1): the file
// extension to write it under, an optional compile step, and the command
// that runs it.
type execSpec struct {
	ext     string
	compile func(srcPath, workDir string) *exec.Cmd // nil if interpreted directly
	run     func(srcOrBinPath string) *exec.Cmd
}

var execSpecs = map[string]execSpec{
	"python": {ext: ".py", run: func(p string) *exec.Cmd { return exec.Command("python3", p) }},
	"ruby":   {ext: ".rb", run: func(p string) *exec.Cmd { return exec.Command("ruby", p) }},
	"shell":  {ext: ".sh", run: func(p string) *exec.Cmd { return exec.Command("sh", p) }},
	"bash":   {ext: ".sh", run: func(p string) *exec.Cmd { return exec.Command("bash", p) }},
	"cpp": {
		ext: ".cpp",
		compile: func(src, dir string) *exec.Cmd {
			return exec.Command("g++", "-O2", "-o", filepath.Join(dir, "a.out"), src)
		},
		run: func(bin string) *exec.Cmd { return exec.Command(bin) },
	},
	"rust": {
		ext: ".rs",
		compile: func(src, dir string) *exec.Cmd {
			return exec.Command("rustc", "-O", "-o", filepath.Join(dir, "a.out"), src)
		},
		run: func(bin string) *exec.Cmd { return exec.Command(bin) },
	},
	"go": {ext: ".go", run: func(p string) *exec.Cmd { return exec.Command("go", "run", p) }},
	"csharp": {
		ext: ".cs",
		compile: func(src, dir string) *exec.Cmd {
			return exec.Command("csc", "-out:"+filepath.Join(dir, "a.exe"), src)
		},
		run: func(bin string) *exec.Cmd { return exec.Command("mono", bin) },
	},
}

// SubprocessBackend runs a source fragment in a freshly spawned child per
// call, per spec §4.7.1's "Subprocess" embedding strategy.
type SubprocessBackend struct {
	Language string
	workDir  string
}

// NewSubprocessBackend builds a backend for language if a known execSpec
// exists for it.
func NewSubprocessBackend(language, workDir string) (*SubprocessBackend, error) {
	if _, ok := execSpecs[language]; !ok {
		return nil, naaberr.Newf(naaberr.PolyglotError, "no subprocess backend known for language %q", language)
	}
	return &SubprocessBackend{Language: language, workDir: workDir}, nil
}

func (b *SubprocessBackend) Initialize() error {
	if b.workDir == "" {
		b.workDir = os.TempDir()
	}
	return os.MkdirAll(b.workDir, 0o755)
}

func (b *SubprocessBackend) Shutdown() error { return nil }

func (b *SubprocessBackend) Execute(ctx context.Context, block Block, captured []Captured) error {
	_, err := b.run(ctx, block, captured, false)
	return err
}

func (b *SubprocessBackend) ExecuteWithResult(ctx context.Context, block Block, captured []Captured) (value.Value, error) {
	stdout, err := b.run(ctx, block, captured, true)
	if err != nil {
		return nil, err
	}
	return ParseReturnValue(stdout)
}

// run writes the wrapped source (see wrapFragment) to a scratch dir,
// compiles it if the language needs that, runs it with captured values
// injected as NAAB_CAP_<name> environment variables (spec §4.7.2), and
// enforces the context deadline by signalling the child process on expiry
// (see gracefulKill).
func (b *SubprocessBackend) run(ctx context.Context, block Block, captured []Captured, wantResult bool) (string, error) {
	spec := execSpecs[b.Language]

	prologue, err := buildPrologue(b.Language, captured)
	if err != nil {
		return "", err
	}
	source := wrapFragment(b.Language, block.Source, prologue, wantResult)

	dir, err := os.MkdirTemp(b.workDir, "naab-"+block.BlockID+"-")
	if err != nil {
		return "", naaberr.New(naaberr.IOError, "creating polyglot scratch dir", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "fragment"+spec.ext)
	if err := os.WriteFile(srcPath, []byte(source), 0o600); err != nil {
		return "", naaberr.New(naaberr.IOError, "writing polyglot fragment", err)
	}

	runTarget := srcPath
	if spec.compile != nil {
		cc := spec.compile(srcPath, dir)
		cc.Dir = dir
		var stderr bytes.Buffer
		cc.Stderr = &stderr
		if err := cc.Run(); err != nil {
			return "", naaberr.NewPolyglot(naaberr.PolyglotSyntax, fmt.Sprintf("%s compile error: %s", b.Language, stderr.String()), err)
		}
		runTarget = filepath.Join(dir, "a.out")
		if b.Language == "csharp" {
			runTarget = filepath.Join(dir, "a.exe")
		}
	}

	cmd := spec.run(runTarget)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for _, c := range captured {
		marshaled, err := MarshalCaptured(c.Value)
		if err != nil {
			return "", err
		}
		cmd.Env = append(cmd.Env, "NAAB_CAP_"+c.Name+"="+marshaled)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", naaberr.NewPolyglot(naaberr.PolyglotRuntime, "starting "+b.Language+" process: "+err.Error(), err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		gracefulKill(cmd, done)
		return "", context.DeadlineExceeded
	case err := <-done:
		if err != nil {
			return "", naaberr.NewPolyglot(naaberr.PolyglotRuntime, fmt.Sprintf("%s runtime error: %s", b.Language, stderr.String()), err)
		}
		return stdout.String(), nil
	}
}

// gracefulKill sends SIGTERM and waits up to a grace interval for the child
// to exit on its own before SIGKILL, per spec §5's "subprocess backends
// receive SIGTERM then SIGKILL after a grace interval". It blocks until the
// process has actually exited so the caller never leaves a zombie behind.
func gracefulKill(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}
