package dispatcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Job is a running upload.
type Job interface {
	PID() int
	// Done is closed when the job exits.
	Done() <-chan struct{}
	// Err is the exit error, valid once Done is closed.
	Err() error
}

// Launcher starts uploads and builders.
type Launcher interface {
	// Upload starts "upload <src>" with combined output written to logPath.
	Upload(ctx context.Context, src, logPath string) (Job, error)
	// Builds reports whether src has a builder run after its upload.
	Builds(src string) bool
	// Build runs the builder of src to completion.
	Build(ctx context.Context, src string) error
}

// ExecLauncher runs subprocesses.
type ExecLauncher struct {
	// UploadCommand is prefixed to the source name, e.g. ["biohub", "upload"].
	UploadCommand []string
	// BuildCommands maps a source to the command building from it.
	BuildCommands map[string][]string
	// Dir is the working directory of every subprocess.
	Dir string
}

type execJob struct {
	cmd  *exec.Cmd
	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (j *execJob) PID() int { return j.cmd.Process.Pid }

func (j *execJob) Done() <-chan struct{} { return j.done }

func (j *execJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Upload implements Launcher.
func (l *ExecLauncher) Upload(ctx context.Context, src, logPath string) (Job, error) {
	if len(l.UploadCommand) == 0 {
		return nil, fmt.Errorf("no upload command configured")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload log: %w", err)
	}
	args := append(append([]string(nil), l.UploadCommand[1:]...), src)
	cmd := exec.CommandContext(ctx, l.UploadCommand[0], args...)
	cmd.Dir = l.Dir
	cmd.Stdout = f
	cmd.Stderr = f
	if err := cmd.Start(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to start upload of %s: %w", src, err)
	}
	j := &execJob{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		f.Close()
		j.mu.Lock()
		j.err = err
		j.mu.Unlock()
		close(j.done)
	}()
	return j, nil
}

// Build implements Launcher. Output goes to the dispatcher's own stdout.
func (l *ExecLauncher) Build(ctx context.Context, src string) error {
	argv, ok := l.BuildCommands[src]
	if !ok || len(argv) == 0 {
		return fmt.Errorf("no builder for %s", src)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = l.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Builds implements Launcher.
func (l *ExecLauncher) Builds(src string) bool {
	return len(l.BuildCommands[src]) > 0
}
