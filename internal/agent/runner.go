package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Runner applies one instruction to the project and returns once the
// coding agent has finished.
type Runner interface {
	Run(ctx context.Context, instruction string) error
}

// Event is one line of the agent's streamed JSON output.
type Event struct {
	Type    string
	Content string
	Raw     map[string]any
}

// DefaultArgs runs the agent non-interactively with streamed JSON output.
// The instruction is substituted for {instruction}.
var DefaultArgs = []string{
	"--print", "{instruction}",
	"--output-format", "stream-json",
	"--verbose",
	"--dangerously-skip-permissions",
}

// CommandRunner runs an external agent command once per instruction. Runs
// are serialised.
type CommandRunner struct {
	Path string
	Args []string
	Dir  string
	// PTY attaches the command to a pseudo-terminal instead of a pipe.
	PTY     bool
	Log     *zap.Logger
	OnEvent func(Event)

	mu sync.Mutex
}

// ExitError reports a non-zero exit from the agent command.
type ExitError struct {
	Path string
	Err  error
}

func (e *ExitError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *ExitError) Unwrap() error { return e.Err }

func (r *CommandRunner) args(instruction string) []string {
	src := r.Args
	if len(src) == 0 {
		src = DefaultArgs
	}
	out := make([]string, len(src))
	for i, a := range src {
		out[i] = strings.ReplaceAll(a, "{instruction}", instruction)
	}
	return out
}

func (r *CommandRunner) Run(ctx context.Context, instruction string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	cmd := exec.CommandContext(ctx, r.Path, r.args(instruction)...)
	cmd.Dir = r.Dir
	cmd.Env = os.Environ()

	var out io.ReadCloser
	if r.PTY {
		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 120, Rows: 40})
		if err != nil {
			return fmt.Errorf("start %s: %w", r.Path, err)
		}
		out = ptmx
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start %s: %w", r.Path, err)
		}
		out = stdout
	}
	log.Info("agent started", zap.String("path", r.Path), zap.Int("instruction_bytes", len(instruction)))

	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		ev, err := ParseEvent(sc.Text())
		if err != nil {
			log.Debug("skipping agent output", zap.String("line", sc.Text()))
			continue
		}
		log.Debug("agent event", zap.String("type", ev.Type), zap.String("content", ev.Content))
		if r.OnEvent != nil {
			r.OnEvent(ev)
		}
	}
	if err := sc.Err(); err != nil && !isPTYEOF(err) {
		log.Warn("reading agent output", zap.Error(err))
	}
	if r.PTY {
		_ = out.Close()
	}

	if err := cmd.Wait(); err != nil {
		log.Error("agent failed", zap.Error(err))
		return &ExitError{Path: r.Path, Err: err}
	}
	log.Info("agent finished")
	return nil
}

// isPTYEOF reports the EIO a pty master returns once the child exits.
func isPTYEOF(err error) bool {
	var pe *os.PathError
	return errors.As(err, &pe) && strings.Contains(pe.Err.Error(), "input/output error")
}

// ParseEvent decodes one stream-json line.
func ParseEvent(line string) (Event, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return Event{}, errors.New("not a json object")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Event{}, err
	}
	typ, ok := raw["type"].(string)
	if !ok {
		return Event{}, errors.New("missing type")
	}
	ev := Event{Type: typ, Raw: raw}
	switch typ {
	case "content", "tool_result":
		ev.Content, _ = raw["content"].(string)
	case "tool_use":
		ev.Content, _ = raw["name"].(string)
	case "error":
		ev.Content, _ = raw["error"].(string)
	}
	return ev, nil
}

// LogRunner only logs instructions. It backs dry runs and tests.
type LogRunner struct {
	Log *zap.Logger
	Err error

	mu   sync.Mutex
	runs []string
}

func (r *LogRunner) Run(_ context.Context, instruction string) error {
	r.mu.Lock()
	r.runs = append(r.runs, instruction)
	r.mu.Unlock()
	if r.Log != nil {
		r.Log.Info("instruction", zap.String("text", instruction))
	}
	return r.Err
}

// Runs returns the instructions received so far.
func (r *LogRunner) Runs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}
