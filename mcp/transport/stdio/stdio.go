// Package stdio implements the subprocess binding of the MCP transport.
// It spawns a local capability-server process and frames JSON-RPC messages
// over its standard input/output, one message per line.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcp/transport"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/mcp/transport", "stdio")

// DefaultCredentialEnvVar is the environment variable used to pass the
// bearer token to the child process when no override is configured.
const DefaultCredentialEnvVar = "MCP_ACCESS_TOKEN"

// scannerBufferSize bounds a single framed message; tool results can carry
// large payloads, so the default bufio limit is far too small.
const scannerBufferSize = 4 * 1024 * 1024

const closeGracePeriod = 5 * time.Second

// Transport talks to a capability server spawned as a child process.
// The child's lifetime is owned by the transport: every exit path of Close
// reaps the process, so no handle outlives the connection.
type Transport struct {
	command string
	args    []string
	env     []string

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

var _ transport.Transport = (*Transport)(nil)

// New creates a subprocess transport for the given command line.
func New(command string, args ...string) *Transport {
	return &Transport{
		command: command,
		args:    args,
		done:    make(chan struct{}),
	}
}

// WithCredential injects the access token into the child's environment under
// envVar (DefaultCredentialEnvVar when empty). The token is scoped to the
// child process and never written to disk or logs.
func (t *Transport) WithCredential(envVar, token string) *Transport {
	if envVar == "" {
		envVar = DefaultCredentialEnvVar
	}
	if token != "" {
		t.env = append(t.env, envVar+"="+token)
	}
	return t
}

// WithEnv adds an extra environment variable for the child process.
func (t *Transport) WithEnv(key, value string) *Transport {
	t.env = append(t.env, key+"="+value)
	return t
}

// Start spawns the child process and begins reading its stdout.
func (t *Transport) Start(ctx context.Context) error {
	if t.cmd != nil {
		return errors.New("transport already started")
	}

	cmd := exec.Command(t.command, t.args...)
	cmd.Env = append(os.Environ(), t.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %q", t.command)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout

	logger.KV(xlog.DEBUG,
		"command", t.command,
		"pid", cmd.Process.Pid,
		"env", llmutils.RedactEnv(t.env),
	)

	go t.readLoop(ctx)
	go t.drainStderr(stderr)

	return nil
}

// Send writes one framed message to the child's stdin.
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	select {
	case <-t.done:
		return errors.New("transport closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write to subprocess")
	}
	return nil
}

// Close terminates the child process. The process is always reaped: stdin is
// closed to let it exit cleanly, and it is killed after a grace period.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		if t.stdin != nil {
			_ = t.stdin.Close()
		}

		if t.cmd != nil && t.cmd.Process != nil {
			waited := make(chan error, 1)
			go func() { waited <- t.cmd.Wait() }()
			select {
			case <-waited:
			case <-time.After(closeGracePeriod):
				logger.KV(xlog.WARNING,
					"reason", "kill_after_grace_period",
					"command", t.command,
					"pid", t.cmd.Process.Pid,
				)
				_ = t.cmd.Process.Kill()
				<-waited
			}
		}

		t.mu.RLock()
		closeHandler := t.closeHandler
		t.mu.RUnlock()
		if closeHandler != nil {
			closeHandler()
		}
	})
	return nil
}

// Pid returns the child process id, or 0 before Start.
func (t *Transport) Pid() int {
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// SetCloseHandler implements transport.Transport.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements transport.Transport.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

func (t *Transport) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		message, err := transport.ParseMessage(line)
		if err != nil {
			t.handleError(errors.Wrap(err, "failed to parse message from subprocess"))
			continue
		}

		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(ctx, message)
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-t.done:
			// expected during Close
		default:
			t.handleError(errors.Wrap(err, "subprocess stdout read failed"))
		}
	}
	_ = t.Close()
}

func (t *Transport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logger.KV(xlog.DEBUG,
			"command", t.command,
			"stderr", scanner.Text(),
		)
	}
}

func (t *Transport) handleError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}
