package kernel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// processTransport speaks newline-delimited jsonrpc with a kernel child
// process. A reader goroutine routes responses to waiting calls by
// envelope id, so calls can complete out of order.
type processTransport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan response

	done     chan struct{}
	doneOnce sync.Once
}

func startProcess(command string, timeout time.Duration) (*processTransport, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty kernel command")
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("kernel stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("kernel stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("kernel stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start kernel %q: %w", command, err)
	}
	logrus.WithFields(logrus.Fields{
		"command": command,
		"pid":     cmd.Process.Pid,
	}).Info("kernel process started")

	t := newPipeTransport(stdin, stdout, timeout)
	t.cmd = cmd
	go t.logStderr(stderr)
	return t, nil
}

// newPipeTransport runs the jsonrpc stream over arbitrary pipes. Separate
// from startProcess so the response routing works without a real child
// process.
func newPipeTransport(stdin io.WriteCloser, stdout io.Reader, timeout time.Duration) *processTransport {
	t := &processTransport{
		stdin:   stdin,
		timeout: timeout,
		pending: make(map[uint64]chan response),
		done:    make(chan struct{}),
	}
	go t.readLoop(stdout)
	return t
}

func (t *processTransport) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	t.mu.Lock()
	if t.pending == nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("%s: kernel process is gone", method)
	}
	t.nextID++
	id := t.nextID
	ch := make(chan response, 1)
	t.pending[id] = ch
	t.mu.Unlock()

	b, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		t.drop(id)
		return nil, fmt.Errorf("%s: encode request: %w", method, err)
	}
	b = append(b, '\n')

	t.writeMu.Lock()
	_, err = t.stdin.Write(b)
	t.writeMu.Unlock()
	if err != nil {
		t.drop(id)
		return nil, fmt.Errorf("%s: write to kernel: %w", method, err)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		t.drop(id)
		return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
	case <-ctx.Done():
		t.drop(id)
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	case <-t.done:
		return nil, fmt.Errorf("%s: kernel process exited", method)
	}
}

func (t *processTransport) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	// topology sized results need room
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			logrus.Errorf("kernel: undecodable response line: %v", err)
			continue
		}
		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		delete(t.pending, resp.ID)
		t.mu.Unlock()
		if !ok {
			logrus.Debugf("kernel: response id %d has no waiter", resp.ID)
			continue
		}
		ch <- resp
	}
	if err := scanner.Err(); err != nil {
		logrus.Errorf("kernel: stdout read: %v", err)
	}
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *processTransport) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logrus.WithField("stream", "kernel-stderr").Debug(scanner.Text())
	}
}

func (t *processTransport) drop(id uint64) {
	t.mu.Lock()
	if t.pending != nil {
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

// close terminates the kernel. Closing stdin asks it to exit, after a
// grace period it is killed.
func (t *processTransport) close() error {
	err := t.stdin.Close()
	select {
	case <-t.done:
	case <-time.After(3 * time.Second):
		if t.cmd != nil && t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
	}
	if t.cmd != nil {
		if werr := t.cmd.Wait(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}
