package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const serviceScript = "gaze_service.py"

// maxBacklog is the number of unanswered frames after which the service is
// considered wedged and restarted.
const maxBacklog = 8

// ErrServiceStart is returned when the gaze service does not answer its
// first frame within the start timeout.
var ErrServiceStart = errors.New("gaze service did not start")

// GazeServiceProvider implements Provider using a Python pupil tracking subprocess.
//
// The service answers frames in order, one JSON line each. Replies are paired
// with frames by counting, so a reply that arrives after its frame timed out
// is discarded rather than attributed to a later frame.
type GazeServiceProvider struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	frames    chan []byte
	lines     chan lineResult
	mu        sync.Mutex
	started   bool
	startedAt time.Time
	warm      bool
	sent      uint64
	received  uint64
	stalls    int
	idleTimer *time.Timer
}

type lineResult struct {
	line string
	err  error
}

// NewGazeServiceProvider creates a new gaze service provider.
// The Python process is started lazily on first detection.
func NewGazeServiceProvider(config Config) (*GazeServiceProvider, error) {
	script := config.ScriptPath
	if script == "" {
		script = findServiceScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = def.StartTimeout
	}

	return &GazeServiceProvider{
		config: config,
		script: script,
	}, nil
}

// Detect sends a frame to the service and returns the fused features of both eyes.
// A response that does not arrive within the configured timeout is treated as a miss.
// While the service is still starting up, frames are not sent and every call is a miss.
func (d *GazeServiceProvider) Detect(frame *gocv.Mat) (Features, error) {
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return Features{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return d.detect(buf.GetBytes(), time.Now())
}

func (d *GazeServiceProvider) detect(data []byte, now time.Time) (Features, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(now); err != nil {
		return Features{}, err
	}
	d.resetIdleTimer()

	if !d.warm && d.sent > 0 {
		if err := d.drain(); err != nil {
			return Features{}, err
		}
		if !d.warm {
			if now.Sub(d.startedAt) > d.config.StartTimeout {
				d.shutdown()
				return Features{}, fmt.Errorf("%w within %s", ErrServiceStart, d.config.StartTimeout)
			}
			return Miss(now), nil
		}
	}

	select {
	case d.frames <- append([]byte(nil), data...):
		d.sent++
	default:
		// The service has not consumed the previous frame yet.
		d.stalls++
		if d.stalls > maxBacklog {
			log.Printf("gaze service: not reading frames, restarting")
			d.shutdown()
		}
		return Miss(now), nil
	}

	timer := time.NewTimer(d.config.Timeout)
	defer timer.Stop()

	for {
		select {
		case r, ok := <-d.lines:
			if err := d.accept(r, ok); err != nil {
				return Features{}, err
			}
			if d.received < d.sent {
				continue
			}
			f, err := parseResponse([]byte(r.line), now)
			if err != nil {
				return Features{}, err
			}
			return f, nil
		case <-timer.C:
			if d.sent-d.received > maxBacklog {
				log.Printf("gaze service: %d frames unanswered, restarting", d.sent-d.received)
				d.shutdown()
			}
			return Miss(now), nil
		}
	}
}

// drain consumes replies that are already waiting without blocking.
func (d *GazeServiceProvider) drain() error {
	for {
		select {
		case r, ok := <-d.lines:
			if err := d.accept(r, ok); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// accept counts one reply from the reader goroutine.
func (d *GazeServiceProvider) accept(r lineResult, ok bool) error {
	if !ok {
		d.shutdown()
		return fmt.Errorf("read response: gaze service exited")
	}
	if r.err != nil {
		d.shutdown()
		return fmt.Errorf("read response: %w", r.err)
	}
	d.received++
	d.stalls = 0
	d.warm = true
	return nil
}

// Close shuts down the Python process.
func (d *GazeServiceProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *GazeServiceProvider) ensureStarted(now time.Time) error {
	if d.started {
		return nil
	}

	interpreter := d.config.Interpreter
	if interpreter == "" {
		interpreter = findVenvPython()
	}
	if interpreter == "" {
		interpreter = "python3"
	}

	d.cmd = exec.Command(interpreter, d.script)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start gaze service: %w", err)
	}

	frames := make(chan []byte, 1)
	go writeFrames(stdin, frames)

	lines := make(chan lineResult, maxBacklog)
	go readLines(bufio.NewReader(stdout), lines)

	d.stdin = stdin
	d.frames = frames
	d.lines = lines
	d.started = true
	d.startedAt = now
	d.warm = false
	d.sent, d.received = 0, 0
	d.stalls = 0

	return nil
}

// writeFrames sends each frame as a 4-byte big-endian length followed by the
// JPEG bytes until frames is closed or the pipe breaks.
func writeFrames(w io.Writer, frames <-chan []byte) {
	length := make([]byte, 4)
	for data := range frames {
		binary.BigEndian.PutUint32(length, uint32(len(data)))
		if _, err := w.Write(length); err != nil {
			log.Printf("gaze service: write length: %v", err)
			break
		}
		if _, err := w.Write(data); err != nil {
			log.Printf("gaze service: write frame: %v", err)
			break
		}
	}
	for range frames {
	}
}

// readLines forwards service responses until the pipe closes.
func readLines(r *bufio.Reader, out chan<- lineResult) {
	for {
		line, err := r.ReadString('\n')
		out <- lineResult{line: line, err: err}
		if err != nil {
			close(out)
			return
		}
	}
}

func (d *GazeServiceProvider) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	close(d.frames)
	if d.stdin != nil {
		d.stdin.Close()
	}
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}

	// Drain so the reader goroutine can exit.
	go func(lines chan lineResult) {
		for range lines {
		}
	}(d.lines)

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.frames = nil
	d.lines = nil

	return err
}

func (d *GazeServiceProvider) resetIdleTimer() {
	if d.config.IdleShutdown <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

// serviceResponse is the JSON line emitted by the gaze service for each frame.
type serviceResponse struct {
	Left  *EyeReading `json:"left"`
	Right *EyeReading `json:"right"`
}

func parseResponse(line []byte, ts time.Time) (Features, error) {
	var resp serviceResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return Features{}, fmt.Errorf("parse response: %w", err)
	}

	var left, right EyeReading
	if resp.Left != nil {
		left = *resp.Left
	}
	if resp.Right != nil {
		right = *resp.Right
	}

	return Fuse(left, right, ts), nil
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".gazetrack", "scripts", serviceScript),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".gazetrack/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
