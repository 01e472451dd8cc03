// Package ptyengine implements the PTY session engine (C3): spawn, read,
// write, resize, and kill for a single pseudoterminal-backed child
// process, with its own process group.
//
// Reading uses a dedicated goroutine doing blocking 4 KiB reads, since a
// goroutine parked in a blocking read syscall never occupies a cooperative
// scheduler slot the way an un-yielding computation would. Raw chunks are
// handed over a bounded channel to a second, cooperative goroutine (the
// emitter), which decodes them, so a slow or absent subscriber cannot
// stall the PTY itself.
package ptyengine

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/marlowe-finch/corral/internal/decode"
	"github.com/marlowe-finch/corral/internal/errs"
)

const (
	readChunkSize  = 4096
	channelSlots   = 256 // ≈1 MiB ceiling at 4 KiB per slot
	killPollPeriod = 100 * time.Millisecond
	killGrace      = 3 * time.Second
)

// Config describes how to spawn one session.
type Config struct {
	SessionID  uint32
	WorkingDir string
	Env        map[string]string

	// Shell is the command to run; if empty, the login shell $SHELL -l is
	// used, or /bin/sh when SHELL is unset. %COMSPEC% is not consulted.
	Shell string
	Args  []string

	// OnOutput is called with each decoded, non-empty chunk of output, in
	// the order bytes were read from the PTY. It must not block.
	OnOutput func(text string)
}

// Session owns one PTY-backed child process and its process group.
type Session struct {
	id  uint32
	cmd *exec.Cmd
	pid int
	pgid int

	writeMu sync.Mutex
	master  *os.File // nil once the session is torn down
	dead    bool

	chunks chan []byte // reader -> emitter

	readerDone  chan struct{}
	emitterDone chan struct{}
	processDone chan struct{}
}

// Spawn opens a PTY, starts the child inside it, and launches the reader
// and emitter goroutines. The returned Session's PID is available
// immediately; OnOutput fires asynchronously as output arrives.
func Spawn(cfg Config) (*Session, error) {
	shell, args := cfg.Shell, cfg.Args
	if shell == "" {
		shell, args = defaultShell()
	}

	cmd := exec.Command(shell, args...)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = buildEnv(cfg.Env, cfg.SessionID)

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, errs.NewPTYError(errs.SpawnFailed, "pty.Start: %v", err)
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		// Startup succeeded but we couldn't resolve the PGID; fall back to
		// the PID itself since pty.Start places the child in a new session
		// (PGID == PID) on every platform we support.
		pgid = cmd.Process.Pid
	}

	s := &Session{
		id:          cfg.SessionID,
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		pgid:        pgid,
		master:      master,
		chunks:      make(chan []byte, channelSlots),
		readerDone:  make(chan struct{}),
		emitterDone: make(chan struct{}),
		processDone: make(chan struct{}),
	}

	go s.readLoop()
	go s.emitLoop(cfg.OnOutput)
	go s.waitLoop()

	return s, nil
}

// PID returns the child process id.
func (s *Session) PID() int { return s.pid }

// readLoop performs blocking reads from the PTY master and forwards raw
// chunks to the emitter over a bounded channel. EAGAIN/EINTR are retried
// silently; any other error, including EOF, ends the loop.
func (s *Session) readLoop() {
	defer close(s.readerDone)
	defer close(s.chunks)

	buf := make([]byte, readChunkSize)
	for {
		n, err := s.master.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			default:
				// Backpressure: the emitter can't keep up. Terminal output
				// is display-only, so dropping the chunk is preferable to
				// blocking the PTY and starving the child.
				log.Printf("ptyengine: session %d dropped %d bytes (emitter backpressure)", s.id, n)
			}
		}
		if err != nil {
			if isRetryable(err) {
				continue
			}
			return
		}
	}
}

// emitLoop drains raw chunks, decodes them, and invokes onOutput for each
// non-empty decoded string, preserving read order.
func (s *Session) emitLoop(onOutput func(string)) {
	defer close(s.emitterDone)

	var dec decode.Decoder
	for chunk := range s.chunks {
		text := dec.Decode(chunk)
		if text != "" && onOutput != nil {
			onOutput(text)
		}
	}
}

// waitLoop waits for the child to exit and records that fact; callers
// observe exit via ProcessDone().
func (s *Session) waitLoop() {
	s.cmd.Wait()
	close(s.processDone)
}

// ProcessDone returns a channel that is closed once the child process has
// fully exited.
func (s *Session) ProcessDone() <-chan struct{} { return s.processDone }

// Write sends raw bytes to the PTY master unmodified. A write error marks
// the session's writer dead; every subsequent Write or Resize fails fast
// instead of retrying against a master known to be broken.
func (s *Session) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.dead || s.master == nil {
		return errs.NewPTYError(errs.WriteFailed, "session %d: writer is closed", s.id)
	}
	if _, err := s.master.Write(p); err != nil {
		s.dead = true
		return errs.NewPTYError(errs.WriteFailed, "session %d: write: %v", s.id, err)
	}
	return nil
}

// Resize validates the requested dimensions (each must be in [1,500]) and
// issues the platform resize, which propagates SIGWINCH to the child on
// POSIX.
func (s *Session) Resize(rows, cols uint16) error {
	if rows == 0 || cols == 0 || rows > 500 || cols > 500 {
		return errs.NewPTYError(errs.ResizeFailed, "invalid size rows=%d cols=%d", rows, cols)
	}

	s.writeMu.Lock()
	master := s.master
	dead := s.dead
	s.writeMu.Unlock()

	if dead || master == nil {
		return errs.NewPTYError(errs.ResizeFailed, "session %d: pty closed", s.id)
	}
	if err := pty.Setsize(master, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return errs.NewPTYError(errs.ResizeFailed, "session %d: setsize: %v", s.id, err)
	}
	return nil
}

// Kill signals the child's process group with SIGTERM, polls for up to
// killGrace for it to exit, and escalates to SIGKILL if it hasn't. It then
// drops the writer and master handles (which EOFs the reader) and blocks
// until both the reader and the emitter goroutines have exited. That
// final wait has no timeout.
func (s *Session) Kill() error {
	if err := signalGroup(s.pgid, syscall.SIGTERM); err != nil {
		log.Printf("ptyengine: session %d: SIGTERM failed: %v", s.id, err)
	}

	deadline := time.Now().Add(killGrace)
	for time.Now().Before(deadline) {
		if !processAlive(s.pid) {
			break
		}
		time.Sleep(killPollPeriod)
	}
	if processAlive(s.pid) {
		if err := signalGroup(s.pgid, syscall.SIGKILL); err != nil {
			log.Printf("ptyengine: session %d: SIGKILL failed: %v", s.id, err)
		}
	}

	s.writeMu.Lock()
	master := s.master
	s.master = nil
	s.dead = true
	s.writeMu.Unlock()

	if master != nil {
		master.Close()
	}

	// A helper goroutine joins the reader and the emitter; the caller
	// waits for it.
	joined := make(chan struct{})
	go func() {
		<-s.readerDone
		<-s.emitterDone
		close(joined)
	}()
	runtime.Gosched()
	<-joined

	return nil
}

func processAlive(pid int) bool {
	// Signal 0 performs no actual signal delivery; it only checks that the
	// process exists and is signalable.
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}

func signalGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 0 {
		return fmt.Errorf("invalid pgid %d", pgid)
	}
	return syscall.Kill(-pgid, sig)
}

func isRetryable(err error) bool {
	if pe, ok := err.(*os.PathError); ok {
		err = pe.Err
	}
	if errno, ok := err.(syscall.Errno); ok {
		return errno == syscall.EAGAIN || errno == syscall.EINTR
	}
	return false
}

func buildEnv(extra map[string]string, sessionID uint32) []string {
	env := os.Environ()
	env = append(env, "TERM=xterm-256color")
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	env = append(env, fmt.Sprintf("SESSION_ID=%d", sessionID))
	return env
}

func defaultShell() (string, []string) {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell, []string{"-l"}
	}
	return "/bin/sh", nil
}
