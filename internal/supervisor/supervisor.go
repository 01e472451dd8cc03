// Package supervisor is the facade (C10) that wires the PTY engine,
// session registry, worktree orchestrator, config writer, status ingress,
// and event bus into the named command surface the frontend calls. The
// supervisor lives in the same process as its caller, so this facade is a
// set of exported Go methods rather than a socket protocol.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/marlowe-finch/corral/internal/configwriter"
	"github.com/marlowe-finch/corral/internal/errs"
	"github.com/marlowe-finch/corral/internal/eventbus"
	"github.com/marlowe-finch/corral/internal/ingress"
	"github.com/marlowe-finch/corral/internal/proctree"
	"github.com/marlowe-finch/corral/internal/ptyengine"
	"github.com/marlowe-finch/corral/internal/session"
	"github.com/marlowe-finch/corral/internal/worktree"
)

// Supervisor owns every long-lived piece of corral's backend for one
// desktop-app process.
type Supervisor struct {
	instanceID      string
	baseWorktreeDir string
	sidecarPath     string

	registry *session.Registry
	bus      *eventbus.Bus
	ingress  *ingress.Server

	mu   sync.Mutex
	ptys map[uint32]*ptyengine.Session
}

// New constructs a Supervisor, binds its status ingress, and discovers
// the sidecar binary. baseWorktreeDir overrides worktree.DataDir when
// non-empty (tests pass a temp directory here).
func New(baseWorktreeDir string) (*Supervisor, error) {
	instanceID := uuid.NewString()
	bus := eventbus.New()
	ing := ingress.New(instanceID, bus)
	if err := ing.Start(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("supervisor: starting ingress: %w", err)
	}

	if baseWorktreeDir == "" {
		dir, err := worktree.DataDir()
		if err != nil {
			ing.Shutdown(context.Background())
			bus.Close()
			return nil, err
		}
		baseWorktreeDir = dir
	}

	return &Supervisor{
		instanceID:      instanceID,
		baseWorktreeDir: baseWorktreeDir,
		sidecarPath:     discoverSidecarPath(),
		registry:        session.New(),
		bus:             bus,
		ingress:         ing,
		ptys:            make(map[uint32]*ptyengine.Session),
	}, nil
}

// Bus returns the event bus the frontend subscribes to for
// pty-output-{id} and session-status-changed events.
func (s *Supervisor) Bus() *eventbus.Bus { return s.bus }

// Shutdown kills every running session and releases the ingress and bus.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.KillAllSessions()
	if err := s.ingress.Shutdown(ctx); err != nil {
		return err
	}
	return s.bus.Close()
}

// --- spawn_shell / write_stdin / resize_pty / kill_session / kill_all_sessions ---

// SpawnShell allocates a session id, starts a login shell inside a PTY at
// cwd, and returns the new id. The shell's decoded output is published on
// eventbus.PTYOutputTopic(id).
func (s *Supervisor) SpawnShell(project, cwd string, env map[string]string) (uint32, error) {
	id, err := s.registry.NextID()
	if err != nil {
		return 0, err
	}
	if _, err := s.registry.Create(id, project); err != nil {
		return 0, err
	}

	pty, err := ptyengine.Spawn(ptyengine.Config{
		SessionID:  id,
		WorkingDir: cwd,
		Env:        env,
		OnOutput: func(text string) {
			s.bus.Publish(eventbus.PTYOutputTopic(id), text)
		},
	})
	if err != nil {
		s.registry.Remove(id)
		return 0, err
	}

	s.mu.Lock()
	s.ptys[id] = pty
	s.mu.Unlock()

	s.registry.UpdateStatus(id, session.StateIdle, "")
	return id, nil
}

// WriteStdin sends text to session id's PTY.
func (s *Supervisor) WriteStdin(id uint32, text string) error {
	pty := s.lookupPTY(id)
	if pty == nil {
		return errs.NewPTYError(errs.SessionNotFound, "session %d not found", id)
	}
	return pty.Write([]byte(text))
}

// ResizePTY resizes session id's PTY.
func (s *Supervisor) ResizePTY(id uint32, rows, cols uint16) error {
	pty := s.lookupPTY(id)
	if pty == nil {
		return errs.NewPTYError(errs.SessionNotFound, "session %d not found", id)
	}
	return pty.Resize(rows, cols)
}

// KillSession tears down one session. It removes the session from the
// registry and the live PTY map *before* signaling the OS (§3, §4.3), so a
// concurrent second call for the same id observes SessionNotFound instead
// of racing to kill an already-dying process. Steps after that point are
// best-effort; failures are logged, not returned, matching §7's policy for
// non-final teardown steps.
func (s *Supervisor) KillSession(id uint32) error {
	info := s.sessionInfo(id)

	s.mu.Lock()
	pty, ok := s.ptys[id]
	if ok {
		delete(s.ptys, id)
	}
	s.mu.Unlock()
	if !ok {
		return errs.NewPTYError(errs.SessionNotFound, "session %d not found", id)
	}
	s.registry.Remove(id)

	if err := pty.Kill(); err != nil {
		return err
	}

	s.ingress.UnregisterSession(id)
	if info != nil && info.WorkingDir != "" {
		if err := configwriter.RemoveSidecarEntry(info.WorkingDir); err != nil {
			logTeardownFailure(id, "remove config entry", err)
		}
	}
	return nil
}

// KillAllSessions kills every currently registered session and returns
// how many were killed.
func (s *Supervisor) KillAllSessions() int {
	n := 0
	for _, info := range s.registry.All() {
		if s.KillSession(info.ID) == nil {
			n++
		}
	}
	return n
}

// --- process trees ---

// GetAllProcessTrees returns the process tree rooted at each running
// session's PID.
func (s *Supervisor) GetAllProcessTrees() ([]proctree.Tree, error) {
	s.mu.Lock()
	snapshot := make(map[uint32]int, len(s.ptys))
	for id, pty := range s.ptys {
		snapshot[id] = pty.PID()
	}
	s.mu.Unlock()

	trees := make([]proctree.Tree, 0, len(snapshot))
	for id, pid := range snapshot {
		procs, err := proctree.Snapshot(pid)
		if err != nil {
			return nil, err
		}
		trees = append(trees, proctree.Tree{SessionID: id, RootPID: pid, Processes: procs})
	}
	return trees, nil
}

// KillProcess kills a single process, refusing any pid that is a known
// session root (those must go through KillSession).
func (s *Supervisor) KillProcess(pid int) error {
	s.mu.Lock()
	for _, pty := range s.ptys {
		if pty.PID() == pid {
			s.mu.Unlock()
			return errs.NewPTYError(errs.KillFailed, "pid %d is a session root; use kill_session", pid)
		}
	}
	s.mu.Unlock()
	return proctree.Kill(pid)
}

// --- worktree orchestration ---

// PrepareSessionWorktree derives and prepares the managed worktree for
// (project, branch).
func (s *Supervisor) PrepareSessionWorktree(ctx context.Context, project, branch string) (worktree.Result, error) {
	canonical := project
	if abs, err := filepath.Abs(project); err == nil {
		canonical = abs
	}
	return worktree.Prepare(ctx, s.baseWorktreeDir, canonical, branch)
}

// CleanupSessionWorktree removes a previously prepared worktree.
func (s *Supervisor) CleanupSessionWorktree(ctx context.Context, project, worktreePath string) bool {
	if err := worktree.Remove(ctx, project, worktreePath); err != nil {
		logTeardownFailure(0, "remove worktree "+worktreePath, err)
		return false
	}
	return true
}

// --- session registry passthroughs ---

func (s *Supervisor) CreateSession(project string) (uint32, error) {
	id, err := s.registry.NextID()
	if err != nil {
		return 0, err
	}
	if _, err := s.registry.Create(id, project); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Supervisor) UpdateSessionStatus(id uint32, state session.State, needsInputPrompt string) error {
	return s.registry.UpdateStatus(id, state, needsInputPrompt)
}

func (s *Supervisor) AssignSessionBranch(id uint32, branch, workingDir string) error {
	return s.registry.AssignBranch(id, branch, workingDir)
}

func (s *Supervisor) RemoveSession(id uint32) {
	s.registry.Remove(id)
}

func (s *Supervisor) GetSessionsForProject(project string) []session.Info {
	return s.registry.FilterByProject(project)
}

func (s *Supervisor) RemoveSessionsForProject(project string) []session.Info {
	return s.registry.RemoveAllForProject(project)
}

// --- sidecar config ---

func (s *Supervisor) WriteSessionMCPConfig(workingDir string, sessionID uint32, extras map[string]string) error {
	return configwriter.WriteSidecarEntry(workingDir, sessionID, s.sidecarPath, s.ingress.URL(), s.instanceID, extras)
}

func (s *Supervisor) RemoveSessionMCPConfig(workingDir string) error {
	return configwriter.RemoveSidecarEntry(workingDir)
}

// StatusServerInfo answers get_status_server_info.
type StatusServerInfo struct {
	Port        int    `json:"port"`
	StatusURL   string `json:"status_url"`
	InstanceID  string `json:"instance_id"`
	SidecarPath string `json:"sidecar_path,omitempty"`
}

func (s *Supervisor) GetStatusServerInfo() StatusServerInfo {
	return StatusServerInfo{
		Port:        s.ingress.Port(),
		StatusURL:   s.ingress.URL(),
		InstanceID:  s.instanceID,
		SidecarPath: s.sidecarPath,
	}
}

// --- aggregate launch/teardown (the §4.10 sequence) ---

// LaunchResult is the outcome of LaunchSession.
type LaunchResult struct {
	SessionID        uint32
	WorkingDirectory string
	WorktreePath     string
	Created          bool
	Warning          string
}

// LaunchSession runs the full session-launching sequence: canonicalize,
// prepare the worktree, write the sidecar config, register ingress
// routing, spawn the shell, and record the session.
func (s *Supervisor) LaunchSession(ctx context.Context, project, branch string, env, extras map[string]string) (LaunchResult, error) {
	canonical := project
	if abs, err := filepath.Abs(project); err == nil {
		canonical = abs
	}

	id, err := s.registry.NextID()
	if err != nil {
		return LaunchResult{}, err
	}

	wtResult, err := worktree.Prepare(ctx, s.baseWorktreeDir, canonical, branch)
	if err != nil {
		return LaunchResult{}, err
	}

	if err := configwriter.WriteSidecarEntry(wtResult.WorkingDirectory, id, s.sidecarPath, s.ingress.URL(), s.instanceID, extras); err != nil {
		return LaunchResult{}, err
	}

	s.ingress.RegisterSession(id, canonical)

	pty, err := ptyengine.Spawn(ptyengine.Config{
		SessionID:  id,
		WorkingDir: wtResult.WorkingDirectory,
		Env:        env,
		OnOutput: func(text string) {
			s.bus.Publish(eventbus.PTYOutputTopic(id), text)
		},
	})
	if err != nil {
		s.ingress.UnregisterSession(id)
		configwriter.RemoveSidecarEntry(wtResult.WorkingDirectory)
		return LaunchResult{}, err
	}

	s.mu.Lock()
	s.ptys[id] = pty
	s.mu.Unlock()

	if _, err := s.registry.Create(id, canonical); err != nil {
		pty.Kill()
		return LaunchResult{}, err
	}
	s.registry.AssignBranch(id, branch, wtResult.WorkingDirectory)
	s.registry.UpdateStatus(id, session.StateIdle, "")

	return LaunchResult{
		SessionID:        id,
		WorkingDirectory: wtResult.WorkingDirectory,
		WorktreePath:     wtResult.WorktreePath,
		Created:          wtResult.Created,
		Warning:          wtResult.Warning,
	}, nil
}

// TeardownSession tears a launched session down through KillSession:
// registry record, PTY, ingress routing, and sidecar config entry. The
// worktree LaunchSession prepared is left in place; CleanupSessionWorktree
// removes it.
func (s *Supervisor) TeardownSession(ctx context.Context, id uint32) error {
	return s.KillSession(id)
}

// --- helpers ---

func (s *Supervisor) lookupPTY(id uint32) *ptyengine.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptys[id]
}

func (s *Supervisor) sessionInfo(id uint32) *session.Info {
	for _, info := range s.registry.All() {
		if info.ID == id {
			return &info
		}
	}
	return nil
}

func logTeardownFailure(id uint32, step string, err error) {
	if id != 0 {
		log.Printf("supervisor: session %d teardown step %q failed: %v", id, step, err)
		return
	}
	log.Printf("supervisor: teardown step %q failed: %v", step, err)
}

// discoverSidecarPath searches the fixed candidate list §4.7 describes:
// next to the current executable, a macOS app-bundle Resources sibling,
// development build output siblings, and per-platform application-data
// directories. Returns "" if none exist; a session can still launch, it
// simply won't carry the report_status tool.
func discoverSidecarPath() string {
	name := "corral-sidecar"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	exeDir := filepath.Dir(exe)

	candidates := []string{
		filepath.Join(exeDir, name),
		filepath.Join(exeDir, "..", "Resources", name),
		filepath.Join(exeDir, "..", "..", "target", "release", name),
		filepath.Join(exeDir, "..", "..", "target", "debug", name),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".local", "share", "corral", name),
			filepath.Join(home, "Library", "Application Support", "corral", name),
		)
	}

	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c
		}
	}
	return ""
}
