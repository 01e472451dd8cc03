// corralctl attaches an interactive terminal directly to a freshly
// spawned corral shell session, for manual testing of the PTY engine
// without the desktop frontend. corral's supervisor lives in the same
// process as its caller (no daemon, no socket), so corralctl simply spawns
// its own Supervisor and wires stdio straight to it.
//
// Usage:
//
//	corralctl [dir]
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/marlowe-finch/corral/internal/eventbus"
	"github.com/marlowe-finch/corral/internal/supervisor"
)

func main() {
	dir := "."
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	abs, err := fileAbs(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corralctl: %v\n", err)
		os.Exit(1)
	}

	sup, err := supervisor.New("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "corralctl: %v\n", err)
		os.Exit(1)
	}

	id, err := sup.SpawnShell(abs, abs, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corralctl: spawn: %v\n", err)
		os.Exit(1)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corralctl: cannot set raw mode: %v\n", err)
		os.Exit(1)
	}
	restore := func() { term.Restore(fd, oldState) }
	defer restore()

	fmt.Fprintf(os.Stdout, "\r\n[corralctl] attached to session %d  (detach: Ctrl-])\r\n", id)

	done := make(chan struct{}, 1)
	signalDone := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	unsub := sup.Bus().Subscribe(eventbus.PTYOutputTopic(id), func(e eventbus.Event) {
		os.Stdout.WriteString(e.Payload.(string))
	})
	defer unsub()

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				for i := 0; i < n; i++ {
					if buf[i] == 0x1D { // Ctrl-]
						signalDone()
						return
					}
				}
				if werr := sup.WriteStdin(id, string(buf[:n])); werr != nil {
					signalDone()
					return
				}
			}
			if err != nil {
				signalDone()
				return
			}
		}
	}()

	if cols, rows, err := term.GetSize(fd); err == nil {
		sup.ResizePTY(id, uint16(rows), uint16(cols))
	}
	winchCh := make(chan os.Signal, 1)
	signal.Notify(winchCh, syscall.SIGWINCH)
	go func() {
		for range winchCh {
			if cols, rows, err := term.GetSize(fd); err == nil {
				sup.ResizePTY(id, uint16(rows), uint16(cols))
			}
		}
	}()

	<-done
	signal.Stop(winchCh)
	restore()
	sup.KillSession(id)
	fmt.Fprintf(os.Stdout, "\n[corralctl] detached from session %d\n", id)
}

func fileAbs(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	return abs, nil
}
