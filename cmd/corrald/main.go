// corrald is a standalone harness for manually exercising the supervisor
// outside the desktop frontend: it boots a Supervisor, prints its status
// server info, and spawns one shell session for smoke testing. It is not
// part of corral's command surface — the real frontend embeds
// internal/supervisor directly in-process.
//
// Usage:
//
//	corrald [--worktree-root <dir>] [--config <file.yaml>] [--project <name>]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marlowe-finch/corral/internal/daemoncfg"
	"github.com/marlowe-finch/corral/internal/eventbus"
	"github.com/marlowe-finch/corral/internal/supervisor"
)

func main() {
	worktreeRoot := flag.String("worktree-root", "", "base directory for managed worktrees (default: platform data dir)")
	configPath := flag.String("config", "", "optional YAML file with worktree_root/default_shell/env/projects defaults")
	project := flag.String("project", "", "named project from --config's projects list to spawn into instead of cwd")
	flag.Parse()

	cfg, err := daemoncfg.Load(*configPath)
	if err != nil {
		log.Fatalf("corrald: loading config: %v", err)
	}

	root := *worktreeRoot
	if root == "" {
		root = cfg.WorktreeRoot
	}

	sup, err := supervisor.New(root)
	if err != nil {
		log.Fatalf("corrald: supervisor init: %v", err)
	}

	info := sup.GetStatusServerInfo()
	log.Printf("corrald: status ingress listening on %s (instance %s)", info.StatusURL, info.InstanceID)
	if info.SidecarPath == "" {
		log.Printf("corrald: no corral-sidecar binary found on the candidate search path")
	}

	var cwd string
	if *project != "" {
		cwd = cfg.ProjectPath(*project)
		if cwd == "" {
			log.Fatalf("corrald: no project named %q in --config's projects list", *project)
		}
	} else {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			log.Fatalf("corrald: getwd: %v", err)
		}
	}
	if cfg.DefaultShell != "" {
		os.Setenv("SHELL", cfg.DefaultShell)
	}
	id, err := sup.SpawnShell(cwd, cwd, cfg.MergedEnv(nil))
	if err != nil {
		log.Fatalf("corrald: spawn shell: %v", err)
	}
	log.Printf("corrald: spawned session %d in %s", id, cwd)

	sup.Bus().Subscribe(eventbus.PTYOutputTopic(id), func(e eventbus.Event) {
		os.Stdout.WriteString(e.Payload.(string))
	})
	sup.Bus().Subscribe(eventbus.TopicSessionStatusChanged, func(e eventbus.Event) {
		log.Printf("corrald: status change: %+v", e.Payload)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("corrald: received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sup.Shutdown(ctx); err != nil {
		log.Printf("corrald: shutdown: %v", err)
	}
}
