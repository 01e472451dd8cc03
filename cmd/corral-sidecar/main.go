// corral-sidecar is the standalone process spawned inside a session's AI
// assistant config as its only tool server. It speaks MCP over stdio and
// forwards report_status calls to the supervisor's status ingress.
//
// Usage:
//
//	corral-sidecar
//
// All configuration is read from the environment, matching the entry the
// supervisor's config writer produces: SESSION_ID, STATUS_URL,
// INSTANCE_ID.
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/marlowe-finch/corral/internal/sidecar"
)

func main() {
	sessionID, err := strconv.ParseUint(os.Getenv("SESSION_ID"), 10, 32)
	if err != nil {
		log.Fatalf("corral-sidecar: invalid or missing SESSION_ID: %v", err)
	}
	statusURL := os.Getenv("STATUS_URL")
	if statusURL == "" {
		log.Fatalf("corral-sidecar: missing STATUS_URL")
	}
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		log.Fatalf("corral-sidecar: missing INSTANCE_ID")
	}

	cfg := sidecar.Config{
		SessionID:  uint32(sessionID),
		StatusURL:  statusURL,
		InstanceID: instanceID,
	}

	if err := sidecar.Serve(cfg); err != nil {
		log.Fatalf("corral-sidecar: %v", err)
	}
}
