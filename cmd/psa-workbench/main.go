package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/rflorenc/psa-automation-workbench/internal/api"
	"github.com/rflorenc/psa-automation-workbench/internal/config"
	"github.com/rflorenc/psa-automation-workbench/internal/metrics"
	"github.com/rflorenc/psa-automation-workbench/internal/models"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			fmt.Printf("psa-workbench %s (commit: %s, built: %s)\n", version, commit, date)
			os.Exit(0)
		}
	}

	cfg := config.Parse()

	server := &api.Server{
		Connections: models.NewConnectionStore(),
		Runs:        models.NewRunStore(),
		Metrics:     metrics.NewRecorder(),
	}

	// Load pre-configured connections from config file
	for _, cc := range cfg.Connections {
		conn := &models.Connection{
			Name:            cc.Name,
			Scheme:          cc.Scheme,
			Host:            cc.Host,
			Port:            cc.Port,
			APIPrefix:       cc.APIPrefix,
			Username:        cc.Username,
			Secret:          cc.Secret,
			IntegrationCode: cc.IntegrationCode,
			Insecure:        cc.Insecure,
		}
		if conn.Scheme == "" {
			conn.Scheme = "https"
		}
		if conn.Port == 0 {
			if conn.Scheme == "https" {
				conn.Port = 443
			} else {
				conn.Port = 80
			}
		}
		server.Connections.Create(conn)
		fmt.Printf("Loaded connection: %s (%s://%s:%d)\n", conn.Name, conn.Scheme, conn.Host, conn.Port)

		// Verify connectivity and auth early
		client := platform.NewClient(conn)
		pingStatus, pingError := "ok", ""
		if err := client.Ping(); err != nil {
			pingStatus = "error"
			pingError = err.Error()
			fmt.Printf("  PING FAILED: %s: %v\n", conn.Name, err)
		} else {
			fmt.Printf("  PING OK: %s: reachable\n", conn.Name)
		}

		authStatus, authError := "unknown", ""
		if pingStatus == "ok" {
			if conn.Username == "" || conn.Secret == "" || conn.IntegrationCode == "" {
				authStatus = "error"
				authError = "no credentials configured"
				fmt.Printf("  AUTH FAILED: %s: %s\n", conn.Name, authError)
			} else if err := client.CheckAuth(); err != nil {
				authStatus = "error"
				authError = err.Error()
				fmt.Printf("  AUTH FAILED: %s: %v\n", conn.Name, err)
			} else {
				authStatus = "ok"
				fmt.Printf("  AUTH OK: %s: authenticated successfully\n", conn.Name)

				// Prefetch field metadata for the entity kinds migrations write
				server.WarmFieldCaches(conn, func(line string) {
					fmt.Printf("  %s: %s\n", conn.Name, line)
				})
			}
		}
		server.Connections.SetHealth(conn.ID, pingStatus, pingError, authStatus, authError)
	}

	handler := api.NewRouter(server)

	fmt.Printf("PSA Automation Workbench %s starting on %s\n", version, cfg.Listen)

	if err := http.ListenAndServe(cfg.Listen, handler); err != nil {
		log.Fatal(err)
	}
}
