package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agent-command/agentd/internal/config"
	"github.com/agent-command/agentd/internal/metrics"
	"github.com/agent-command/agentd/internal/queue"
	"github.com/agent-command/agentd/internal/spawnpolicy"
	"github.com/agent-command/agentd/internal/spawnproc"
	"github.com/agent-command/agentd/internal/supervisor"
	"github.com/agent-command/agentd/internal/toolsurface"
	"github.com/google/uuid"
)

// Version information
const Version = "0.1.0"

func main() {
	// Check for subcommands first
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			runStatusCommand(os.Args[2:])
			return
		case "list":
			runListCommand(os.Args[2:])
			return
		case "version":
			runVersionCommand()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	// Default: run as daemon
	runDaemon()
}

func printHelp() {
	fmt.Println(`agentd - Session Supervisor for coding-agent CLIs

Usage:
  agentd [command] [options]

Commands:
  (none)       Run as daemon (default)
  status       Show daemon configuration and exit
  list         List sessions recorded on disk by every agent family
  version      Show version information
  help         Show this help

Daemon Options:
  -config string  Path to config file (default "/etc/agentd/config.yaml")

Subcommand Options:
  -json         Output in JSON format
  -config       Path to config file`)
}

func runVersionCommand() {
	fmt.Printf("agentd version %s\n", Version)
}

func runStatusCommand(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	configPath := fs.String("config", "/etc/agentd/config.yaml", "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if *jsonOutput {
			outputJSON(map[string]any{"error": err.Error()})
		} else {
			log.Fatalf("failed to load config: %v", err)
		}
		return
	}

	status := map[string]any{
		"version":          Version,
		"cli_path":         cfg.Env.CLIPath,
		"max_sessions":     cfg.Env.MaxSessions,
		"approval_listen":  cfg.Approval.CallbackListen,
		"metrics_listen":   cfg.Metrics.Listen,
		"metrics_enabled":  cfg.Metrics.Enabled,
		"tool_surface_url": cfg.ToolSurface.WSURL,
		"claude_exec_path": cfg.Providers.Claude.ExecPath,
		"codex_exec_path":  cfg.Providers.Codex.ExecPath,
	}

	if *jsonOutput {
		outputJSON(status)
		return
	}

	fmt.Printf("Session Supervisor Status\n")
	fmt.Printf("==========================\n")
	fmt.Printf("Version:         %s\n", Version)
	fmt.Printf("CLI Path:        %s\n", cfg.Env.CLIPath)
	fmt.Printf("Max Sessions:    %d\n", cfg.Env.MaxSessions)
	fmt.Printf("Approval Listen: %s\n", cfg.Approval.CallbackListen)
	fmt.Printf("Metrics Listen:  %s (enabled=%v)\n", cfg.Metrics.Listen, cfg.Metrics.Enabled)
	fmt.Printf("Tool Surface:    %s\n", cfg.ToolSurface.WSURL)
	fmt.Printf("\nAgent Families:\n")
	fmt.Printf("  claude: %s\n", cfg.Providers.Claude.ExecPath)
	fmt.Printf("  codex:  %s\n", cfg.Providers.Codex.ExecPath)
}

func runListCommand(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	configPath := fs.String("config", "/etc/agentd/config.yaml", "Path to config file")
	dir := fs.String("dir", "", "Filter to one working directory")
	limit := fs.Int("limit", 50, "Maximum rows to return")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	mgr := supervisor.New(cfg.Env, buildPolicies(cfg), "claude", nil)
	entries, err := mgr.List(*dir, *limit)
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}

	if *jsonOutput {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No sessions found")
		return
	}
	fmt.Printf("Sessions (%d total)\n", len(entries))
	for _, e := range entries {
		activeMarker := ""
		if e.IsActive {
			activeMarker = " [active]"
		}
		fmt.Printf("\n%s%s\n", e.SessionID, activeMarker)
		fmt.Printf("  Project: %s\n", e.Project)
		fmt.Printf("  Status:  %s\n", e.Status)
	}
}

func outputJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// buildPolicies constructs the per-agent-family spawnpolicy.Policy set
// from cfg, the map Start/Say/List resolve an Agent name against.
func buildPolicies(cfg *config.Config) map[string]spawnpolicy.Policy {
	return map[string]spawnpolicy.Policy{
		"claude": spawnpolicy.NewClaudePolicy(cfg.Providers.Claude.ExecPath, cfg.Storage.SessionIndexDir),
		"codex":  spawnpolicy.NewCodexPolicy(cfg.Providers.Codex.ExecPath, cfg.Storage.SessionIndexPath),
	}
}

func runDaemon() {
	configPath := flag.String("config", "/etc/agentd/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	d := &daemon{cfg: cfg}
	if err := d.Run(); err != nil {
		log.Fatalf("daemon error: %v", err)
	}
}

// daemon wires C1-C8 plus the outer tool-protocol adapter together,
// grounded on the teacher's Agent struct: one struct holding every
// long-lived component, constructed once in Run and torn down on
// SIGINT/SIGTERM.
type daemon struct {
	cfg         *config.Config
	bridge      *spawnproc.ApprovalBridge
	recorder    *metrics.Recorder
	manager     *supervisor.Manager
	toolClient  *toolsurface.Client
	metricsSrv  *http.Server
}

func (d *daemon) Run() error {
	hostID := uuid.NewString()

	d.bridge = spawnproc.NewApprovalBridge()
	d.recorder = metrics.New()
	d.manager = supervisor.New(d.cfg.Env, buildPolicies(d.cfg), "claude", d.bridge)
	d.manager.BindMetrics(d.recorder)

	endpoint, err := d.bridge.Start(d.cfg.Approval.CallbackListen)
	if err != nil {
		return fmt.Errorf("failed to start approval bridge: %w", err)
	}
	d.manager.BindCallbackEndpoint(endpoint)

	if d.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.recorder.Handler())
		d.metricsSrv = &http.Server{Addr: d.cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := d.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	d.toolClient = toolsurface.NewClient(
		d.cfg.ToolSurface.WSURL,
		d.cfg.ToolSurface.Token,
		hostID,
		d.cfg.ToolSurface.ReconnectBackoffMs,
		d.manager,
	)

	outboundQueue, err := queue.NewQueue(stateDir(d.cfg), 1000)
	if err == nil {
		d.toolClient.SetQueue(outboundQueue, stateDir(d.cfg))
		if lastAcked, err := queue.LoadAckedSeq(stateDir(d.cfg)); err == nil {
			_ = outboundQueue.PruneAcked(lastAcked)
			d.toolClient.SetLastAckedSeq(lastAcked)
		}
	}

	if err := d.toolClient.Connect(); err != nil {
		return fmt.Errorf("failed to connect to control plane: %w", err)
	}

	usageCtx, cancelUsage := context.WithCancel(context.Background())
	defer cancelUsage()
	if d.cfg.Providers.Claude.UsageCommand != "" {
		go d.manager.PollAccountUsage(usageCtx, "claude",
			d.cfg.Providers.Claude.UsageCommand,
			time.Duration(d.cfg.Providers.Claude.UsageIntervalMs)*time.Millisecond)
	}
	if d.cfg.Providers.Codex.UsageCommand != "" {
		go d.manager.PollAccountUsage(usageCtx, "codex",
			d.cfg.Providers.Codex.UsageCommand,
			time.Duration(d.cfg.Providers.Codex.UsageIntervalMs)*time.Millisecond)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down...")
	cancelUsage()
	d.manager.Shutdown()
	d.toolClient.Close()
	if d.metricsSrv != nil {
		_ = d.metricsSrv.Close()
	}

	return nil
}

// stateDir is where the outbound queue's durable JSONL file and last-
// acked-seq marker live; it has no dedicated config field yet because
// only the tool-surface client needs one (spec.md §6 names no other
// consumer of process-local disk state).
func stateDir(cfg *config.Config) string {
	if cfg.Storage.SessionIndexDir != "" {
		return cfg.Storage.SessionIndexDir + "/.agentd-queue"
	}
	return "/var/lib/agentd/queue"
}
