// Command deepdrone is the natural-language drone control assistant.
//
// With no subcommand it starts an interactive chat session on the terminal.
// Subcommands:
//
//	serve     run the operator HTTP API
//	models    list the configured model catalog
//	test      test connectivity of the active model
//	set-key   store an API key for a model
//	version   print version information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/deepdrone/deepdrone/pkg/api"
	"github.com/deepdrone/deepdrone/pkg/chat"
	"github.com/deepdrone/deepdrone/pkg/config"
	"github.com/deepdrone/deepdrone/pkg/drone"
	"github.com/deepdrone/deepdrone/pkg/logging"
	"github.com/deepdrone/deepdrone/pkg/model"
	"github.com/deepdrone/deepdrone/pkg/sandbox"
	"github.com/deepdrone/deepdrone/pkg/telemetry"
)

// Version information, set via ldflags during build.
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	modelName  string
	connStr    string
)

func main() {
	flag.StringVar(&configPath, "config", "", "path to config file (default ~/.deepdrone/config.yaml)")
	flag.StringVar(&modelName, "model", "", "model catalog entry to use")
	flag.StringVar(&connStr, "connect", "", "vehicle connection string override")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	args := flag.Args()
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	if err := run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "deepdrone: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if connStr != "" {
		cfg.Drone.ConnectionString = connStr
	}
	if modelName == "" {
		modelName = cfg.DefaultModel
	}

	switch cmd {
	case "version":
		printVersion()
		return nil
	case "help", "--help", "-h":
		flag.Usage()
		return nil
	case "models":
		return runModels(cfg)
	case "set-key":
		if len(args) < 2 {
			return fmt.Errorf("usage: deepdrone set-key <model>")
		}
		return runSetKey(cfg, args[1])
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "test":
		return runTest(ctx, rt)
	case "serve":
		return runServe(ctx, rt)
	case "":
		return runInteractive(ctx, rt)
	default:
		return fmt.Errorf("unknown command %q, see 'deepdrone help'", cmd)
	}
}

// runtime bundles the long-lived components one session needs.
type runtime struct {
	cfg     *config.Config
	log     *logging.Logger
	hub     *telemetry.Hub
	sess    *drone.Session
	adapter *model.Adapter
	coord   *chat.Coordinator
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	sessionID := uuid.NewString()
	log, err := logging.NewLogger(cfg.LogDir, sessionID)
	if err != nil {
		return nil, fmt.Errorf("open session logs: %w", err)
	}

	modelCfg, ok := cfg.GetModel(modelName)
	if !ok {
		log.Close()
		return nil, fmt.Errorf("unknown model %q, see 'deepdrone models'", modelName)
	}
	adapter, err := model.Configure(modelCfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}

	hub := telemetry.NewHub()
	sess := drone.NewSession(drone.DialSim(drone.DefaultSimConfig()), log, hub)
	exec := sandbox.NewExecutor(sandbox.Config{
		Timeout: cfg.Chat.SnippetTimeout,
	}, drone.Capabilities(sess), log)

	coord := chat.NewCoordinator(chat.Config{
		HistoryWindow:    cfg.Chat.HistoryWindow,
		MonitorInterval:  cfg.Chat.MonitorInterval,
		ConnectionString: cfg.Drone.ConnectionString,
	}, adapter, sess, exec, log, hub)

	return &runtime{
		cfg:     cfg,
		log:     log,
		hub:     hub,
		sess:    sess,
		adapter: adapter,
		coord:   coord,
	}, nil
}

func (rt *runtime) close() {
	rt.coord.StopMonitor()
	rt.sess.Disconnect()
	rt.hub.Close()
	rt.log.Close()
}

func runServe(ctx context.Context, rt *runtime) error {
	rt.coord.StartMonitor(ctx)
	srv := api.NewServer(rt.cfg, rt.coord, rt.sess, rt.adapter, rt.hub, rt.log)
	fmt.Printf("DeepDrone operator API listening on %s\n", rt.cfg.Server.Bind)
	return srv.Start(ctx)
}

func runTest(ctx context.Context, rt *runtime) error {
	cfg := rt.adapter.Config()
	fmt.Printf("Testing %s (%s/%s)...\n", cfg.Name, cfg.Provider, cfg.ModelID)

	result := rt.adapter.TestConnection(ctx)
	if !result.OK {
		return fmt.Errorf("connection test failed after %s: %s", result.Elapsed.Round(timeUnit), result.Error)
	}
	fmt.Printf("Connection test successful (%s): %s\n", result.Elapsed.Round(timeUnit), result.Response)
	return nil
}

func runModels(cfg *config.Config) error {
	fmt.Printf("%-24s %-12s %-32s %s\n", "NAME", "PROVIDER", "MODEL ID", "KEY")
	for _, name := range cfg.ListModels() {
		m := cfg.Models[name]
		key := "missing"
		if !m.RequiresKey() {
			key = "not required"
		} else if m.HasUsableKey() {
			key = "configured"
		}
		marker := " "
		if name == cfg.DefaultModel {
			marker = "*"
		}
		fmt.Printf("%s %-22s %-12s %-32s %s\n", marker, name, m.Provider, m.ModelID, key)
	}
	return nil
}

func printVersion() {
	fmt.Printf("deepdrone %s (commit %s, built %s)\n", version, commit, buildDate)
}
