package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/enginecore/internal/config"
	"github.com/l1jgo/enginecore/internal/core/engine"
	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/data"
	"github.com/l1jgo/enginecore/internal/logging"
	"github.com/l1jgo/enginecore/internal/system"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             enginecore  v0.1.0            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main engine logic ─────────────────────────────────────────────

func run() error {
	cfgPath := flag.String("config", "config/engine.toml", "path of the engine config file")
	profMode := flag.String("profile", "", "write a cpu or mem profile to the working directory")
	flag.Parse()

	// 1. Load config
	if p := os.Getenv("ENGINECORE_CONFIG"); p != "" && !flagSet("config") {
		*cfgPath = p
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	switch *profMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q", *profMode)
	}

	printBanner()

	// 3. Create the engine and register system factories
	printSection("Systems")

	registry := coresys.NewRegistry()
	eng := engine.New(log,
		engine.WithRegistry(registry),
		engine.WithEntityPool(cfg.Engine.EntityPoolSize, cfg.Engine.MaxBlockLength),
		engine.WithDedicatedTickRate(cfg.Engine.DedicatedTickRate),
		engine.WithMainThreadQueueLimit(cfg.Engine.MainQueueLimit),
	)
	if err := registerFactories(registry, eng, cfg.Engine); err != nil {
		return err
	}

	// 4. Instantiate every configured system, then the cleanup system last
	if err := createSystems(eng, cfg); err != nil {
		return err
	}
	if !eng.HasSystem("cleanup") {
		if err := eng.AddSystem("cleanup", system.NewCleanupSystem(eng)); err != nil {
			return err
		}
	}
	printStat("Registered systems", len(eng.Systems()))

	if err := eng.Initialize(cfg.Systems, cfg.Env); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	printOK("Engine initialized")
	fmt.Println()

	// 5. Spawn entity templates
	printSection("Entities")
	if cfg.Engine.Templates != "" {
		table, err := data.LoadEntityTable(cfg.Engine.Templates)
		if err != nil {
			return fmt.Errorf("load entity templates: %w", err)
		}
		printStat("Entity templates", table.Count())
		spawned := spawnEntities(eng, table, log)
		printStat("Entities spawned", spawned)
	}
	fmt.Println()

	// 6. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Engine.TickRate)
	defer ticker.Stop()

	printReady(fmt.Sprintf("Engine loop started (tick: %s)", cfg.Engine.TickRate))
	fmt.Println()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			eng.Update(now.Sub(last))
			last = now
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			eng.Shutdown()
			eng.UnloadAll()
			log.Info("engine stopped")
			return nil
		}
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// registerFactories registers the built-in system kinds.
func registerFactories(r *coresys.Registry, eng *engine.Engine, cfg config.EngineConfig) error {
	if err := r.Register("cleanup", func() coresys.System {
		return system.NewCleanupSystem(eng)
	}); err != nil {
		return fmt.Errorf("register cleanup: %w", err)
	}
	if err := r.Register("lifetime", func() coresys.System {
		return system.NewLifetimeSystem(eng, cfg.ComponentPoolSize)
	}); err != nil {
		return fmt.Errorf("register lifetime: %w", err)
	}
	return nil
}

// createSystems instantiates one system per [systems.<name>] table. The
// "kind" key selects the factory and defaults to the table name.
func createSystems(eng *engine.Engine, cfg *config.Config) error {
	for _, name := range cfg.Systems.Keys() {
		sc, ok := cfg.Systems.Child(name)
		if !ok {
			return fmt.Errorf("systems.%s: expected a table", name)
		}
		kind := sc.String("kind", name)
		if _, err := eng.CreateSystem(kind, name); err != nil {
			return fmt.Errorf("create system %s (%s): %w", name, kind, err)
		}
	}
	return nil
}

func spawnEntities(eng *engine.Engine, table *data.EntityTable, log *zap.Logger) int {
	spawned := 0
	for _, d := range table.All() {
		if _, err := eng.CreateEntity(d); err != nil {
			log.Warn("spawn entity failed", zap.Error(err))
			continue
		}
		spawned++
	}
	return spawned
}
