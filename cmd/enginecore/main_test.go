package main

import (
	"testing"

	"github.com/l1jgo/enginecore/internal/config"
	"github.com/l1jgo/enginecore/internal/core/engine"
	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"github.com/l1jgo/enginecore/internal/data"
	"go.uber.org/zap/zaptest"
)

func TestCreateSystemsFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
[systems.ttl]
kind = "lifetime"

[systems.cleanup]
`))
	if err != nil {
		t.Fatal(err)
	}

	registry := coresys.NewRegistry()
	eng := engine.New(zaptest.NewLogger(t), engine.WithRegistry(registry))
	t.Cleanup(eng.Shutdown)
	if err := registerFactories(registry, eng, cfg.Engine); err != nil {
		t.Fatal(err)
	}
	if err := createSystems(eng, cfg); err != nil {
		t.Fatal(err)
	}

	s, ok := eng.System("ttl")
	if !ok || s.Kind() != "lifetime" {
		t.Fatalf("expected ttl system of kind lifetime, got %v", s)
	}
	if s, ok := eng.System("cleanup"); !ok || s.Kind() != "cleanup" {
		t.Error("kind must default to the table name")
	}
	if err := eng.Initialize(cfg.Systems, cfg.Env); err != nil {
		t.Fatal(err)
	}

	table, err := data.ParseEntityTable([]byte(`
entities:
  - id: a
    ttl: {ttl: 1s}
  - id: b
`))
	if err != nil {
		t.Fatal(err)
	}
	if n := spawnEntities(eng, table, zaptest.NewLogger(t)); n != 2 {
		t.Errorf("expected 2 spawned, got %d", n)
	}
	if s.ComponentCount() != 1 {
		t.Errorf("expected 1 lifetime component, got %d", s.ComponentCount())
	}
}

func TestCreateSystemsUnknownKind(t *testing.T) {
	cfg, err := config.Parse([]byte("[systems.x]\nkind = \"nope\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(zaptest.NewLogger(t))
	if err := createSystems(eng, cfg); err == nil {
		t.Error("expected error for unknown kind")
	}
}
