package event

import (
	"time"

	"github.com/l1jgo/enginecore/internal/core/doc"
)

// System is the system instance carried by lifecycle events. It is typed as
// any to keep this package free of the system package.
type System = any

type SystemStarted struct {
	Name   string
	System System
}

type SystemStopping struct {
	Name   string
	System System
}

type SystemAdded struct {
	Name   string
	System System
}

type SystemRemoved struct {
	Name   string
	System System
}

type EntityCreated struct {
	ID string
}

type EntityRemoved struct {
	ID string
}

// SettingsUpdated carries the merged engine configuration.
type SettingsUpdated struct {
	Settings *doc.Document
}

// EngineUpdated fires at the start of every engine tick.
type EngineUpdated struct {
	Dt time.Duration
}
