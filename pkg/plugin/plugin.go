package plugin

import (
	"github.com/psantana5/nodehost/pkg/queue"
)

// InitContext carries everything a plugin instance receives at load time.
// Queue is the instance's single-threaded task queue, WorkQueue the
// multi-threaded one; both are serviced by the host's shared worker pool.
type InitContext struct {
	Name       string
	Remappings map[string]string
	Args       []string
	Queue      *queue.Queue
	WorkQueue  *queue.Queue
}

// Plugin is the capability set every loadable component implements.
// Init is called exactly once, after the instance is already visible in
// the host registry but while the registry is still locked: it must not
// call host control operations, and on failure it must release anything
// it acquired because Stop will not run. Stop is called exactly once
// during unload or host teardown; after Stop returns no task of this
// instance runs again.
type Plugin interface {
	Init(ctx InitContext) error
	Stop()
}

// Factory produces a fresh, uninitialized plugin instance
type Factory func() (Plugin, error)
