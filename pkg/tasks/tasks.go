// Package tasks performs the process-wide wiring: every queue and task is
// created once here, and queue handles are passed into each task's
// constructor explicitly. There are no package-level queues.
package tasks

import (
	"github.com/morefigs/opentrons-modules/pkg/comms"
	"github.com/morefigs/opentrons-modules/pkg/config"
	"github.com/morefigs/opentrons-modules/pkg/messages"
	"github.com/morefigs/opentrons-modules/pkg/queue"
	"github.com/morefigs/opentrons-modules/pkg/system"
	"github.com/morefigs/opentrons-modules/pkg/thermal"
)

// queueCapacity is the per-task mailbox depth. Sized for the worst-case
// burst of one readings event plus a full pending-command cache.
const queueCapacity = 16

// Tasks aggregates all task and queue handles for one firmware instance.
type Tasks struct {
	CommsQueue   *queue.Queue[messages.HostCommsMessage]
	SystemQueue  *queue.Queue[messages.SystemMessage]
	ThermalQueue *queue.Queue[messages.ThermalMessage]

	Comms   *comms.Task
	System  *system.Task
	Thermal *thermal.Task
}

// New builds the full task set from a configuration.
func New(cfg *config.Config) *Tasks {
	commsQ := queue.New[messages.HostCommsMessage](queueCapacity)
	systemQ := queue.New[messages.SystemMessage](queueCapacity)
	thermalQ := queue.New[messages.ThermalMessage](queueCapacity)

	return &Tasks{
		CommsQueue:   commsQ,
		SystemQueue:  systemQ,
		ThermalQueue: thermalQ,
		Comms:        comms.New(commsQ, systemQ, thermalQ),
		System:       system.New(systemQ, commsQ),
		Thermal:      thermal.New(thermalQ, commsQ, cfg),
	}
}
