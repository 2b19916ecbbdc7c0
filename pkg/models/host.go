package models

import (
	"time"
)

// LoadRequest asks the host to instantiate a plugin under a unique name.
// RemapSource and RemapTarget must have the same length; mismatched arrays
// are reported and the load proceeds with no remappings.
type LoadRequest struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	RemapSource []string `json:"remap_source,omitempty"`
	RemapTarget []string `json:"remap_target,omitempty"`
	Args        []string `json:"args,omitempty"`
	LivenessID  string   `json:"liveness_id,omitempty"`
}

// LoadResponse reports the outcome of a load request
type LoadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// UnloadResponse reports the outcome of an unload request
type UnloadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ListResponse carries a snapshot of the loaded instance names
type ListResponse struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

// InstanceInfo describes one loaded plugin instance
type InstanceInfo struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	LoadedAt   time.Time         `json:"loaded_at"`
	BondID     string            `json:"bond_id,omitempty"`
	Remappings map[string]string `json:"remappings,omitempty"`
	Args       []string          `json:"args,omitempty"`
	QueueDepth int               `json:"queue_depth"`
}

// InstanceListResponse is the detailed variant of ListResponse
type InstanceListResponse struct {
	Instances []InstanceInfo `json:"instances"`
	Count     int            `json:"count"`
}

// HeartbeatResponse acknowledges a bond heartbeat
type HeartbeatResponse struct {
	OK bool `json:"ok"`
}

// StatusResponse describes the running host
type StatusResponse struct {
	State         string     `json:"state"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	WorkerThreads int        `json:"worker_threads"`
	Instances     int        `json:"instances"`
	ActiveBonds   int        `json:"active_bonds"`
	QueueDepth    int        `json:"queue_depth"`
	TasksInFlight int        `json:"tasks_in_flight"`
	System        SystemInfo `json:"system"`
}

// SystemInfo describes the machine the host runs on
type SystemInfo struct {
	Hostname   string `json:"hostname"`
	CPUThreads int    `json:"cpu_threads"`
	CPUModel   string `json:"cpu_model,omitempty"`
	RAMBytes   uint64 `json:"ram_bytes"`
	GoVersion  string `json:"go_version"`
}
