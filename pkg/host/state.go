package host

// State is the host lifecycle phase. The shutdown sequence moves through
// the phases in order and never backwards:
//
//	Running -> ServicesStopped -> WorkersStopped -> InstancesCleared ->
//	PoolReleased -> Terminated
type State int32

const (
	Running State = iota
	ServicesStopped
	WorkersStopped
	InstancesCleared
	PoolReleased
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ServicesStopped:
		return "services_stopped"
	case WorkersStopped:
		return "workers_stopped"
	case InstancesCleared:
		return "instances_cleared"
	case PoolReleased:
		return "pool_released"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}
