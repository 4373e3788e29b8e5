package entity

// CoreType is the closed enum of execution strategies a CoreRegistry can hold.
type CoreType string

const (
	CoreFreeform     CoreType = "freeform"
	CoreStructured   CoreType = "structured"
	CoreOrchestrator CoreType = "orchestrator"
	CoreSwarm        CoreType = "swarm"
	CoreWorkflow     CoreType = "workflow"
	CoreAdversarial  CoreType = "adversarial"
)

// Valid reports whether t is one of the six registered CoreType values.
func (t CoreType) Valid() bool {
	switch t {
	case CoreFreeform, CoreStructured, CoreOrchestrator, CoreSwarm, CoreWorkflow, CoreAdversarial:
		return true
	default:
		return false
	}
}

// AllCoreTypes lists every CoreType in a stable order, used by CoreRegistry.ListCores.
func AllCoreTypes() []CoreType {
	return []CoreType{CoreFreeform, CoreStructured, CoreOrchestrator, CoreSwarm, CoreWorkflow, CoreAdversarial}
}

// CoreMetricsSnapshot is the typed record of resource usage a core reports
// after an execute() call.
type CoreMetricsSnapshot struct {
	Turns       int     `json:"turns"`
	CostDollars float64 `json:"cost_dollars"`
	TimeMs      int64   `json:"time_ms"`
}

// CoreOutput is what a registered Core returns from one execute() call.
type CoreOutput struct {
	Completed bool                `json:"completed"`
	Summary   string              `json:"summary"`
	Artifacts []string            `json:"artifacts,omitempty"`
	Metrics   CoreMetricsSnapshot `json:"metrics"`
}

// CoreListing is one row of CoreRegistry.ListCores: the type and whether an
// implementation is currently registered for it.
type CoreListing struct {
	Type       CoreType `json:"type"`
	Registered bool     `json:"registered"`
}
