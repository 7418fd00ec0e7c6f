package models

// DiagramType is one of the supported UML diagram kinds.
type DiagramType string

const (
	UseCaseDiagram      DiagramType = "Use Case"
	ClassDiagram        DiagramType = "Class"
	ActivityDiagram     DiagramType = "Activity"
	ComponentDiagram    DiagramType = "Component"
	DeploymentDiagram   DiagramType = "Deployment"
	StateMachineDiagram DiagramType = "State Machine"
	TimingDiagram       DiagramType = "Timing"
	SequenceDiagram     DiagramType = "Sequence"
)

const DefaultDiagramType = UseCaseDiagram

var SupportedDiagramTypes = []DiagramType{
	UseCaseDiagram,
	ClassDiagram,
	ActivityDiagram,
	ComponentDiagram,
	DeploymentDiagram,
	StateMachineDiagram,
	TimingDiagram,
	SequenceDiagram,
}

func (t DiagramType) Valid() bool {
	for _, s := range SupportedDiagramTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Phase tracks where a session is in the request lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseReady      Phase = "ready"
	PhaseFailed     Phase = "failed"
)
