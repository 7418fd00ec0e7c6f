package plantuml

import (
	"fmt"

	"github.com/umldraft/umlbot/internal/models"
)

var skeletons = map[models.DiagramType]string{
	models.UseCaseDiagram:      "@startuml\nactor User\nUser --> (Describe your system)\n@enduml",
	models.ClassDiagram:        "@startuml\nclass Example {\n  +field : String\n}\n@enduml",
	models.ActivityDiagram:     "@startuml\nstart\n:Describe your process;\nstop\n@enduml",
	models.ComponentDiagram:    "@startuml\n[Component] --> [Dependency]\n@enduml",
	models.DeploymentDiagram:   "@startuml\nnode Server {\n  artifact App\n}\n@enduml",
	models.StateMachineDiagram: "@startuml\n[*] --> Idle\nIdle --> Done\nDone --> [*]\n@enduml",
	models.TimingDiagram:       "@startuml\nrobust \"Signal\" as S\n@0\nS is Low\n@100\nS is High\n@enduml",
	models.SequenceDiagram:     "@startuml\nactor User\nUser -> System : request\nSystem --> User : response\n@enduml",
}

// DefaultSkeleton returns the starter markup installed when a session is
// created or its diagram type is switched before any edits were made.
func DefaultSkeleton(t models.DiagramType) string {
	if s, ok := skeletons[t]; ok {
		return s
	}
	return skeletons[models.DefaultDiagramType]
}

// FallbackStub builds the commented stub shown when generation fails and no
// prior markup exists, so the client always has delimited code to display.
func FallbackStub(t models.DiagramType, description string) string {
	return fmt.Sprintf("@startuml\n' %s diagram\n' %s\n@enduml", t, description)
}
