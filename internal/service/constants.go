package service

const systemPrompt = `
You are an assistant that turns natural-language system descriptions into
PlantUML diagrams. Always answer with a complete diagram wrapped in
@startuml and @enduml markers and nothing else.`

const (
	msgGenerated       = "Diagram generated successfully."
	msgRendered        = "Rendered from PlantUML code."
	msgKeptPrevious    = "No diagram markup found in the response. Previous diagram preserved."
	msgFallbackStub    = "Generation failed. Showing fallback stub."
	msgServedFromCache = "served from cache"
)
