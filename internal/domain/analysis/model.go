package analysis

// Config wires runtime dependencies for the analysis domain.
type Config struct {
	Model           string
	Temperature     float32
	Prompt          string
	MaxPromptTokens int
}

type entryKind int

const (
	kindSymptom entryKind = iota
	kindWeather
)
