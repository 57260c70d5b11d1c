package promptloop

// LoopConfig bounds one turn of the prompt loop.
type LoopConfig struct {
	// MaxSteps is the hard ceiling on resolution rounds. Reaching it
	// terminates the turn regardless of model behavior.
	MaxSteps int
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxSteps: 100,
	}
}

// continueFinishReasons are the finish reasons that indicate the provider
// stopped expecting more work. Unknown or absent reasons continue as well:
// terminating on an ambiguous signal risks dropping pending work, while an
// extra round-trip is merely wasteful.
var continueFinishReasons = map[string]bool{
	"tool-calls": true,
	"tool_calls": true,
	"unknown":    true,
	"":           true,
}
