package perfcard

import (
	"github.com/iafilius/ThreadPerfMonitor/src/analysis"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

type State int

const (
	// StateHidden means one of the chart dimensions is zero; nothing is shown.
	StateHidden State = iota
	StateLoading
	StateError
	StateReady
)

func (s State) String() string {
	switch s {
	case StateHidden:
		return "hidden"
	case StateLoading:
		return "loading"
	case StateError:
		return "error"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// View is an immutable snapshot of the card.
type View struct {
	State  State
	Thread types.ThreadName
	Width  int
	Height int
	Dark   bool
	// Error is set in StateError.
	Error *ErrorText
	// Model is set in StateReady; Drawable reports whether it has any lifespan.
	Model    *analysis.ChartModel
	Drawable bool
	Cursor   *analysis.Cursor
}
