package perfcard

import (
	"fmt"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// ErrorText is what the card shows in place of the chart.
type ErrorText struct {
	Message string
	Note    string
}

// UnknownBackendError is shown for fail_reason codes outside the documented set.
const UnknownBackendError = "Unknown BackendApiError"

var backendMessages = map[string]ErrorText{
	monitor.CodeBadRequest: {
		Message: "Chart data loading failed: bad request.",
	},
	monitor.CodeInvalidThreadName: {
		Message: "Chart data loading failed: invalid thread name.",
	},
	monitor.CodeDataUnavailable: {
		Message: "Chart data loading failed: data not yet available.",
	},
	monitor.CodeNotEnoughData: {
		Message: "There is not enough data to display the chart just yet.",
		Note: fmt.Sprintf("The chart requires at least %d minutes of data collection from a running server.",
			int(types.MinDataCollection.Minutes())),
	},
}

// DescribeError maps a fetch error to its user-facing text. Backend codes use a
// fixed table; any other error gets a generic message carrying err's text.
func DescribeError(err error) ErrorText {
	if err == nil {
		return ErrorText{}
	}
	if be, ok := monitor.AsBackendAPIError(err); ok {
		if txt, ok := backendMessages[be.Code]; ok {
			return txt
		}
		return ErrorText{Message: UnknownBackendError, Note: be.Code}
	}
	return ErrorText{Message: "Failed to load the thread performance data.", Note: err.Error()}
}
