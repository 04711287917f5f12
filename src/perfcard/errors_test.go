package perfcard

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
)

func TestDescribeError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
		note    bool
	}{
		{"bad request", &monitor.BackendAPIError{Code: monitor.CodeBadRequest}, "Chart data loading failed: bad request.", false},
		{"invalid thread", &monitor.BackendAPIError{Code: monitor.CodeInvalidThreadName}, "Chart data loading failed: invalid thread name.", false},
		{"data unavailable", &monitor.BackendAPIError{Code: monitor.CodeDataUnavailable}, "Chart data loading failed: data not yet available.", false},
		{"not enough data", &monitor.BackendAPIError{Code: monitor.CodeNotEnoughData}, "There is not enough data to display the chart just yet.", true},
		{"wrapped code", fmt.Errorf("fetch svMain: %w", &monitor.BackendAPIError{Code: monitor.CodeBadRequest}), "Chart data loading failed: bad request.", false},
		{"unknown code", &monitor.BackendAPIError{Code: "server_on_fire"}, UnknownBackendError, true},
		{"generic", errors.New("dial tcp: connection refused"), "Failed to load the thread performance data.", true},
	}
	for _, c := range cases {
		got := DescribeError(c.err)
		if got.Message != c.message {
			t.Fatalf("%s: message = %q want %q", c.name, got.Message, c.message)
		}
		if (got.Note != "") != c.note {
			t.Fatalf("%s: note = %q", c.name, got.Note)
		}
	}
	if !strings.Contains(DescribeError(&monitor.BackendAPIError{Code: monitor.CodeNotEnoughData}).Note, "30 minutes") {
		t.Fatalf("not_enough_data note must mention the 30 minute minimum")
	}
	if DescribeError(nil) != (ErrorText{}) {
		t.Fatalf("nil error must describe to nothing")
	}
}
