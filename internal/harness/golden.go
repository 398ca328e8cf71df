package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pmsync/internal/pm"
)

// FormatTrace renders a trace as canonical JSON, one event per line.
// The output is stable across runs and is what golden files hold.
func FormatTrace(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range trace {
		cmd, err := pm.CommandObject(ev.Command)
		if err != nil {
			return nil, err
		}
		obj := map[string]any{
			"seq":     ev.Seq,
			"from":    string(ev.From),
			"command": cmd,
		}
		if ev.ErrorCode != "" {
			obj["error"] = string(ev.ErrorCode)
		}
		line, err := pm.MarshalCanonical(obj)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario, fails t on step or assertion errors and
// compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares a result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := FormatTrace(result.Trace)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
