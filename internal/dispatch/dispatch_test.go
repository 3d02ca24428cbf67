package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/muonrun/internal/model"
)

func TestRunIterationsStopsOnFirstStatusMismatch(t *testing.T) {
	d := NewDispatcher(Config{DefaultIterations: 5})

	calls := 0
	result, ran := d.runIterations(&model.TestDescriptor{}, func(*model.TestDescriptor) iterationOutcome {
		calls++
		if calls == 2 {
			return iterationOutcome{result: model.TestResult{Status: model.Failure, Expected: model.Success}}
		}
		return iterationOutcome{result: model.TestResult{Status: model.Success, Expected: model.Success}}
	})

	assert.Equal(t, 2, ran)
	assert.Equal(t, 2, calls)
	assert.Equal(t, model.Failure, result.Status)
}

func TestRunIterationsStopsOnSkipped(t *testing.T) {
	d := NewDispatcher(Config{DefaultIterations: 10})

	result, ran := d.runIterations(&model.TestDescriptor{}, func(*model.TestDescriptor) iterationOutcome {
		return iterationOutcome{result: model.TestResult{Status: model.Skipped, Expected: model.Skipped}}
	})

	assert.Equal(t, 1, ran)
	assert.Equal(t, model.Skipped, result.Status)
}

func TestRunIterationsRunsConfiguredCountWhenAllPass(t *testing.T) {
	d := NewDispatcher(Config{DefaultIterations: 3})

	calls := 0
	_, ran := d.runIterations(&model.TestDescriptor{}, func(*model.TestDescriptor) iterationOutcome {
		calls++
		return iterationOutcome{result: model.TestResult{Status: model.Success, Expected: model.Success}}
	})

	assert.Equal(t, 3, ran)
	assert.Equal(t, 3, calls)
}

func TestRunIterationsHonorsOverrideFromEarlierIteration(t *testing.T) {
	d := NewDispatcher(Config{DefaultIterations: 1})

	calls := 0
	_, ran := d.runIterations(&model.TestDescriptor{}, func(*model.TestDescriptor) iterationOutcome {
		calls++
		out := iterationOutcome{result: model.TestResult{Status: model.Success, Expected: model.Success}}
		if calls == 1 {
			out.overrideN = 4
		}
		return out
	})

	assert.Equal(t, 4, ran)
	assert.Equal(t, 4, calls)
}

func TestRunDebugIterationEmitsExplicitSuccessWhenTestDeclaresNothing(t *testing.T) {
	d := NewDispatcher(Config{Mode: ModeDebug})
	desc := &model.TestDescriptor{
		Suite:   "suite",
		Name:    "noop",
		Library: &model.LibraryHandle{},
		Entry:   func(api model.TestAPI) {},
	}

	result, ran := d.Run(desc)
	require.Equal(t, 1, ran)
	assert.Equal(t, model.Success, result.Status)
	assert.Equal(t, model.StageTest, result.Stage)
}

func TestRunDebugIterationCapturesExplicitFailure(t *testing.T) {
	d := NewDispatcher(Config{Mode: ModeDebug})
	desc := &model.TestDescriptor{
		Suite:   "suite",
		Name:    "fails",
		Library: &model.LibraryHandle{},
		Entry: func(api model.TestAPI) {
			api.Result(model.TestResult{Status: model.Failure, Reason: "boom"})
		},
	}

	result, _ := d.Run(desc)
	assert.Equal(t, model.Failure, result.Status)
	assert.Equal(t, "boom", result.Reason)
}

func TestRunDebugIterationFixtureSetupFailureSkipsTest(t *testing.T) {
	d := NewDispatcher(Config{Mode: ModeDebug})
	testRan := false
	desc := &model.TestDescriptor{
		Suite: "suite",
		Name:  "skipped-by-fixture",
		Library: &model.LibraryHandle{
			Fixtures: map[string]model.FixtureThunks{
				"suite": {Setup: func() error { return errors.New("fixture broke") }},
			},
		},
		Entry: func(api model.TestAPI) { testRan = true },
	}

	result, _ := d.Run(desc)
	assert.False(t, testRan)
	assert.Equal(t, model.Failure, result.Status)
	assert.Equal(t, model.StageFixtureSetup, result.Stage)
	assert.Contains(t, result.Reason, "fixture broke")
}

func TestRunDebugIterationAppliesIterationsOverride(t *testing.T) {
	d := NewDispatcher(Config{Mode: ModeDebug, DefaultIterations: 1})
	calls := 0
	desc := &model.TestDescriptor{
		Suite:   "suite",
		Name:    "iterated",
		Library: &model.LibraryHandle{},
		Entry: func(api model.TestAPI) {
			calls++
			api.Meta(model.MetaIterations, 3)
		},
	}

	_, ran := d.Run(desc)
	assert.Equal(t, 3, ran)
	assert.Equal(t, 3, calls)
}
