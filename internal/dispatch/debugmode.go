package dispatch

import (
	"fmt"

	"github.com/ehrlich-b/muonrun/internal/model"
	"github.com/ehrlich-b/muonrun/internal/token"
)

// runDebugIteration is spec §4.I's in-process dispatcher: set up the
// in-process token, run the stage sequence in this process (on the
// goroutine token.RunUnderRecover starts for it), clear any installed
// alarm/signal handlers on exit. Go's translation of "set a sigsetjmp
// landing pad" is RunUnderRecover's dedicated recover() frame around a
// debugAbort panic (spec §9).
func (d *Dispatcher) runDebugIteration(desc *model.TestDescriptor) iterationOutcome {
	tok := token.NewDebugToken(func(ev model.LogEvent) {
		if d.cfg.Logger != nil {
			d.cfg.Logger.TestLog(ev)
		}
	})

	fixtures := desc.Library.Fixtures[desc.Suite]

	result, aborted := tok.RunUnderRecover(func() {
		runDebugThunk(tok, model.StageLibrarySetup, desc.Library.LibrarySetup)
		runDebugThunk(tok, model.StageFixtureSetup, fixtures.Setup)

		tok.SetStage(model.StageTest)
		desc.Entry(tok)

		runDebugThunk(tok, model.StageFixtureTeardown, fixtures.Teardown)
		runDebugThunk(tok, model.StageLibraryTeardown, desc.Library.LibraryTeardown)

		tok.Result(model.TestResult{Status: model.Success, Stage: model.StageTest})
	})
	if !aborted {
		// fn only returns without panicking if every thunk and the test
		// itself ran clean through to the unconditional Result call
		// above, and that call always panics — so this is unreachable in
		// practice, kept as a defensive fallback rather than a silent
		// zero-value TestResult.
		result = model.TestResult{Status: model.Success, Stage: model.StageTest}
	}

	return iterationOutcome{result: result, overrideN: int(tok.Iterations())}
}

// runDebugThunk mirrors runThunk's fork-mode counterpart: a failing
// setup/teardown thunk reports a Failure result, which — via
// DebugToken.Result's panic(debugAbort{}) — unwinds straight back to
// RunUnderRecover and skips any later stage.
func runDebugThunk(tok *token.DebugToken, stage model.Stage, thunk func() error) {
	if thunk == nil {
		return
	}
	tok.SetStage(stage)
	if err := thunk(); err != nil {
		tok.Result(model.TestResult{
			Status: model.Failure,
			Stage:  stage,
			Reason: fmt.Sprintf("%v", err),
		})
	}
}
