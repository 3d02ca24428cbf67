// Package backtrace captures a call chain for a crash result. It is the
// Go counterpart of src/plugins/backtrace.c's get_backtrace/
// fill_backtrace, which parses glibc's backtrace_symbols() strings;
// Go exposes the same information directly and type-safely through
// runtime.Callers/runtime.CallersFrames, so no string parsing is
// needed.
package backtrace

import (
	"runtime"

	"github.com/pkg/errors"

	"github.com/ehrlich-b/muonrun/internal/model"
)

// Capture walks up to maxFrames stack frames starting skip frames above
// its own caller, mirroring get_backtrace(skip)'s contract.
func Capture(skip, maxFrames int) []model.BacktraceFrame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs) // +2: skip runtime.Callers and Capture itself
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var out []model.BacktraceFrame
	for {
		frame, more := frames.Next()
		out = append(out, model.BacktraceFrame{
			BinaryFile:   frame.File,
			Function:     frame.Function,
			FunctionAddr: frame.Entry,
			ReturnAddr:   frame.PC,
		})
		if !more {
			break
		}
	}
	return out
}

// FromStackTrace extracts a backtrace chain from an error carrying a
// github.com/pkg/errors stack trace — used for crashes that originate
// in engine code itself (dispatcher/transport bugs), as distinct from a
// signal raised by the test body, which Capture handles directly.
func FromStackTrace(err error) []model.BacktraceFrame {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	st, ok := err.(stackTracer)
	if !ok {
		return nil
	}
	trace := st.StackTrace()
	out := make([]model.BacktraceFrame, 0, len(trace))
	for _, f := range trace {
		pc := uintptr(f) - 1
		fn := runtime.FuncForPC(pc)
		frame := model.BacktraceFrame{ReturnAddr: pc}
		if fn != nil {
			frame.Function = fn.Name()
			file, _ := fn.FileLine(pc)
			frame.BinaryFile = file
			frame.FunctionAddr = fn.Entry()
		}
		out = append(out, frame)
	}
	return out
}
