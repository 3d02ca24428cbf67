package token

import (
	"fmt"

	"github.com/ehrlich-b/muonrun/internal/model"
)

// AssertEqual is spec §6's external assert_equal(a, b, type) operation
// (original_source/include/moonunit/interface.h's MU_ASSERT_EQUAL/
// MU_ASSERT_NOT_EQUAL macros, backed by MuTestMethods.assert_equal).
// wantEqual distinguishes the two: true for MU_ASSERT_EQUAL, false for
// MU_ASSERT_NOT_EQUAL. Unlike the original's type tag, which also
// selected the comparison itself (integer vs. float vs. strcmp vs.
// pointer identity), Go's a == b already dispatches correctly for the
// five legal types (Integer/Float/String/Pointer/Boolean) — the type is
// only consulted here for the mismatch diagnostic's formatting.
func AssertEqual(api model.TestAPI, file string, line int, exprText, expectedText string, wantEqual bool, a, b any) {
	if (a == b) == wantEqual {
		return
	}

	verb := "=="
	if !wantEqual {
		verb = "!="
	}
	api.Result(model.TestResult{
		Status: model.Assertion,
		Location: model.SourceLocation{
			File: file,
			Line: line,
			Set:  file != "",
		},
		Reason: fmt.Sprintf("assertion failed: %s %s %s (expected %s, got %s)",
			exprText, verb, expectedText, formatAssertValue(b), formatAssertValue(a)),
	})
}

// formatAssertValue renders v the way each of the five legal
// MU_TYPE_* values would be printed: strings get quoted, everything
// else gets Go's default %v (which already matches the original's
// integer/float/pointer/boolean formatting for these types).
func formatAssertValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
