package ota

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestRunner(known ...string) *TestRunner {
	cfg := DefaultTestRunConfig("/tmp/workspace")
	cfg.KnownFailures = known
	return NewTestRunner(cfg, zap.NewNop())
}

func TestParseGoOutput_CountsPassAndFail(t *testing.T) {
	r := newTestRunner()
	output := "--- FAIL: TestSomething (0.00s)\nok  \tgithub.com/ngoclaw/goosecore/internal/foo\t0.010s\n"

	result := r.parseGoOutput(output)
	if result.Passed != 1 {
		t.Errorf("expected 1 passed package, got %d", result.Passed)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failed)
	}
	if len(result.NewFailures) != 1 || result.NewFailures[0].Name != "TestSomething" {
		t.Errorf("expected TestSomething to be extracted, got %+v", result.NewFailures)
	}
	if result.Success {
		t.Errorf("expected Success=false with a failure present")
	}
}

func TestParseGoOutput_AllPassingReportsNoFailures(t *testing.T) {
	r := newTestRunner()
	output := "ok  \tgithub.com/ngoclaw/goosecore/internal/foo\t0.010s\n"

	result := r.parseGoOutput(output)
	if result.Failed != 0 || !result.Success {
		t.Errorf("expected a clean pass, got %+v", result)
	}
}

func TestParseGoOutput_EmptyOutputStillCountsAsPassed(t *testing.T) {
	r := newTestRunner()
	result := r.parseGoOutput("")
	if result.Passed != 1 || result.Failed != 0 {
		t.Errorf("expected empty output to default to one passing run, got %+v", result)
	}
}

func TestParseJSUnitOutput_ParsesSummaryLineAndFailures(t *testing.T) {
	r := newTestRunner()
	output := "FAIL  src/app.test.ts > renders header\nTests  8 passed | 2 failed (10)\n"

	result := r.parseJSUnitOutput(output)
	if result.Passed != 8 || result.Failed != 2 {
		t.Errorf("expected 8 passed / 2 failed, got passed=%d failed=%d", result.Passed, result.Failed)
	}
	if len(result.NewFailures) != 1 {
		t.Errorf("expected one extracted failure line, got %+v", result.NewFailures)
	}
}

func TestParseTSOutput_ExtractsErrorLines(t *testing.T) {
	r := newTestRunner()
	output := "src/app.ts(12,5): error TS2322: Type 'string' is not assignable to type 'number'.\nFound 1 error.\n"

	result := r.parseTSOutput(output)
	if result.Success {
		t.Errorf("expected Success=false when tsc reports an error")
	}
	if len(result.NewFailures) != 1 {
		t.Fatalf("expected one failure, got %+v", result.NewFailures)
	}
	if !strings.HasPrefix(result.NewFailures[0].Name, "src/app.ts") {
		t.Errorf("expected failure name to carry the file path, got %q", result.NewFailures[0].Name)
	}
	if !strings.Contains(result.NewFailures[0].Message, "error TS2322") {
		t.Errorf("expected failure message to carry the TS code, got %q", result.NewFailures[0].Message)
	}
}

func TestParseTSOutput_CleanRunReportsOnePassed(t *testing.T) {
	r := newTestRunner()
	result := r.parseTSOutput("")
	if !result.Success || result.Passed != 1 || result.Failed != 0 {
		t.Errorf("expected a clean tsc run, got %+v", result)
	}
}

func TestClassifyFailures_FiltersKnownFailuresBySubstring(t *testing.T) {
	r := newTestRunner("TestFlakyThing")
	result := r.parseGoOutput("--- FAIL: TestFlakyThing (0.00s)\n--- FAIL: TestRealBug (0.00s)\n")
	r.classifyFailures(&result)

	if len(result.NewFailures) != 1 || result.NewFailures[0].Name != "TestRealBug" {
		t.Fatalf("expected only the unknown failure to remain, got %+v", result.NewFailures)
	}
}

func TestLeadingNumber_ExtractsFromMixedText(t *testing.T) {
	cases := map[string]int{
		"8 passed":   8,
		" 12 failed": 12,
		"no digits":  0,
	}
	for text, want := range cases {
		n, ok := leadingNumber(text)
		if text == "no digits" {
			if ok {
				t.Errorf("expected no digits found in %q", text)
			}
			continue
		}
		if !ok || n != want {
			t.Errorf("leadingNumber(%q) = %d, %v; want %d", text, n, ok, want)
		}
	}
}

func TestTruncateOutput_BoundsLongOutput(t *testing.T) {
	long := strings.Repeat("x", maxOutputChars+500)
	truncated := truncateOutput(long)
	if len(truncated) <= maxOutputChars {
		t.Fatalf("expected truncation marker appended beyond max chars")
	}
	if !strings.Contains(truncated, "[truncated at") {
		t.Errorf("expected truncation marker in output")
	}

	short := "short output"
	if truncateOutput(short) != short {
		t.Errorf("expected short output to pass through unchanged")
	}
}
