package plan

import "testing"

func TestParseStepsNumberedList(t *testing.T) {
	output := `Here is the plan:

1. Gather requirements
2. Draft the document
3. Review and send`

	steps, err := ParseSteps(output)
	if err != nil {
		t.Fatalf("ParseSteps failed: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("len = %d, want 3", len(steps))
	}
	if steps[0].Description != "Gather requirements" {
		t.Errorf("steps[0] = %q", steps[0].Description)
	}
	for i, step := range steps {
		if step.Status != "pending" {
			t.Errorf("steps[%d].Status = %q, want pending", i, step.Status)
		}
	}
}

func TestParseStepsAcceptedForms(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   string
	}{
		{"dot", "1. First step", "First step"},
		{"paren", "2) Second step", "Second step"},
		{"dash", "- Bullet step", "Bullet step"},
		{"star", "* Star step", "Star step"},
		{"heading", "### Step 1: Heading step", "Heading step"},
		{"plain heading", "Step 2: Plain step", "Plain step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := ParseSteps(tt.line)
			if err != nil {
				t.Fatalf("ParseSteps(%q) failed: %v", tt.line, err)
			}
			if len(steps) != 1 || steps[0].Description != tt.want {
				t.Errorf("got %v, want one step %q", steps, tt.want)
			}
		})
	}
}

func TestParseStepsNoSteps(t *testing.T) {
	if _, err := ParseSteps("I could not produce a plan for that."); err == nil {
		t.Error("expected error for output without steps")
	}
}

func TestParseStepsSkipsProse(t *testing.T) {
	output := `Sure, here's what I'd do.
1. Only step
That's all.`

	steps, err := ParseSteps(output)
	if err != nil {
		t.Fatalf("ParseSteps failed: %v", err)
	}
	if len(steps) != 1 {
		t.Errorf("len = %d, want 1 (prose lines skipped)", len(steps))
	}
}
