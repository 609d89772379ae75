package orchestrator

import "testing"

func TestParseDirectiveDoneForms(t *testing.T) {
	accepted := []string{
		"DONE",
		"DONE.",
		"DONE!",
		"**DONE**",
		"__DONE__",
		"_DONE_",
		"All finished.\nDONE",
		"Wrapped up:\n```\nDONE\n```",
		"  DONE  ",
		"Task complete.\n\n**DONE**",
	}
	for _, text := range accepted {
		if d := ParseDirective(text); d.Kind != DirectiveDone {
			t.Errorf("ParseDirective(%q).Kind = %v, want done", text, d.Kind)
		}
	}

	rejected := []string{
		"done",
		"Done",
		"I am DONE with this part, moving on.",
		"DONE is what I'll say later",
		"The task is nearly DONE now",
		"",
	}
	for _, text := range rejected {
		if d := ParseDirective(text); d.Kind == DirectiveDone {
			t.Errorf("ParseDirective(%q) accepted as done", text)
		}
	}
}

func TestParseDirectiveDoneOnlyInFinalLines(t *testing.T) {
	text := "DONE\nActually wait, there is more to do.\nLet me think.\nStill deciding.\nNot yet."
	if d := ParseDirective(text); d.Kind == DirectiveDone {
		t.Fatalf("DONE far from the end should not complete")
	}
}

func TestParseDirectiveTellWorker(t *testing.T) {
	d := ParseDirective("Tell worker: Create hello.txt with the content \"hello world\"")
	if d.Kind != DirectiveTellWorker {
		t.Fatalf("Kind = %v, want tell_worker", d.Kind)
	}
	if d.Instruction != `Create hello.txt with the content "hello world"` {
		t.Errorf("Instruction = %q", d.Instruction)
	}
	if d.ModelOverride != "" {
		t.Errorf("ModelOverride = %q, want empty", d.ModelOverride)
	}
}

func TestParseDirectiveTellWorkerCaseInsensitive(t *testing.T) {
	for _, text := range []string{
		"tell worker: do the thing",
		"TELL WORKER: do the thing",
		"Tell Worker: do the thing",
		"I looked at the failure.\n\nTell worker: do the thing",
	} {
		d := ParseDirective(text)
		if d.Kind != DirectiveTellWorker {
			t.Errorf("ParseDirective(%q).Kind = %v, want tell_worker", text, d.Kind)
			continue
		}
		if d.Instruction != "do the thing" {
			t.Errorf("ParseDirective(%q).Instruction = %q", text, d.Instruction)
		}
	}
}

func TestParseDirectiveModelOverride(t *testing.T) {
	tests := []struct {
		text  string
		model string
	}{
		{"Tell worker (use haiku): List the repo files", "haiku"},
		{"Tell worker (model: qwen-plus): Summarize main.go", "qwen-plus"},
		{"Tell worker(use claude-opus-4-20250514): Refactor carefully", "claude-opus-4-20250514"},
	}
	for _, tt := range tests {
		d := ParseDirective(tt.text)
		if d.Kind != DirectiveTellWorker {
			t.Errorf("ParseDirective(%q).Kind = %v, want tell_worker", tt.text, d.Kind)
			continue
		}
		if d.ModelOverride != tt.model {
			t.Errorf("ParseDirective(%q).ModelOverride = %q, want %q", tt.text, d.ModelOverride, tt.model)
		}
	}
}

func TestParseDirectiveMalformed(t *testing.T) {
	for _, text := range []string{
		"I think we should use TypeScript.",
		"Tell worker:",
		"Tell worker:    ",
		"Let me consider the options here.",
	} {
		if d := ParseDirective(text); d.Kind != DirectiveMalformed {
			t.Errorf("ParseDirective(%q).Kind = %v, want malformed", text, d.Kind)
		}
	}
}

func TestParseDirectiveDoneWinsOverTellWorker(t *testing.T) {
	d := ParseDirective("Earlier I said Tell worker: check the tests. That worked.\n\nDONE")
	if d.Kind != DirectiveDone {
		t.Fatalf("Kind = %v, want done", d.Kind)
	}
}
