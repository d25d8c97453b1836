package conversation

import "testing"

func TestParseIntent_ReadyWithTaskLine(t *testing.T) {
	reply := "Great, I have everything I need.\nREADY TO START\nTASK: Buy wireless headphones under $100 on the best local store"

	intent := parseIntent(reply)
	if intent == nil || !intent.IsReady {
		t.Fatal("Expected ready intent")
	}
	if intent.Confidence != 0.9 {
		t.Errorf("Expected confidence 0.9 without an explicit marker, got %f", intent.Confidence)
	}
	if intent.TaskDescription != "Buy wireless headphones under $100 on the best local store" {
		t.Errorf("Unexpected task description: %q", intent.TaskDescription)
	}
}

func TestParseIntent_ConfidenceMarkerRaisesConfidence(t *testing.T) {
	reply := "READY TO START\nTASK: Order a pizza from the usual place\nCONFIDENCE: HIGH"

	intent := parseIntent(reply)
	if intent == nil || !intent.IsReady {
		t.Fatal("Expected ready intent")
	}
	if intent.Confidence != 1.0 {
		t.Errorf("Expected confidence 1.0 with an explicit marker, got %f", intent.Confidence)
	}
	if intent.TaskDescription != "Order a pizza from the usual place" {
		t.Errorf("Unexpected task description: %q", intent.TaskDescription)
	}
}

func TestParseIntent_ReadyWithoutTaskLineIsNotReady(t *testing.T) {
	if intent := parseIntent("READY TO START"); intent != nil {
		t.Errorf("Expected nil intent without a task line, got %+v", intent)
	}
	if intent := parseIntent("READY TO START\nTASK:   "); intent != nil {
		t.Errorf("Expected nil intent for an empty task line, got %+v", intent)
	}
}

func TestParseIntent_NotReady(t *testing.T) {
	if intent := parseIntent("Which website would you like me to use?"); intent != nil {
		t.Errorf("Expected nil intent for a clarifying reply, got %+v", intent)
	}
}

func TestParseIntent_MarkersAreCaseInsensitive(t *testing.T) {
	intent := parseIntent("ready to start\ntask: do the thing")
	if intent == nil || !intent.IsReady {
		t.Fatal("Expected ready intent for lowercase markers")
	}
	if intent.TaskDescription != "do the thing" {
		t.Errorf("Unexpected task description: %q", intent.TaskDescription)
	}
}

func TestExtractTask(t *testing.T) {
	if got := extractTask("TASK: do the thing"); got != "do the thing" {
		t.Errorf("Unexpected task: %q", got)
	}
	if got := extractTask("  TASK:   padded  "); got != "padded" {
		t.Errorf("Expected trimmed task text, got %q", got)
	}
	if got := extractTask("no marker here"); got != "" {
		t.Errorf("Expected empty result, got %q", got)
	}
}

func TestExtractTask_ContinuesUntilBlankLine(t *testing.T) {
	reply := "TASK: Search Amazon for noise cancelling headphones\nunder $100 and add the top result to the cart\n\nAnything else?"
	want := "Search Amazon for noise cancelling headphones under $100 and add the top result to the cart"
	if got := extractTask(reply); got != want {
		t.Errorf("Expected continuation lines joined, got %q", got)
	}
}

func TestDisplayContent_StripsMarkers(t *testing.T) {
	reply := "All set!\nREADY TO START\nTASK: Buy the headphones\nCONFIDENCE: HIGH"
	if got := displayContent(reply); got != "All set!" {
		t.Errorf("Expected markers stripped, got %q", got)
	}
}

func TestDisplayContent_StripsTaskContinuation(t *testing.T) {
	reply := "All set!\nTASK: Buy the headphones\nfrom the usual store\n\nSay go when ready."
	if got := displayContent(reply); got != "All set!\n\nSay go when ready." {
		t.Errorf("Expected the whole task block stripped, got %q", got)
	}
}
