package narrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-spotter/internal/log"
	"github.com/teslashibe/go-spotter/pkg/detection"
	"github.com/teslashibe/go-spotter/pkg/speech"
)

func dets(pairs ...any) []detection.Detection {
	var out []detection.Detection
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, detection.Detection{Label: pairs[i].(string), Score: pairs[i+1].(float32)})
	}
	return out
}

func TestNarrate_FlushOrder(t *testing.T) {
	rec := speech.NewRecorder()
	n := New(rec, WithLogger(log.Discard()), WithStartupPrompt(""))

	n.Narrate(context.Background(), dets("cat", float32(0.9), "dog", float32(0.7), "bird", float32(0.6)))

	calls := rec.Calls()
	want := []string{
		"cat detected with confidence 0.9",
		"dog detected with confidence 0.7",
		"bird detected with confidence 0.6",
	}
	if diff := cmp.Diff(want, rec.Texts()); diff != "" {
		t.Errorf("texts (-want +got):\n%s", diff)
	}
	for i, c := range calls {
		if !c.Flush {
			t.Errorf("call %d was not a flush", i)
		}
	}
	if diff := cmp.Diff([]string{want[2]}, rec.Audible()); diff != "" {
		t.Errorf("audible (-want +got):\n%s", diff)
	}
}

func TestNarrate_StartupPromptOnce(t *testing.T) {
	rec := speech.NewRecorder()
	n := New(rec, WithLogger(log.Discard()))
	ctx := context.Background()

	n.Narrate(ctx, dets("cat", float32(0.9)))
	if !n.Started() {
		t.Fatal("expected started after first cycle")
	}
	n.Narrate(ctx, dets("dog", float32(0.8)))
	n.Narrate(ctx, nil)

	want := []string{
		"cat detected with confidence 0.9",
		StartupPrompt,
		"dog detected with confidence 0.8",
	}
	if diff := cmp.Diff(want, rec.Texts()); diff != "" {
		t.Errorf("texts (-want +got):\n%s", diff)
	}
}

func TestNarrate_EmptyFirstFrame(t *testing.T) {
	rec := speech.NewRecorder()
	n := New(rec, WithLogger(log.Discard()))

	n.Narrate(context.Background(), nil)
	if diff := cmp.Diff([]string{StartupPrompt}, rec.Texts()); diff != "" {
		t.Errorf("texts (-want +got):\n%s", diff)
	}
}

// Matches the decoded cat/dog/bird example: only the last announcement is audible
// once the startup prompt has already been spoken.
func TestNarrate_DecodedExample(t *testing.T) {
	rec := speech.NewRecorder()
	n := New(rec, WithLogger(log.Discard()))
	n.Narrate(context.Background(), nil)
	rec.Reset()

	d := []detection.Detection{
		{Slot: 0, Label: "cat", Score: 0.9},
		{Slot: 2, Label: "bird", Score: 0.6},
	}
	n.Narrate(context.Background(), d)

	if a, ok := rec.Active(); !ok || a != "bird detected with confidence 0.6" {
		t.Errorf("active: %q", a)
	}
}

func TestNarrate_SpeechErrorsSwallowed(t *testing.T) {
	rec := speech.NewRecorder()
	rec.Err = errors.New("engine not ready")
	n := New(rec, WithLogger(log.Discard()))

	n.Narrate(context.Background(), dets("cat", float32(0.9), "dog", float32(0.8)))
	if len(rec.Calls()) != 3 {
		t.Errorf("expected every call attempted, got %d", len(rec.Calls()))
	}
}
