package transcript

import (
	"testing"

	"github.com/rs/zerolog"
)

type recorder struct {
	updates []Update
}

func (r *recorder) emit(u Update) {
	r.updates = append(r.updates, u)
}

func newTestAggregator() (*Aggregator, *recorder) {
	rec := &recorder{}
	return NewAggregator(rec.emit, zerolog.Nop()), rec
}

func TestAggregator_AppendFinalize(t *testing.T) {
	agg, rec := newTestAggregator()

	agg.Append(SpeakerModel, "Hel")
	agg.Append(SpeakerModel, "lo")
	if !agg.Finalize(SpeakerModel) {
		t.Fatal("Expected finalize to close an open turn")
	}

	if len(rec.updates) != 3 {
		t.Fatalf("Expected 3 updates, got %d", len(rec.updates))
	}

	expected := []struct {
		text  string
		final bool
	}{
		{"Hel", false},
		{"Hello", false},
		{"Hello", true},
	}
	id := rec.updates[0].MessageID
	for i, exp := range expected {
		u := rec.updates[i]
		if u.MessageID != id {
			t.Errorf("Update %d: expected message id %s, got %s", i, id, u.MessageID)
		}
		if u.Text != exp.text {
			t.Errorf("Update %d: expected text %q, got %q", i, exp.text, u.Text)
		}
		if u.Final != exp.final {
			t.Errorf("Update %d: expected final %v, got %v", i, exp.final, u.Final)
		}
		if u.Speaker != SpeakerModel {
			t.Errorf("Update %d: expected speaker model, got %s", i, u.Speaker)
		}
	}

	if _, _, ok := agg.Open(SpeakerModel); ok {
		t.Error("Expected no open turn after finalize")
	}
}

func TestAggregator_FinalizeWithoutTurnIsNoop(t *testing.T) {
	agg, rec := newTestAggregator()

	if agg.Finalize(SpeakerUser) {
		t.Error("Expected finalize to report no open turn")
	}
	if len(rec.updates) != 0 {
		t.Errorf("Expected no updates, got %d", len(rec.updates))
	}
}

func TestAggregator_NewTurnGetsNewID(t *testing.T) {
	agg, rec := newTestAggregator()

	agg.Append(SpeakerUser, "first")
	agg.Finalize(SpeakerUser)
	agg.Append(SpeakerUser, "second")

	if len(rec.updates) != 3 {
		t.Fatalf("Expected 3 updates, got %d", len(rec.updates))
	}
	if rec.updates[0].MessageID == rec.updates[2].MessageID {
		t.Error("Expected a finalized message id never to be reused")
	}
	if rec.updates[2].Text != "second" {
		t.Errorf("Expected text second, got %q", rec.updates[2].Text)
	}
}

func TestAggregator_SpeakersAreIndependent(t *testing.T) {
	agg, rec := newTestAggregator()

	agg.Append(SpeakerUser, "Hi ")
	agg.Append(SpeakerModel, "Hey")
	agg.Append(SpeakerUser, "there")

	userID, userText, ok := agg.Open(SpeakerUser)
	if !ok || userText != "Hi there" {
		t.Errorf("Expected user text 'Hi there', got %q", userText)
	}
	modelID, modelText, ok := agg.Open(SpeakerModel)
	if !ok || modelText != "Hey" {
		t.Errorf("Expected model text Hey, got %q", modelText)
	}
	if userID == modelID {
		t.Error("Expected distinct message ids per speaker")
	}
	if rec.updates[0].MessageID != rec.updates[2].MessageID {
		t.Error("Expected user fragments to share one message id")
	}
}

func TestAggregator_Discard(t *testing.T) {
	agg, rec := newTestAggregator()

	agg.Append(SpeakerModel, "Sure, let me")
	if !agg.Discard(SpeakerModel) {
		t.Fatal("Expected discard to close an open turn")
	}

	if len(rec.updates) != 1 {
		t.Errorf("Expected discard not to emit, got %d updates", len(rec.updates))
	}
	if agg.Finalize(SpeakerModel) {
		t.Error("Expected no open turn after discard")
	}
	if agg.Discard(SpeakerModel) {
		t.Error("Expected second discard to report no open turn")
	}
}

func TestAggregator_Reset(t *testing.T) {
	agg, rec := newTestAggregator()

	agg.Append(SpeakerUser, "a")
	agg.Append(SpeakerModel, "b")
	agg.Reset()

	if len(rec.updates) != 2 {
		t.Errorf("Expected reset not to emit, got %d updates", len(rec.updates))
	}
	if agg.Finalize(SpeakerUser) || agg.Finalize(SpeakerModel) {
		t.Error("Expected no open turns after reset")
	}
}

func TestAggregator_EmptyFragmentIgnored(t *testing.T) {
	agg, rec := newTestAggregator()

	agg.Append(SpeakerUser, "")

	if len(rec.updates) != 0 {
		t.Errorf("Expected no updates, got %d", len(rec.updates))
	}
	if _, _, ok := agg.Open(SpeakerUser); ok {
		t.Error("Expected empty fragment not to open a turn")
	}
}
