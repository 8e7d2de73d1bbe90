package attendance

import (
	"errors"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"pending", StatusPending, false},
		{"present", StatusPresent, false},
		{"absent", StatusAbsent, false},
		{"late", StatusLate, false},
		{"excused", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStatus) {
					t.Errorf("got err %v, want ErrInvalidStatus", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %v, %v, want %v", got, err, tt.want)
			}
		})
	}
}

func TestNewRecord_Clean(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	if r.ID == "" {
		t.Fatal("expected generated id")
	}
	if r.Status != StatusPending || r.Method != MethodNone {
		t.Errorf("got %v/%v, want pending/none", r.Status, r.Method)
	}
	if r.IsDirty() {
		t.Error("new record should not be dirty")
	}
}

func TestApplyMatch_LateAfterThreshold(t *testing.T) {
	deadline := base.Add(15 * time.Minute)
	r := NewRecord("s1", "sess1", base)
	r.Note = "brought a doctor's note"
	r.Commit()

	at := base.Add(20 * time.Minute)
	if !r.ApplyMatch(at, 82.5, deadline) {
		t.Fatal("expected status change")
	}
	if r.Status != StatusLate {
		t.Errorf("status = %v, want late", r.Status)
	}
	if r.Method != MethodAuto {
		t.Errorf("method = %v, want auto", r.Method)
	}
	if r.Confidence != 82.5 {
		t.Errorf("confidence = %v, want 82.5", r.Confidence)
	}
	if r.MarkedAt == nil || !r.MarkedAt.Equal(at) {
		t.Errorf("marked at = %v, want %v", r.MarkedAt, at)
	}
	if r.Note != "brought a doctor's note" || r.IsNoteChanged() {
		t.Errorf("note changed to %q", r.Note)
	}
}

func TestApplyMatch_PresentAtDeadline(t *testing.T) {
	deadline := base.Add(15 * time.Minute)
	r := NewRecord("s1", "sess1", base)
	r.ApplyMatch(deadline, 90, deadline)
	if r.Status != StatusPresent {
		t.Errorf("status = %v, want present at the exact deadline", r.Status)
	}
}

func TestApplyMatch_AlreadyMarkedOnlyBumpsLastSeen(t *testing.T) {
	deadline := base.Add(15 * time.Minute)
	r := NewRecord("s1", "sess1", base)
	r.ApplyMatch(base.Add(5*time.Minute), 90, deadline)

	later := base.Add(40 * time.Minute)
	if r.ApplyMatch(later, 99, deadline) {
		t.Fatal("second match should not change status")
	}
	if r.Status != StatusPresent {
		t.Errorf("status = %v, want present", r.Status)
	}
	if r.Confidence != 90 {
		t.Errorf("confidence = %v, want 90", r.Confidence)
	}
	if r.LastSeen == nil || !r.LastSeen.Equal(later) {
		t.Errorf("last seen = %v, want %v", r.LastSeen, later)
	}
}

func TestApplyMatch_ManualAbsentKept(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	if err := r.SetStatus(StatusAbsent, base); err != nil {
		t.Fatal(err)
	}
	if r.ApplyMatch(base.Add(time.Minute), 95, base.Add(time.Hour)) {
		t.Error("match must not override a manual absent")
	}
	if r.Status != StatusAbsent || r.Method != MethodManual {
		t.Errorf("got %v/%v, want absent/manual", r.Status, r.Method)
	}
}

func TestTouch_ClampsToCreation(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	r.touch(base.Add(-time.Hour))
	if r.LastSeen == nil || !r.LastSeen.Equal(base) {
		t.Errorf("last seen = %v, want %v", r.LastSeen, base)
	}

	r.touch(base.Add(time.Minute))
	r.touch(base.Add(30 * time.Second))
	if !r.LastSeen.Equal(base.Add(time.Minute)) {
		t.Errorf("last seen moved backwards to %v", r.LastSeen)
	}
}

func TestChangeTracking_NoteRoundTrip(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	r.SetNote("left early", base)
	if !r.IsNoteChanged() || r.IsStatusChanged() {
		t.Fatalf("got note=%v status=%v, want note change only", r.IsNoteChanged(), r.IsStatusChanged())
	}
	r.SetNote("", base)
	if r.IsDirty() {
		t.Error("restoring the original note should clear the change")
	}
}

func TestChangeTracking_StatusAndCommit(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	if err := r.SetStatus(StatusPresent, base); err != nil {
		t.Fatal(err)
	}
	if !r.IsStatusChanged() {
		t.Fatal("expected status change")
	}
	if r.OriginalStatus() != StatusPending {
		t.Errorf("original = %v, want pending", r.OriginalStatus())
	}

	r.Commit()
	if r.IsDirty() || r.OriginalStatus() != StatusPresent {
		t.Errorf("after commit dirty=%v original=%v", r.IsDirty(), r.OriginalStatus())
	}
}

func TestCommitStatus_KeepsNoteBaseline(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	r.SetNote("pending note", base)
	r.ApplyMatch(base, 90, base.Add(time.Minute))
	r.CommitStatus()

	if r.IsStatusChanged() {
		t.Error("status should be committed")
	}
	if !r.IsNoteChanged() {
		t.Error("note change should survive CommitStatus")
	}
}

func TestRestoreBaseline(t *testing.T) {
	r := &Record{Status: StatusLate, Note: "bus"}
	r.RestoreBaseline(StatusPending, "")
	if !r.IsStatusChanged() || !r.IsNoteChanged() {
		t.Error("restored baseline should differ from current values")
	}
	if r.OriginalNote() != "" {
		t.Errorf("original note = %q, want empty", r.OriginalNote())
	}
}

func TestSetStatus_LastSeenDefaultsToMarkedAt(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	at := base.Add(3 * time.Minute)
	if err := r.SetStatus(StatusPresent, at); err != nil {
		t.Fatal(err)
	}
	if r.LastSeen == nil || !r.LastSeen.Equal(at) {
		t.Errorf("last seen = %v, want %v", r.LastSeen, at)
	}

	seen := NewRecord("s2", "sess1", base)
	seen.ApplyMatch(base.Add(time.Minute), 90, base.Add(time.Hour))
	if err := seen.SetStatus(StatusLate, base.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if !seen.LastSeen.Equal(base.Add(time.Minute)) {
		t.Errorf("manual edit moved last seen to %v", seen.LastSeen)
	}
}

func TestSetStatus(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	r.ApplyMatch(base, 88, base.Add(time.Minute))

	if err := r.SetStatus("sick", base); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("got %v, want ErrInvalidStatus", err)
	}
	if r.Status != StatusPresent {
		t.Errorf("invalid edit changed status to %v", r.Status)
	}

	if err := r.SetStatus(StatusPending, base); err != nil {
		t.Fatal(err)
	}
	if r.Method != MethodNone || r.MarkedAt != nil || r.Confidence != 0 {
		t.Errorf("reset left method=%v marked=%v confidence=%v", r.Method, r.MarkedAt, r.Confidence)
	}
}

func TestMarkAbsent(t *testing.T) {
	pending := NewRecord("s1", "sess1", base)
	if !pending.MarkAbsent(base) || pending.Status != StatusAbsent {
		t.Errorf("pending record: got %v, want absent", pending.Status)
	}

	present := NewRecord("s2", "sess1", base)
	present.ApplyMatch(base, 90, base.Add(time.Minute))
	if present.MarkAbsent(base) {
		t.Error("present record must not become absent")
	}
}

func TestView(t *testing.T) {
	r := NewRecord("s1", "sess1", base)
	r.SetNote("x", base)
	v := r.View()
	if v.StatusChanged || !v.NoteChanged {
		t.Errorf("got status=%v note=%v", v.StatusChanged, v.NoteChanged)
	}
}
