package attendance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/database/mock"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	coord    *attendance.Coordinator
	records  *mock.MockAttendanceRepository
	sessions *mock.MockSessionRepository
	students *mock.MockStudentRepository
	jana     *facematch.Student
	petr     *facematch.Student
}

func newFixture(t *testing.T, open bool) *fixture {
	t.Helper()
	f := &fixture{
		records:  mock.NewMockAttendanceRepository(),
		sessions: mock.NewMockSessionRepository(),
		students: mock.NewMockStudentRepository(),
		jana:     facematch.NewStudent("s1", "Jana Nováková", "CS101"),
		petr:     facematch.NewStudent("s2", "Petr Svoboda", "CS101"),
	}
	f.students.AddStudent(database.StoredStudent{ID: "s1", Name: "Jana Nováková", Course: "CS101"})
	f.students.AddStudent(database.StoredStudent{ID: "s2", Name: "Petr Svoboda", Course: "CS101"})
	f.students.AddStudent(database.StoredStudent{ID: "s3", Name: "Eva Malá", Course: "MA200"})

	s := session.New(session.Info{
		ID: "lec1", CourseID: "CS101", Start: start, End: start.Add(90 * time.Minute),
		LateThresholdMinutes: 15,
	})
	if open {
		if err := s.Open(start); err != nil {
			t.Fatal(err)
		}
	}
	f.sessions.AddSession(s)

	f.coord = attendance.NewCoordinator(f.records, f.sessions, f.students, nil)
	f.coord.SetClock(func() time.Time { return start })
	return f
}

func match(s *facematch.Student, confidence float64) facematch.RecognitionResult {
	return facematch.RecognitionResult{Student: s, Confidence: confidence, Match: confidence >= 70}
}

func TestHandleResult_MarksPresent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	out, err := f.coord.HandleResult(ctx, match(f.jana, 88), start.Add(5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != attendance.OutcomeMarked || out.Status != attendance.StatusPresent {
		t.Fatalf("got %+v, want marked present", out)
	}

	rec, err := f.records.Find(ctx, "s1", "lec1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Method != attendance.MethodAuto || rec.Confidence != 88 {
		t.Errorf("got method=%v confidence=%v", rec.Method, rec.Confidence)
	}
	if rec.IsStatusChanged() {
		t.Error("automatic mark should not count as an operator change")
	}
}

func TestHandleResult_LateAfterThreshold(t *testing.T) {
	f := newFixture(t, true)
	out, err := f.coord.HandleResult(context.Background(), match(f.jana, 90), start.Add(20*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != attendance.StatusLate {
		t.Errorf("status = %v, want late", out.Status)
	}
}

func TestHandleResult_SecondSightingOnlySeen(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.coord.HandleResult(ctx, match(f.jana, 90), start.Add(time.Minute))

	out, err := f.coord.HandleResult(ctx, match(f.jana, 95), start.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != attendance.OutcomeSeen || out.Status != attendance.StatusPresent {
		t.Errorf("got %+v, want seen/present", out)
	}
	rec, _ := f.records.Find(ctx, "s1", "lec1")
	if !rec.LastSeen.Equal(start.Add(30 * time.Minute)) {
		t.Errorf("last seen = %v", rec.LastSeen)
	}
}

func TestHandleResult_Ignored(t *testing.T) {
	tests := []struct {
		name string
		open bool
		res  facematch.RecognitionResult
	}{
		{"no candidate", true, facematch.NoMatch()},
		{"below confirmation band", true, match(nil, 30)},
		{"weak candidate", true, facematch.RecognitionResult{Student: facematch.NewStudent("s1", "", ""), Confidence: 40}},
		{"no open session", false, facematch.RecognitionResult{Student: facematch.NewStudent("s1", "", ""), Confidence: 95, Match: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.open)
			out, err := f.coord.HandleResult(context.Background(), tt.res, start)
			if err != nil {
				t.Fatal(err)
			}
			if out.Kind != attendance.OutcomeIgnored {
				t.Errorf("kind = %v, want ignored", out.Kind)
			}
			if f.records.SaveCalls != 0 {
				t.Errorf("saved %d records", f.records.SaveCalls)
			}
		})
	}
}

func TestHandleResult_SessionLookupError(t *testing.T) {
	f := newFixture(t, true)
	f.sessions.CurrentError = errors.New("db down")
	if _, err := f.coord.HandleResult(context.Background(), match(f.jana, 90), start); err == nil {
		t.Error("expected error")
	}
}

func TestHandleResult_SaveError(t *testing.T) {
	f := newFixture(t, true)
	f.records.SaveError = errors.New("disk full")
	if _, err := f.coord.HandleResult(context.Background(), match(f.jana, 90), start); err == nil {
		t.Error("expected error")
	}
}

func TestHandleResult_ManualAbsentNotOverridden(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	rec := attendance.NewRecord("s1", "lec1", start)
	if err := rec.SetStatus(attendance.StatusAbsent, start); err != nil {
		t.Fatal(err)
	}
	f.records.Save(ctx, rec)

	out, err := f.coord.HandleResult(ctx, match(f.jana, 99), start.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != attendance.OutcomeSeen || out.Status != attendance.StatusAbsent {
		t.Errorf("got %+v, want seen/absent", out)
	}
}

func TestConfirmationFlow(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	events := f.coord.Events().AddListener()
	defer f.coord.Events().RemoveListener(events)

	out, err := f.coord.HandleResult(ctx, match(f.petr, 62), start.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != attendance.OutcomeQueued {
		t.Fatalf("kind = %v, want queued", out.Kind)
	}
	f.coord.HandleResult(ctx, match(f.petr, 66), start.Add(3*time.Minute))

	pending := f.coord.Confirmations().List()
	if len(pending) != 1 || pending[0].Confidence != 66 || pending[0].StudentName != "Petr Svoboda" {
		t.Fatalf("pending = %+v", pending)
	}
	if ev := <-events; ev.Type != "confirmation" {
		t.Errorf("event = %q, want confirmation", ev.Type)
	}

	resolved, err := f.coord.Resolve(ctx, pending[0].ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Kind != attendance.OutcomeMarked || resolved.Status != attendance.StatusPresent {
		t.Errorf("got %+v, want marked present", resolved)
	}
	if f.coord.Confirmations().Len() != 0 {
		t.Error("resolved confirmation should leave the queue")
	}

	if _, err := f.coord.Resolve(ctx, pending[0].ID, true); !errors.Is(err, attendance.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestConfirmationReject(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.coord.HandleResult(ctx, match(f.petr, 55), start)
	c := f.coord.Confirmations().List()[0]

	out, err := f.coord.Resolve(ctx, c.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != attendance.OutcomeRejected {
		t.Errorf("kind = %v, want rejected", out.Kind)
	}
	if _, err := f.records.Find(ctx, "s2", "lec1"); !errors.Is(err, attendance.ErrNotFound) {
		t.Error("rejected confirmation must not create a record")
	}
}

func TestEditAndCommit(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	out, _ := f.coord.HandleResult(ctx, match(f.jana, 90), start)

	note := "left at the break"
	rec, err := f.coord.Edit(ctx, out.RecordID, nil, &note)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsNoteChanged() || rec.IsStatusChanged() {
		t.Errorf("got note=%v status=%v, want note change only", rec.IsNoteChanged(), rec.IsStatusChanged())
	}

	late := attendance.StatusLate
	rec, err = f.coord.Edit(ctx, out.RecordID, &late, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Method != attendance.MethodManual || !rec.IsStatusChanged() {
		t.Errorf("got method=%v changed=%v", rec.Method, rec.IsStatusChanged())
	}

	bad := attendance.Status("sick")
	if _, err := f.coord.Edit(ctx, out.RecordID, &bad, nil); !errors.Is(err, attendance.ErrInvalidStatus) {
		t.Errorf("got %v, want ErrInvalidStatus", err)
	}

	rec, err = f.coord.Commit(ctx, out.RecordID)
	if err != nil {
		t.Fatal(err)
	}
	stored, _ := f.records.Get(ctx, rec.ID)
	if stored.IsDirty() || stored.OriginalStatus() != attendance.StatusLate {
		t.Errorf("after commit dirty=%v original=%v", stored.IsDirty(), stored.OriginalStatus())
	}

	saves := f.records.SaveCalls
	if _, err := f.coord.Commit(ctx, out.RecordID); err != nil {
		t.Fatal(err)
	}
	if f.records.SaveCalls != saves {
		t.Errorf("committing a clean record saved it again (%d -> %d)", saves, f.records.SaveCalls)
	}

	if _, err := f.coord.Edit(ctx, "missing", &late, nil); !errors.Is(err, attendance.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSessionHooks(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	s, _ := f.sessions.Get(ctx, "lec1")

	if err := f.coord.SessionOpened(ctx, s); err != nil {
		t.Fatal(err)
	}
	records, _ := f.coord.Records(ctx, "lec1")
	if len(records) != 2 {
		t.Fatalf("seeded %d records, want 2 (course roster only)", len(records))
	}
	if err := f.coord.SessionOpened(ctx, s); err != nil {
		t.Fatal(err)
	}
	if records, _ := f.coord.Records(ctx, "lec1"); len(records) != 2 {
		t.Errorf("reopening duplicated records: %d", len(records))
	}

	f.coord.HandleResult(ctx, match(f.jana, 90), start.Add(time.Minute))
	f.coord.HandleResult(ctx, match(f.petr, 60), start.Add(time.Minute))

	if err := f.coord.SessionClosed(ctx, s); err != nil {
		t.Fatal(err)
	}
	if f.coord.Confirmations().Len() != 0 {
		t.Error("closing should drop the session's confirmations")
	}

	jana, _ := f.records.Find(ctx, "s1", "lec1")
	petr, _ := f.records.Find(ctx, "s2", "lec1")
	if jana.Status != attendance.StatusPresent {
		t.Errorf("jana = %v, want present", jana.Status)
	}
	if petr.Status != attendance.StatusAbsent || petr.IsStatusChanged() {
		t.Errorf("petr = %v changed=%v, want committed absent", petr.Status, petr.IsStatusChanged())
	}
}

func TestRun_ConsumesObservations(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan attendance.Observation)
	done := make(chan struct{})
	go func() {
		f.coord.Run(ctx, in)
		close(done)
	}()

	in <- attendance.Observation{Result: match(f.jana, 90), CapturedAt: start}
	in <- attendance.Observation{Result: match(f.petr, 91), CapturedAt: start}
	close(in)
	<-done

	records, _ := f.coord.Records(context.Background(), "lec1")
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}
