package attendance

import (
	"sync"
	"testing"
	"time"
)

func TestConfirmationQueue_AddMerges(t *testing.T) {
	q := NewConfirmationQueue()
	first, added := q.Add(Confirmation{StudentID: "s1", SessionID: "a", Confidence: 55, SeenAt: base})
	if !added || first.ID == "" {
		t.Fatalf("got added=%v id=%q", added, first.ID)
	}

	merged, added := q.Add(Confirmation{StudentID: "s1", SessionID: "a", Confidence: 62, SeenAt: base.Add(time.Minute)})
	if added {
		t.Error("same student and session should merge")
	}
	if merged.ID != first.ID {
		t.Errorf("id = %q, want %q", merged.ID, first.ID)
	}
	if merged.Confidence != 62 {
		t.Errorf("confidence = %v, want 62", merged.Confidence)
	}

	lower, _ := q.Add(Confirmation{StudentID: "s1", SessionID: "a", Confidence: 51, SeenAt: base})
	if lower.Confidence != 62 || !lower.SeenAt.Equal(base.Add(time.Minute)) {
		t.Errorf("got %v at %v, want max confidence and latest sighting", lower.Confidence, lower.SeenAt)
	}

	if _, added := q.Add(Confirmation{StudentID: "s1", SessionID: "b", Confidence: 60, SeenAt: base}); !added {
		t.Error("different session should add a new entry")
	}
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}
}

func TestConfirmationQueue_Take(t *testing.T) {
	q := NewConfirmationQueue()
	c, _ := q.Add(Confirmation{StudentID: "s1", SessionID: "a", Confidence: 55, SeenAt: base})

	got, ok := q.Take(c.ID)
	if !ok || got.StudentID != "s1" {
		t.Fatalf("got %+v, %v", got, ok)
	}
	if _, ok := q.Take(c.ID); ok {
		t.Error("second take should fail")
	}
	if _, added := q.Add(Confirmation{StudentID: "s1", SessionID: "a", Confidence: 55, SeenAt: base}); !added {
		t.Error("after take the key should be free again")
	}
}

func TestConfirmationQueue_ListOrderAndDrop(t *testing.T) {
	q := NewConfirmationQueue()
	q.Add(Confirmation{StudentID: "late", SessionID: "a", SeenAt: base.Add(2 * time.Minute)})
	q.Add(Confirmation{StudentID: "early", SessionID: "a", SeenAt: base})
	q.Add(Confirmation{StudentID: "other", SessionID: "b", SeenAt: base.Add(time.Minute)})

	list := q.List()
	if len(list) != 3 || list[0].StudentID != "early" || list[2].StudentID != "late" {
		t.Fatalf("unexpected order: %+v", list)
	}

	if n := q.DropSession("a"); n != 2 {
		t.Errorf("dropped %d, want 2", n)
	}
	if list := q.List(); len(list) != 1 || list[0].SessionID != "b" {
		t.Errorf("remaining = %+v, want only session b", list)
	}
}

func TestConfirmationQueue_Concurrent(t *testing.T) {
	q := NewConfirmationQueue()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Add(Confirmation{StudentID: "s1", SessionID: "a", Confidence: float64(50 + i%20), SeenAt: base})
		}(i)
	}
	wg.Wait()

	list := q.List()
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Confidence != 69 {
		t.Errorf("confidence = %v, want 69", list[0].Confidence)
	}
}

func TestEventBroadcaster(t *testing.T) {
	var b EventBroadcaster
	ch := b.AddListener()
	b.SendEvent(Event{Type: "marked"})

	select {
	case ev := <-ch:
		if ev.Type != "marked" {
			t.Errorf("type = %q, want marked", ev.Type)
		}
	default:
		t.Fatal("expected event")
	}

	b.RemoveListener(ch)
	if _, ok := <-ch; ok {
		t.Error("listener channel should be closed")
	}
	b.SendEvent(Event{Type: "ignored"})
}
