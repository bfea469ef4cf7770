package automation

import (
	"testing"
	"time"
)

func newTracker() (*SpamTracker, *time.Time) {
	now := time.Unix(1700000000, 0)
	t := NewSpamTracker(0, 0, 0)
	t.now = func() time.Time { return now }
	return t, &now
}

func TestSpamWarnThenPunish(t *testing.T) {
	tr, now := newTracker()
	if v := tr.Observe("s", "a"); v != VerdictNone {
		t.Fatalf("first message verdict=%v", v)
	}
	*now = now.Add(time.Second)
	if v := tr.Observe("s", "a"); v != VerdictWarn {
		t.Fatalf("second message verdict=%v", v)
	}
	*now = now.Add(time.Second)
	if v := tr.Observe("s", "a"); v != VerdictNone {
		t.Fatalf("warning should clear the window, got %v", v)
	}
	*now = now.Add(time.Second)
	if v := tr.Observe("s", "a"); v != VerdictPunish {
		t.Fatalf("repeat offender verdict=%v", v)
	}
	*now = now.Add(time.Second)
	if v := tr.Observe("s", "a"); v != VerdictNone {
		t.Fatalf("punish should reset the entry, got %v", v)
	}
}

func TestSpamWindowExpires(t *testing.T) {
	tr, now := newTracker()
	tr.Observe("s", "a")
	*now = now.Add(3 * time.Second)
	if v := tr.Observe("s", "a"); v != VerdictNone {
		t.Fatalf("messages 3s apart are not spam, got %v", v)
	}
}

func TestSpamSendersAndTenantsAreIndependent(t *testing.T) {
	tr, _ := newTracker()
	tr.Observe("s1", "a")
	if v := tr.Observe("s2", "a"); v != VerdictNone {
		t.Fatalf("other tenant verdict=%v", v)
	}
	if v := tr.Observe("s1", "b"); v != VerdictNone {
		t.Fatalf("other sender verdict=%v", v)
	}
	if tr.Len() != 3 || tr.Buckets() != 2 {
		t.Fatalf("len=%d buckets=%d", tr.Len(), tr.Buckets())
	}
}

func TestSpamSweepAndForget(t *testing.T) {
	tr, now := newTracker()
	tr.Observe("s1", "a")
	tr.Observe("s2", "b")
	*now = now.Add(4 * time.Minute)
	tr.Observe("s2", "c")
	*now = now.Add(2 * time.Minute)
	if n := tr.Sweep(); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}
	if tr.Buckets() != 1 || tr.Len() != 1 {
		t.Fatalf("len=%d buckets=%d", tr.Len(), tr.Buckets())
	}
	tr.Forget("s2")
	if tr.Buckets() != 0 {
		t.Fatal("forget left a bucket")
	}
}
