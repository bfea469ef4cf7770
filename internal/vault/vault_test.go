package vault

import (
	"context"
	"sync"
	"testing"

	"github.com/talkincode/wamux/internal/store/storetest"
)

type recordingSink struct {
	mu    sync.Mutex
	pairs [][2]string
}

func (r *recordingSink) AddOrUpdate(_ context.Context, _, pn, lid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, [2]string{pn, lid})
	return nil
}

func TestParseMapping(t *testing.T) {
	cases := []struct {
		name, value, pn, lid string
		ok                   bool
	}{
		{"lid-mapping-1555", `"9988"`, "1555", "9988", true},
		{"lid-mapping-9988_reverse", "1555", "1555", "9988", true},
		{"lid-mapping-", "x", "", "", false},
		{"creds", "x", "", "", false},
		{"lid-mapping-1555", `""`, "", "", false},
	}
	for _, c := range cases {
		pn, lid, ok := parseMapping(c.name, c.value)
		if ok != c.ok || pn != c.pn || lid != c.lid {
			t.Errorf("%s=%s: got %q %q %v", c.name, c.value, pn, lid, ok)
		}
	}
}

func TestVaultForwardsMappings(t *testing.T) {
	s := storetest.New(t)
	sink := &recordingSink{}
	v := New(s.Auth, nil, sink)
	ctx := context.Background()
	const sid = "session_15550001111"

	if err := v.Write(ctx, sid, "lid-mapping-1555", `"AAAA"`); err != nil {
		t.Fatal(err)
	}
	if err := v.Write(ctx, sid, "creds", "{}"); err != nil {
		t.Fatal(err)
	}
	if len(sink.pairs) != 1 || sink.pairs[0] != [2]string{"1555", "AAAA"} {
		t.Fatalf("pairs %v", sink.pairs)
	}
	got, ok, err := v.Read(ctx, sid, "creds")
	if err != nil || !ok || got != "{}" {
		t.Fatalf("read %q %v %v", got, ok, err)
	}
	if err := v.Delete(ctx, sid, "creds"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := v.Read(ctx, sid, "creds"); ok {
		t.Fatal("expected deleted")
	}
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := NewKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter %d", counter)
	}
	if k.Len() != 0 {
		t.Fatalf("expected no held keys, got %d", k.Len())
	}
}
