package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prgf87/socket-io-chat/internal/models"
)

func prefill(t *testing.T, f *fixture, contents ...string) {
	t.Helper()
	ctx := context.Background()
	for i, c := range contents {
		if _, _, err := f.log.Append(ctx, c, "seed-"+string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSlowPathReplaysFromOffset(t *testing.T) {
	f := newFixture(t, time.Minute, 16)
	prefill(t, f, "one", "two", "three")

	em := &recordEmitter{}
	sess, stop := f.connect(t, "", 1, em)
	defer stop()

	waitFor(t, "recovery", func() bool { return sess.State() == StateActive })

	if sess.Recovered() {
		t.Fatal("fresh session must not report fast recovery")
	}
	got := em.ids()
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("replayed ids %v, want [2 3]", got)
	}
}

func TestOfflineClientCatchesUp(t *testing.T) {
	f := newFixture(t, time.Minute, 16)

	emA, emB := &recordEmitter{}, &recordEmitter{}
	sessA, stopA := f.connect(t, "", 0, emA)
	defer stopA()
	sessB, stopB := f.connect(t, "", 0, emB)
	defer stopB()
	waitFor(t, "sessions active", func() bool {
		return sessA.State() == StateActive && sessB.State() == StateActive
	})

	ctx := context.Background()
	if _, err := f.handler(sessA).Submit(ctx, "hello", "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.handler(sessB).Submit(ctx, "hi", "c2"); err != nil {
		t.Fatal(err)
	}

	// A previously offline client reconnects from the beginning.
	emC := &recordEmitter{}
	sessC, stopC := f.connect(t, "", 0, emC)
	defer stopC()
	waitFor(t, "catch-up", func() bool { return len(emC.ids()) == 2 })

	if sessC.Recovered() {
		t.Fatal("unknown session must use the slow path")
	}
	got := emC.ids()
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("caught up with ids %v, want [1 2]", got)
	}
	emC.mu.Lock()
	contents := []string{emC.msgs[0].Content, emC.msgs[1].Content}
	emC.mu.Unlock()
	if contents[0] != "hello" || contents[1] != "hi" {
		t.Fatalf("caught up with contents %v", contents)
	}
}

func TestFastPathReplaysRetainedBuffer(t *testing.T) {
	f := newFixture(t, time.Minute, 16)

	emA := &recordEmitter{}
	sessA, stopA := f.connect(t, "", 0, emA)
	defer stopA()
	emB := &recordEmitter{}
	sessB, stopB := f.connect(t, "", 0, emB)
	waitFor(t, "sessions active", func() bool {
		return sessA.State() == StateActive && sessB.State() == StateActive
	})

	// B drops off; its session is retained.
	stopB()

	ctx := context.Background()
	connA := f.handler(sessA)
	if _, err := connA.Submit(ctx, "while you were away", "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := connA.Submit(ctx, "still away", "c2"); err != nil {
		t.Fatal(err)
	}

	readsBefore := f.log.readCount()

	// B reconnects within the window, presenting its session and offset.
	emB2 := &recordEmitter{}
	sessB2, stopB2 := f.connect(t, sessB.ID, 0, emB2)
	defer stopB2()
	waitFor(t, "fast recovery", func() bool { return sessB2.State() == StateActive })

	if !sessB2.Recovered() {
		t.Fatal("expected fast recovery")
	}
	if sessB2.ID != sessB.ID {
		t.Fatal("fast recovery must restore the same session")
	}
	got := emB2.ids()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("replayed ids %v, want [1 2]", got)
	}
	if f.log.readCount() != readsBefore {
		t.Fatal("fast path must not read the log")
	}
}

func TestExpiredWindowFallsBackToScan(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond, 16)

	emB := &recordEmitter{}
	sessB, stopB := f.connect(t, "", 0, emB)
	waitFor(t, "session active", func() bool { return sessB.State() == StateActive })
	stopB()

	prefill(t, f, "missed")
	time.Sleep(30 * time.Millisecond)

	emB2 := &recordEmitter{}
	sessB2, stopB2 := f.connect(t, sessB.ID, 0, emB2)
	defer stopB2()
	waitFor(t, "slow recovery", func() bool { return sessB2.State() == StateActive })

	if sessB2.Recovered() {
		t.Fatal("expired retention must not fast-recover")
	}
	if sessB2.ID == sessB.ID {
		t.Fatal("expired session id must not be reused")
	}
	got := emB2.ids()
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("replayed ids %v, want [1]", got)
	}
}

func TestOverflowedBufferFallsBackToScan(t *testing.T) {
	f := newFixture(t, time.Minute, 2)

	emA := &recordEmitter{}
	sessA, stopA := f.connect(t, "", 0, emA)
	defer stopA()
	emB := &recordEmitter{}
	sessB, stopB := f.connect(t, "", 0, emB)
	waitFor(t, "sessions active", func() bool {
		return sessA.State() == StateActive && sessB.State() == StateActive
	})
	stopB()

	// Three messages against a buffer of two: the retained buffer can no
	// longer vouch for a gap-free replay.
	ctx := context.Background()
	connA := f.handler(sessA)
	for i, offset := range []string{"c1", "c2", "c3"} {
		if _, err := connA.Submit(ctx, "msg", offset); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	emB2 := &recordEmitter{}
	sessB2, stopB2 := f.connect(t, sessB.ID, 0, emB2)
	defer stopB2()
	waitFor(t, "recovery", func() bool { return len(emB2.ids()) == 3 })

	if sessB2.Recovered() {
		t.Fatal("overflowed buffer must not fast-recover")
	}
	got := emB2.ids()
	for i, id := range got {
		if id != int64(i+1) {
			t.Fatalf("replayed ids %v, want [1 2 3]", got)
		}
	}
}

// burstEmitter floods the log and fanout with n fresh messages from
// inside its first emit, simulating a broadcast burst arriving while a
// reconnect replay is still on the wire.
type burstEmitter struct {
	recordEmitter
	f    *fixture
	n    int
	once sync.Once
}

func (e *burstEmitter) Emit(m models.Message) error {
	e.once.Do(func() {
		ctx := context.Background()
		for i := 0; i < e.n; i++ {
			id, _, err := e.f.log.Append(ctx, "burst", fmt.Sprintf("burst-%d", i))
			if err != nil {
				return
			}
			e.f.fan.Publish(ctx, models.Message{ID: id, Content: "burst"})
		}
	})
	return e.recordEmitter.Emit(m)
}

func TestBurstDuringFastReplayFallsBackToScan(t *testing.T) {
	f := newFixture(t, time.Minute, 2)

	emB := &recordEmitter{}
	sessB, stopB := f.connect(t, "", 0, emB)
	waitFor(t, "session active", func() bool { return sessB.State() == StateActive })
	stopB()

	other := f.reg.Connect("", 0)
	if _, err := f.handler(other).Submit(context.Background(), "while away", "c1"); err != nil {
		t.Fatal(err)
	}

	// Reconnect with a buffer of two; the replay of message 1 triggers
	// three more broadcasts, overflowing the buffer mid-recovery.
	emB2 := &burstEmitter{f: f, n: 3}
	sessB2, stopB2 := f.connect(t, sessB.ID, 0, emB2)
	defer stopB2()

	waitFor(t, "recovery completes via scan", func() bool { return len(emB2.ids()) == 4 })

	if !sessB2.Recovered() {
		t.Fatal("reconnect within the window must enter the fast path")
	}
	if sessB2.State() != StateActive {
		t.Fatalf("state %s, want active", sessB2.State())
	}
	got := emB2.ids()
	for i, id := range got {
		if id != int64(i+1) {
			t.Fatalf("replayed ids %v, want [1 2 3 4]", got)
		}
	}
}

func TestScanFailureLeavesSessionConnected(t *testing.T) {
	f := newFixture(t, time.Minute, 16)
	prefill(t, f, "one", "two", "three")
	f.log.readErr = errors.New("storage hiccup")
	f.log.failAfter = 1

	em := &recordEmitter{}
	sess, stop := f.connect(t, "", 0, em)
	defer stop()

	waitFor(t, "partial recovery", func() bool { return sess.State() == StateActive })

	// Only the portion before the failure was replayed.
	if got := em.ids(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("replayed ids %v, want [1]", got)
	}

	// The session is still live and keeps receiving broadcasts.
	f.log.mu.Lock()
	f.log.readErr = nil
	f.log.mu.Unlock()

	other := f.reg.Connect("", 3)
	if _, err := f.handler(other).Submit(context.Background(), "fresh", "c4"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "live delivery", func() bool {
		ids := em.ids()
		return len(ids) == 2 && ids[1] == 4
	})
}
