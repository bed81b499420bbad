package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prgf87/socket-io-chat/internal/models"
)

func newTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	log, err := NewSQLiteLog(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(log.Close)
	return log
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	var last int64
	for _, offset := range []string{"c1", "c2", "c3"} {
		id, outcome, err := log.Append(ctx, "msg "+offset, offset)
		if err != nil {
			t.Fatal(err)
		}
		if outcome != Inserted {
			t.Fatalf("expected Inserted for %s, got %v", offset, outcome)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestAppendDuplicateClientOffset(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	id1, _, err := log.Append(ctx, "hello", "c1")
	if err != nil {
		t.Fatal(err)
	}

	// Same offset, even with different content, resolves to the
	// original row.
	id2, outcome, err := log.Append(ctx, "hello again", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", outcome)
	}
	if id2 != id1 {
		t.Fatalf("duplicate resolved to id %d, want %d", id2, id1)
	}

	count, err := log.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored message, got %d", count)
	}
}

func TestAppendEmptyClientOffset(t *testing.T) {
	log := newTestLog(t)

	_, _, err := log.Append(context.Background(), "hello", "")
	if !errors.Is(err, ErrEmptyClientOffset) {
		t.Fatalf("expected ErrEmptyClientOffset, got %v", err)
	}
}

func TestReadRange(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	offsets := []string{"c1", "c2", "c3", "c4", "c5"}
	for _, o := range offsets {
		if _, _, err := log.Append(ctx, "msg "+o, o); err != nil {
			t.Fatal(err)
		}
	}

	for _, after := range []int64{0, 2, 5, 100} {
		var got []int64
		err := log.ReadRange(ctx, after, func(m models.Message) error {
			got = append(got, m.ID)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		want := int64(len(offsets)) - after
		if want < 0 {
			want = 0
		}
		if int64(len(got)) != want {
			t.Fatalf("ReadRange(%d) returned %d messages, want %d", after, len(got), want)
		}
		for i, id := range got {
			if id != after+int64(i)+1 {
				t.Fatalf("ReadRange(%d)[%d] = id %d, want %d", after, i, id, after+int64(i)+1)
			}
		}
	}
}

func TestReadRangeStops(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	for _, o := range []string{"c1", "c2", "c3"} {
		if _, _, err := log.Append(ctx, "msg", o); err != nil {
			t.Fatal(err)
		}
	}

	var got int
	err := log.ReadRange(ctx, 0, func(models.Message) error {
		got++
		if got == 2 {
			return ErrStopRange
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ErrStopRange should end iteration cleanly, got %v", err)
	}
	if got != 2 {
		t.Fatalf("iterated %d messages, want 2", got)
	}
}

func TestReadRangePropagatesCallbackError(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	if _, _, err := log.Append(ctx, "msg", "c1"); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("emit failed")
	err := log.ReadRange(ctx, 0, func(models.Message) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
