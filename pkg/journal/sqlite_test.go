package journal

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/psantana5/nodehost/pkg/models"
)

func newTestSQLite(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("Failed to open sqlite journal: %v", err)
	}
	return j, path
}

func TestSQLiteAppendRecent(t *testing.T) {
	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 1; i <= 4; i++ {
		ev := models.Event{
			ID:     fmt.Sprintf("ev-%d", i),
			Time:   base.Add(time.Duration(i) * time.Second),
			Type:   models.EventLoaded,
			Name:   "cam",
			Detail: "test event",
		}
		if err := j.Append(ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	events, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Recent(2) returned %d events, want 2", len(events))
	}
	if events[0].ID != "ev-4" || events[1].ID != "ev-3" {
		t.Errorf("Expected newest first [ev-4 ev-3], got [%s %s]", events[0].ID, events[1].ID)
	}
	if events[0].Type != models.EventLoaded || events[0].Name != "cam" {
		t.Errorf("Event fields not preserved: %+v", events[0])
	}
}

// TestSQLitePersistence verifies events survive a close and reopen
func TestSQLitePersistence(t *testing.T) {
	j, path := newTestSQLite(t)

	ev := models.Event{
		ID:   "ev-1",
		Time: time.Now().UTC(),
		Type: models.EventUnloaded,
		Name: "lidar",
	}
	if err := j.Append(ev); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("Failed to reopen journal: %v", err)
	}
	defer reopened.Close()

	events, err := reopened.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "ev-1" {
		t.Errorf("Expected persisted event ev-1, got %+v", events)
	}
}

func TestSQLiteDeleteBefore(t *testing.T) {
	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 1; i <= 6; i++ {
		j.Append(models.Event{
			ID:   fmt.Sprintf("ev-%d", i),
			Time: base.Add(time.Duration(i) * time.Hour),
			Type: models.EventLoaded,
		})
	}

	deleted, err := j.DeleteBefore(base.Add(4 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("DeleteBefore deleted %d events, want 3", deleted)
	}

	if err := j.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}

	events, _ := j.Recent(0)
	if len(events) != 3 {
		t.Errorf("Expected 3 events to remain, got %d", len(events))
	}
}

// TestSQLiteConcurrentAppend verifies parallel writers do not corrupt or
// lose events
func TestSQLiteConcurrentAppend(t *testing.T) {
	j, _ := newTestSQLite(t)
	defer j.Close()

	const writers = 5
	const perWriter = 10

	var wg sync.WaitGroup
	errCh := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ev := models.Event{
					ID:   fmt.Sprintf("w%d-ev%d", w, i),
					Time: time.Now().UTC(),
					Type: models.EventLoaded,
					Name: fmt.Sprintf("instance-%d", w),
				}
				if err := j.Append(ev); err != nil {
					errCh <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("Concurrent Append failed: %v", err)
	}

	events, err := j.Recent(writers * perWriter)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != writers*perWriter {
		t.Errorf("Expected %d events, got %d", writers*perWriter, len(events))
	}

	if err := j.HealthCheck(); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
