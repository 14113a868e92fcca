package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planhub/api/internal/store"
)

type captureStore struct {
	store.Store
	mu      sync.Mutex
	traffic []store.Traffic
	logs    []store.LogEntry
	fail    bool
}

func (c *captureStore) InsertTraffic(ctx context.Context, t store.Traffic) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("insert failed")
	}
	c.traffic = append(c.traffic, t)
	return nil
}

func (c *captureStore) InsertLog(ctx context.Context, entry store.LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("insert failed")
	}
	c.logs = append(c.logs, entry)
	return nil
}

func TestRecorderWritesTrafficAndLogs(t *testing.T) {
	st := &captureStore{}
	healthID := uuid.New()
	r := NewRecorder(st, zap.NewNop(), healthID, "10.0.0.1", 8)

	r.Traffic(store.Traffic{ID: uuid.New(), Method: "GET", Path: "/api/plans", Code: 200})
	trafficID := uuid.New()
	r.Error(&trafficID, "boom")
	r.Info(nil, "started")
	r.Close()

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.traffic) != 1 {
		t.Fatalf("expected 1 traffic row, got %d", len(st.traffic))
	}
	if st.traffic[0].HealthID != healthID {
		t.Fatalf("traffic row missing health id")
	}
	if len(st.logs) != 2 {
		t.Fatalf("expected 2 log rows, got %d", len(st.logs))
	}
	if st.logs[0].Kind != KindError || st.logs[0].Message != "boom" || st.logs[0].NodeIP != "10.0.0.1" {
		t.Fatalf("unexpected error row: %+v", st.logs[0])
	}
	if st.logs[0].TrafficID == nil || *st.logs[0].TrafficID != trafficID {
		t.Fatalf("error row should carry the traffic id")
	}
	if st.logs[1].TrafficID != nil {
		t.Fatalf("info row without request context should have nil traffic id")
	}
}

func TestRecorderSwallowsWriteFailures(t *testing.T) {
	st := &captureStore{fail: true}
	r := NewRecorder(st, zap.NewNop(), uuid.New(), "10.0.0.1", 8)
	r.Info(nil, "will fail")
	r.Close()
}

func TestRecorderDropsWhenFull(t *testing.T) {
	st := &captureStore{}
	r := NewRecorder(st, zap.NewNop(), uuid.New(), "10.0.0.1", 1)
	for i := 0; i < 100; i++ {
		r.Info(nil, "burst")
	}
	r.Close()

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.logs) > 100 {
		t.Fatalf("impossible log count %d", len(st.logs))
	}
}

func TestRecorderEnqueueAfterCloseIsSafe(t *testing.T) {
	st := &captureStore{}
	r := NewRecorder(st, zap.NewNop(), uuid.New(), "10.0.0.1", 8)
	r.Close()
	r.Info(nil, "late")
}
