package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling/internal/calendar"
)

// MemoryStore is an in-process Store used by tests and single-node
// deployments without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	windows []Window
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// NewMemoryStoreAt pins the store's clock, so declaration validation is
// deterministic in tests.
func NewMemoryStoreAt(now func() time.Time) *MemoryStore {
	return &MemoryStore{now: now}
}

func sameDate(a, b time.Time) bool {
	return calendar.DateOnly(a).Equal(calendar.DateOnly(b))
}

func (s *MemoryStore) Declare(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) (*Window, bool, error) {
	if err := ValidateWindow(date, start, end, s.now()); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.windows {
		w := &s.windows[i]
		if w.ProviderID == providerID && sameDate(w.Date, date) && w.Start == start && w.End == end {
			existing := *w
			return &existing, false, nil
		}
	}

	w := Window{
		ID:         uuid.New(),
		ProviderID: providerID,
		Date:       calendar.DateOnly(date),
		Start:      start,
		End:        end,
		CreatedAt:  s.now(),
	}
	s.windows = append(s.windows, w)
	return &w, true, nil
}

func (s *MemoryStore) Remove(ctx context.Context, providerID uuid.UUID, date time.Time, start, end calendar.TimeOfDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.windows {
		w := s.windows[i]
		if w.ProviderID == providerID && sameDate(w.Date, date) && w.Start == start && w.End == end {
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			return nil
		}
	}
	return ErrWindowNotFound
}

func (s *MemoryStore) WindowsFor(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Window
	for _, w := range s.windows {
		if w.ProviderID == providerID && sameDate(w.Date, date) {
			out = append(out, w)
		}
	}
	return out, nil
}
