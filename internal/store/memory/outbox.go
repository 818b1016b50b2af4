package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

// LockBatch leases pending events, and in-progress events whose lease expired.
func (s *Store) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var batch []outbox.Event
	for i := range s.events {
		if len(batch) == batchSize {
			break
		}
		ev := &s.events[i]
		expired := ev.Status == outbox.StatusInProgress && now.After(s.leases[ev.ID])
		if ev.Status != outbox.StatusPending && !expired {
			continue
		}
		ev.Status = outbox.StatusInProgress
		ev.RelayID = relayID
		s.leases[ev.ID] = now.Add(lease)
		batch = append(batch, *ev)
	}
	return batch, nil
}

func (s *Store) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if slices.Contains(ids, s.events[i].ID) {
			s.events[i].Status = outbox.StatusSent
			delete(s.leases, s.events[i].ID)
		}
	}
	return nil
}

// MarkFailed puts the event back in the queue until it has failed maxOutboxRetries times.
func (s *Store) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		ev := &s.events[i]
		if ev.ID != id {
			continue
		}
		ev.RetryCount++
		ev.LastError = &errMsg
		ev.Status = outbox.StatusPending
		if ev.RetryCount >= maxOutboxRetries {
			ev.Status = outbox.StatusFailed
		}
		delete(s.leases, id)
	}
	return nil
}

func (s *Store) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := s.now().Add(lease)
	for _, ev := range s.events {
		if ev.RelayID == relayID && slices.Contains(ids, ev.ID) {
			s.leases[ev.ID] = until
		}
	}
	return nil
}
