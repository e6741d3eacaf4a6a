package delivery

import (
	"context"
	"sync"

	"github.com/pilot-net/icmp-mon/pkg/types"
)

// FakePublisher is a local Publisher test double: a scriptable in-memory
// stand-in for the downstream, used by tests. Its Reject script is nil by
// default, which accepts every record.
type FakePublisher struct {
	mu sync.Mutex

	// Reject, if set, is called once per submitted record and returns
	// (retryableFailure, permanentErr). A nil Reject accepts everything.
	Reject func(text string) (retry bool, permanent error)

	Submissions [][]types.EncodedRecord // one entry per PutRecordBatch call
	Accepted    int
}

// PutRecordBatch implements Publisher.
func (f *FakePublisher) PutRecordBatch(_ context.Context, _ string, records []types.EncodedRecord) ([]types.EncodedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Submissions = append(f.Submissions, records)

	if f.Reject == nil {
		f.Accepted += len(records)
		return nil, nil
	}

	var failed []types.EncodedRecord
	for _, r := range records {
		retry, permanent := f.Reject(r.Text)
		if permanent != nil {
			return nil, &PermanentError{Err: permanent}
		}
		if retry {
			failed = append(failed, r)
			continue
		}
		f.Accepted++
	}

	return failed, nil
}

// CallCount returns the number of PutRecordBatch invocations observed.
func (f *FakePublisher) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Submissions)
}
