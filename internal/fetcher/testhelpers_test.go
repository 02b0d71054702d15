package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sells-group/funding-cli/internal/resilience"
	"github.com/sells-group/funding-cli/pkg/searchapi"
)

// writeTestFile is a helper that writes data to a file path.
func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// fakeSearch serves canned Search API responses keyed by identifier.
type fakeSearch struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
	inFlight  int
	maxFlight int
	delay     time.Duration
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeSearch) Search(ctx context.Context, identifier string) (*searchapi.Response, error) {
	f.mu.Lock()
	f.calls[identifier]++
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	body, ok := f.responses[identifier]
	err := f.errs[identifier]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return &searchapi.Response{}, nil
	}
	var resp searchapi.Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *fakeSearch) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// topicResponse builds a one-result response for identifier.
func topicResponse(identifier, destination string) string {
	return fmt.Sprintf(`{"totalResults":1,"results":[{"language":"en","title":"%s","metadata":{"identifier":["%s"],"destinationDescription":["%s"]}}]}`,
		identifier, identifier, destination)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) GetCachedResult(_ context.Context, id string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[id]
	return d, ok, nil
}

func (m *memCache) PutCachedResult(_ context.Context, id string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = data
	return nil
}

func transient429() error {
	return resilience.NewTransientError(fmt.Errorf("searchapi: status 429"), 429)
}
