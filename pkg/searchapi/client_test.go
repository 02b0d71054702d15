package searchapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funding-cli/internal/resilience"
)

const sampleResponse = `{
  "totalResults": 2,
  "results": [
    {
      "reference": "HORIZON-CL2-2027-01-DEMOCRACY-06_fr",
      "url": "https://ec.europa.eu/info/funding-tenders/opportunities/portal/screen/opportunities/topic-details/HORIZON-CL2-2027-01-DEMOCRACY-06",
      "title": "Démocratie",
      "language": "fr",
      "weight": 3.5,
      "metadata": {"identifier": ["HORIZON-CL2-2027-01-DEMOCRACY-06"], "destinationDescription": ["Innovative Research on Democracy"]}
    },
    {
      "reference": "HORIZON-CL2-2027-01-DEMOCRACY-06_en",
      "title": "Democracy",
      "language": "en",
      "metadata": {"identifier": ["HORIZON-CL2-2027-01-DEMOCRACY-06"], "status": "31094501", "tags": ["a", 1, "b"]}
    }
  ]
}`

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "SEDIA", r.URL.Query().Get("apiKey"))
		assert.Equal(t, `"HORIZON-CL2-2027-01-DEMOCRACY-06"`, r.URL.Query().Get("text"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	got, err := client.Search(context.Background(), " HORIZON-CL2-2027-01-DEMOCRACY-06 ")
	require.NoError(t, err)

	assert.Equal(t, 2, got.TotalResults)
	require.Len(t, got.Results, 2)
	fr, en := got.Results[0], got.Results[1]
	assert.Equal(t, "fr", fr.Language)
	assert.InDelta(t, 3.5, fr.Weight, 0.001)
	assert.Equal(t, "Innovative Research on Democracy", fr.MetaFirst("destinationDescription"))
	assert.Equal(t, "31094501", en.MetaFirst("status"))
	assert.Equal(t, []string{"a", "b"}, en.Meta("tags"))
	assert.Empty(t, en.MetaFirst("missing"))
	assert.Contains(t, string(en.Raw), `"reference": "HORIZON-CL2-2027-01-DEMOCRACY-06_en"`)
}

func TestSearch_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"totalResults":0,"results":[]}`))
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL), fastRetry())
	got, err := client.Search(context.Background(), "T1")
	require.NoError(t, err)
	assert.Empty(t, got.Results)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_ExhaustedRetriesIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL), fastRetry())
	_, err := client.Search(context.Background(), "T1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient("key", WithBaseURL(srv.URL), fastRetry())
	_, err := client.Search(context.Background(), "T1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClient("key", WithBaseURL(srv.URL)).Search(context.Background(), "T1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestSearch_EmptyIdentifier(t *testing.T) {
	t.Parallel()

	_, err := NewClient("key").Search(context.Background(), "  ")
	require.Error(t, err)
}

func TestSearch_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("key", WithBaseURL(srv.URL), WithTimeout(time.Second)).Search(ctx, "T1")
	require.Error(t, err)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalResults":1,"results":[{"title":"x"}]}`))
	}))
	defer srv.Close()

	client := NewClient("key", WithHTTPClient(srv.Client()), WithBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Results[0].Title)
}
