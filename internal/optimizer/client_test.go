package optimizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL}), srv
}

func TestOptimizeRejectsEmptyTextLocally(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := client.Optimize(context.Background(), OptimizationRequest{Text: text})
		require.Error(t, err)
		assert.True(t, IsValidation(err), "expected validation error for %q", text)
	}
	assert.Equal(t, int64(0), calls.Load(), "validation failures must not reach the network")
}

func TestOptimizeRejectsUnknownFocus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := client.Optimize(context.Background(), OptimizationRequest{
		Text:  "Summarize the attached report.",
		Focus: []FocusDimension{"speled-rong"},
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestOptimizeNormalizesScores(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/prompt-optimizer/optimize", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"originalText": "You are an AI assistant. Help users.",
			"optimizedText": "You are a helpful assistant. Answer user questions concisely.",
			"scores": {
				"original": {"overall": 5.0, "clarity": {"score": 4.5, "explanation": "vague"}},
				"optimized": {"overall": 8.5, "clarity": {"score": 9.0, "strengths": ["direct"]}}
			},
			"feedback": ["Name the task explicitly."]
		}`))
	}))

	res, err := client.Optimize(context.Background(), OptimizationRequest{Text: "You are an AI assistant. Help users."})
	require.NoError(t, err)

	assert.Equal(t, 8.5, res.Scores.Optimized.Overall)
	assert.Equal(t, 5.0, res.Scores.Original.Overall)
	assert.Equal(t, 3.5, res.ImprovementDelta())
	assert.True(t, res.Improved())

	// Absent nested fields come back as safe zero values, never nil.
	assert.NotNil(t, res.Scores.Original.Robustness.Issues)
	assert.NotNil(t, res.Scores.Optimized.Clarity.Strengths)
	assert.Equal(t, []string{"direct"}, res.Scores.Optimized.Clarity.Strengths)
	assert.Equal(t, []string{}, res.Recommendations)
}

func TestOptimizeFillsMissingTextFields(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	res, err := client.Optimize(context.Background(), OptimizationRequest{Text: "Improve this prompt."})
	require.NoError(t, err)
	assert.Equal(t, "Improve this prompt.", res.OriginalText)
	assert.Equal(t, "Improve this prompt.", res.OptimizedText)
	assert.Equal(t, 0.0, res.ImprovementDelta())
}

func TestOptimizeClassifies429(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "quota exceeded"}`))
	}))

	_, err := client.Optimize(context.Background(), OptimizationRequest{Text: "Draft a launch email."})
	require.Error(t, err)

	rejected, ok := AsServerRejected(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, rejected.Status)
	assert.Equal(t, "quota exceeded", rejected.Message)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestOptimizeClassifiesNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := New(Options{BaseURL: srv.URL})
	_, err := client.Optimize(context.Background(), OptimizationRequest{Text: "Draft a launch email."})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.Contains(t, err.Error(), "check that the backend is running")
}

func TestOptimizeClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	client := New(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := client.Optimize(context.Background(), OptimizationRequest{Text: "Draft a launch email."})
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
}

func TestTestConnectionNeverFailsLoudly(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    bool
	}{
		{
			name: "healthy bare array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"id": "general", "name": "General"}]`))
			},
			want: true,
		},
		{
			name: "healthy wrapped object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"specializations": [{"id": "code"}]}`))
			},
			want: true,
		},
		{
			name: "client error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusNotFound)
			},
			want: false,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: false,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, tc.handler)
			assert.Equal(t, tc.want, client.TestConnection(context.Background()))
		})
	}
}

func TestTestConnectionFalseWhenDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(Options{BaseURL: srv.URL})
	assert.False(t, client.TestConnection(context.Background()))
}

func TestScoreOnlyAcceptsBothBodyShapes(t *testing.T) {
	bare := `{"overall": 7.5, "clarity": {"score": 7.0}}`
	wrapped := `{"scores": {"overall": 6.0, "specificity": {"score": 5.5}}}`

	clientBare, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prompt-scorer/score", r.URL.Path)
		_, _ = w.Write([]byte(bare))
	}))
	set, err := clientBare.ScoreOnly(context.Background(), "Write release notes for v2.")
	require.NoError(t, err)
	assert.Equal(t, 7.5, set.Overall)
	assert.Equal(t, 7.0, set.Clarity.Score)

	clientWrapped, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(wrapped))
	}))
	set, err = clientWrapped.ScoreOnly(context.Background(), "Write release notes for v2.")
	require.NoError(t, err)
	assert.Equal(t, 6.0, set.Overall)
	assert.Equal(t, 5.5, set.Specificity.Score)
}

func TestScoreOnlyRejectsEmptyText(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	_, err := client.ScoreOnly(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestBatchOptimize(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prompt-optimizer/batch-optimize", r.URL.Path)
		_, _ = w.Write([]byte(`{"results": [
			{"id": "a", "optimizedText": "Better A", "scores": {"optimized": {"overall": 8.0}}},
			{"id": "b", "error": "unsupported language"}
		]}`))
	}))

	res, err := client.BatchOptimize(context.Background(), BatchRequest{Items: []BatchItem{
		{ID: "a", Text: "original a"},
		{ID: "b", Text: "original b"},
	}})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	require.NotNil(t, res.Entries[0].Result)
	assert.Equal(t, "original a", res.Entries[0].Result.OriginalText)
	assert.Equal(t, "Better A", res.Entries[0].Result.OptimizedText)
	assert.Equal(t, 8.0, res.Entries[0].Result.Scores.Optimized.Overall)

	assert.Nil(t, res.Entries[1].Result)
	assert.Equal(t, "unsupported language", res.Entries[1].Err)
}

func TestBatchOptimizeValidation(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := client.BatchOptimize(context.Background(), BatchRequest{})
	assert.True(t, IsValidation(err))

	_, err = client.BatchOptimize(context.Background(), BatchRequest{Items: []BatchItem{{ID: "x", Text: " "}}})
	assert.True(t, IsValidation(err))
}

func TestDiscover(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prompt-optimizer/discover", r.URL.Path)
		_, _ = w.Write([]byte(`{"prompt": "You are a code reviewer...", "rationale": "Focuses the model on diffs."}`))
	}))

	res, err := client.Discover(context.Background(), DiscoverRequest{Task: "review pull requests"})
	require.NoError(t, err)
	assert.Equal(t, "You are a code reviewer...", res.Prompt)
	assert.Equal(t, "Focuses the model on diffs.", res.Rationale)
}

func TestBearerCredentialHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	client := New(Options{BaseURL: srv.URL, APIKey: "pp_test_key"})
	_, err := client.Specializations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer pp_test_key", gotAuth)
}

func TestRequestIDHeaderSet(t *testing.T) {
	var gotID string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`[]`))
	}))

	_, err := client.Specializations(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, gotID)
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	client := New(Options{BaseURL: "http://localhost:8000/api/v1/"})
	assert.Equal(t, "http://localhost:8000/api/v1", client.BaseURL())
}
