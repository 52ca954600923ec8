package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewtools/postreview/internal/api"
	"github.com/reviewtools/postreview/internal/errors"
)

func newTestLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Level:  hclog.Debug,
		Output: os.Stderr,
		Name:   "test.postreview",
	})
}

// serverRepo is one repository record hosted by the fake review server.
type serverRepo struct {
	id         int
	name       string
	path       string
	mirrorPath string
	uuid       string

	// noInfoLink omits the info link from the serialized record.
	noInfoLink bool

	// infoFails makes the info sub-resource respond with a fail envelope.
	infoFails bool
}

// fakeServer simulates the registry side of a review server: a root
// resource, a paginated repository listing and per-repository info
// sub-resources.
type fakeServer struct {
	ts       *httptest.Server
	repos    []serverRepo
	pageSize int

	// ignorePathFilter simulates older servers that do not implement the
	// path query argument and return the full listing.
	ignorePathFilter bool

	listRequests atomic.Int64
	infoRequests atomic.Int64
}

func newFakeServer(t *testing.T, repos []serverRepo, pageSize int) *fakeServer {
	t.Helper()

	f := &fakeServer{
		repos:    repos,
		pageSize: pageSize,
	}

	r := chi.NewRouter()
	r.Get("/api/", f.handleRoot)
	r.Get("/api/repositories/", f.handleList)
	r.Get("/api/repositories/{id}/info/", f.handleInfo)

	f.ts = httptest.NewServer(r)
	t.Cleanup(f.ts.Close)

	return f
}

func (f *fakeServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"stat": "ok",
		"links": map[string]any{
			"repositories":    map[string]any{"href": f.ts.URL + "/api/repositories/", "method": "GET"},
			"review_requests": map[string]any{"href": f.ts.URL + "/api/review-requests/", "method": "GET"},
		},
		"capabilities": map[string]any{},
	})
}

func (f *fakeServer) handleList(w http.ResponseWriter, r *http.Request) {
	f.listRequests.Add(1)

	q := r.URL.Query()
	pathFilter := q.Get("path")

	filtered := make([]serverRepo, 0, len(f.repos))
	for _, repo := range f.repos {
		if pathFilter != "" && !f.ignorePathFilter {
			if repo.path != pathFilter && repo.mirrorPath != pathFilter {
				continue
			}
		}
		filtered = append(filtered, repo)
	}

	start := 0
	if s := q.Get("start"); s != "" {
		start, _ = strconv.Atoi(s)
	}

	end := len(filtered)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}
	if start > len(filtered) {
		start = len(filtered)
	}

	items := make([]map[string]any, 0, end-start)
	for _, repo := range filtered[start:end] {
		item := map[string]any{
			"id":          repo.id,
			"name":        repo.name,
			"path":        repo.path,
			"mirror_path": repo.mirrorPath,
			"links":       map[string]any{},
		}
		if !repo.noInfoLink {
			item["links"] = map[string]any{
				"info": map[string]any{
					"href":   fmt.Sprintf("%s/api/repositories/%d/info/", f.ts.URL, repo.id),
					"method": "GET",
				},
			}
		}
		items = append(items, item)
	}

	links := map[string]any{}
	if end < len(filtered) {
		next := *r.URL
		nq := next.Query()
		nq.Set("start", strconv.Itoa(end))
		next.RawQuery = nq.Encode()
		links["next"] = map[string]any{"href": f.ts.URL + next.String(), "method": "GET"}
	}

	writeJSON(w, map[string]any{
		"stat":          "ok",
		"repositories":  items,
		"total_results": len(filtered),
		"links":         links,
	})
}

func (f *fakeServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	f.infoRequests.Add(1)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	for _, repo := range f.repos {
		if repo.id != id {
			continue
		}

		if repo.infoFails {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]any{
				"stat": "fail",
				"err":  map[string]any{"code": 226, "msg": "Unable to fetch repository information"},
			})
			return
		}

		writeJSON(w, map[string]any{
			"stat": "ok",
			"info": map[string]any{"uuid": repo.uuid, "url": repo.path, "root_url": repo.path},
		})
		return
	}

	http.NotFound(w, r)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (f *fakeServer) client(t *testing.T) *api.Client {
	t.Helper()

	c, err := api.NewClient(newTestLogger(), f.ts.URL)
	require.NoError(t, err)

	return c
}

// countingUUID wraps a fixed UUID value so tests can assert how often the
// matcher asked for it.
func countingUUID(uuid string, calls *atomic.Int64) UUIDFunc {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return uuid, nil
	}
}

func TestMatcher_FindByPath(t *testing.T) {
	t.Parallel()

	repos := []serverRepo{
		{id: 1, name: "svn1", path: "https://svn1.example.net/", mirrorPath: "svn+ssh://svn1.example.net/", uuid: "uuid-1"},
		{id: 2, name: "svn2", path: "https://svn2.example.net/", mirrorPath: "svn+ssh://svn2.example.net/", uuid: "uuid-2"},
	}

	tests := []struct {
		name       string
		candidate  Candidate
		wantID     int
		ignoreFlag bool
	}{
		{
			name:      "exact path match",
			candidate: Candidate{Path: "https://svn1.example.net/"},
			wantID:    1,
		},
		{
			name:      "candidate path matches record mirror path",
			candidate: Candidate{Path: "svn+ssh://svn1.example.net/"},
			wantID:    1,
		},
		{
			name: "candidate mirror path matches record path",
			candidate: Candidate{
				Path:       "https://elsewhere.example.net/",
				MirrorPath: "https://svn2.example.net/",
			},
			wantID: 2,
		},
		{
			name:       "server ignoring the path filter still yields the right record",
			candidate:  Candidate{Path: "https://svn2.example.net/"},
			wantID:     2,
			ignoreFlag: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newFakeServer(t, repos, 0)
			srv.ignorePathFilter = tc.ignoreFlag

			m := NewMatcher(newTestLogger(), srv.client(t), "Subversion")

			repo, err := m.Find(t.Context(), tc.candidate)
			require.NoError(t, err)
			require.NotNil(t, repo)
			assert.Equal(t, tc.wantID, repo.ID)
		})
	}
}

func TestMatcher_PathMatchSkipsUUID(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t, []serverRepo{
		{id: 1, name: "svn1", path: "https://svn1.example.net/", uuid: "uuid-1"},
	}, 0)

	var uuidCalls atomic.Int64

	m := NewMatcher(newTestLogger(), srv.client(t), "Subversion")

	repo, err := m.Find(t.Context(), Candidate{
		Path: "https://svn1.example.net/",
		UUID: countingUUID("uuid-1", &uuidCalls),
	})
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, 1, repo.ID)
	assert.Zero(t, uuidCalls.Load(), "UUID must not be computed when a URL tier matches")
	assert.Zero(t, srv.infoRequests.Load())
}

func TestMatcher_FindByUUID(t *testing.T) {
	t.Parallel()

	repos := []serverRepo{
		{id: 1, name: "one", path: "https://one.example.net/", uuid: "uuid-1"},
		{id: 2, name: "two", path: "https://two.example.net/", uuid: "uuid-2"},
		{id: 3, name: "three", path: "https://three.example.net/", uuid: "uuid-3"},
	}

	t.Run("match on a later page", func(t *testing.T) {
		t.Parallel()

		// Page size 2 puts the matching record on the second page.
		srv := newFakeServer(t, repos, 2)

		var uuidCalls atomic.Int64

		m := NewMatcher(newTestLogger(), srv.client(t), "Subversion")

		repo, err := m.Find(t.Context(), Candidate{
			Path: "https://local.example.net/",
			UUID: countingUUID("uuid-3", &uuidCalls),
		})
		require.NoError(t, err)
		require.NotNil(t, repo)
		assert.Equal(t, 3, repo.ID)
		assert.EqualValues(t, 1, uuidCalls.Load(), "UUID must be computed at most once")
	})

	t.Run("record without info link is skipped", func(t *testing.T) {
		t.Parallel()

		srv := newFakeServer(t, []serverRepo{
			{id: 1, name: "broken", path: "https://one.example.net/", noInfoLink: true},
			{id: 2, name: "two", path: "https://two.example.net/", uuid: "uuid-2"},
		}, 0)

		var uuidCalls atomic.Int64

		m := NewMatcher(newTestLogger(), srv.client(t), "Subversion")

		repo, err := m.Find(t.Context(), Candidate{
			Path: "https://local.example.net/",
			UUID: countingUUID("uuid-2", &uuidCalls),
		})
		require.NoError(t, err)
		require.NotNil(t, repo)
		assert.Equal(t, 2, repo.ID)
	})

	t.Run("info transport failure aborts the scan", func(t *testing.T) {
		t.Parallel()

		srv := newFakeServer(t, []serverRepo{
			{id: 1, name: "failing", path: "https://one.example.net/", infoFails: true},
			{id: 2, name: "two", path: "https://two.example.net/", uuid: "uuid-2"},
		}, 0)

		m := NewMatcher(newTestLogger(), srv.client(t), "Subversion")

		repo, err := m.Find(t.Context(), Candidate{
			Path: "https://local.example.net/",
			UUID: countingUUID("uuid-2", new(atomic.Int64)),
		})
		require.Error(t, err)
		require.ErrorIs(t, err, errors.ErrRegistry)
		assert.Nil(t, repo)
	})

	t.Run("empty uuid skips the scan entirely", func(t *testing.T) {
		t.Parallel()

		srv := newFakeServer(t, repos, 0)

		m := NewMatcher(newTestLogger(), srv.client(t), "Bazaar")

		before := srv.listRequests.Load()

		repo, err := m.Find(t.Context(), Candidate{
			Path: "https://local.example.net/",
			UUID: countingUUID("", new(atomic.Int64)),
		})
		require.NoError(t, err)
		assert.Nil(t, repo)

		// One path-filtered listing only, no unfiltered scan.
		assert.EqualValues(t, before+1, srv.listRequests.Load())
	})

	t.Run("uuid computation failure propagates", func(t *testing.T) {
		t.Parallel()

		srv := newFakeServer(t, repos, 0)

		m := NewMatcher(newTestLogger(), srv.client(t), "Subversion")

		repo, err := m.Find(t.Context(), Candidate{
			Path: "https://local.example.net/",
			UUID: func(ctx context.Context) (string, error) {
				return "", fmt.Errorf("svn info failed")
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "svn info failed")
		assert.Nil(t, repo)
	})
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t, []serverRepo{
		{id: 1, name: "one", path: "https://one.example.net/", uuid: "uuid-1"},
	}, 0)

	m := NewMatcher(newTestLogger(), srv.client(t), "Subversion")

	cand := Candidate{
		Path:       "https://nowhere.example.net/",
		MirrorPath: "svn+ssh://nowhere.example.net/",
		UUID:       countingUUID("uuid-none", new(atomic.Int64)),
	}

	repo, err := m.Find(t.Context(), cand)
	require.NoError(t, err, "no match is a terminal outcome, not an error")
	assert.Nil(t, repo)

	// Matching is idempotent against an unchanged registry.
	repo, err = m.Find(t.Context(), cand)
	require.NoError(t, err)
	assert.Nil(t, repo)
}

func TestMatcher_RequiresCandidatePath(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t, nil, 0)

	m := NewMatcher(newTestLogger(), srv.client(t), "Subversion")

	_, err := m.Find(t.Context(), Candidate{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "candidate path is required")
}

func TestMatcher_RegistryFailurePropagates(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]any{
			"stat": "fail",
			"err":  map[string]any{"code": 105, "msg": "Internal server error"},
		})
	}))
	t.Cleanup(ts.Close)

	c, err := api.NewClient(newTestLogger(), ts.URL)
	require.NoError(t, err)

	m := NewMatcher(newTestLogger(), c, "Subversion")

	repo, err := m.Find(t.Context(), Candidate{Path: "https://svn1.example.net/"})
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrRegistry)
	assert.Nil(t, repo)
}
