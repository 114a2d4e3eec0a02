package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"rxbench/internal/cratesio"
	"rxbench/internal/fetcher"
	_ "rxbench/internal/fetcher/providers"
	gh "rxbench/internal/github"
	"rxbench/internal/logging"
	"rxbench/internal/results"
	"rxbench/internal/workspace"
)

type registryServer struct {
	*httptest.Server
	calls int32
}

// newRegistryServer serves GitHub and crates.io answers for acme/widget only.
func newRegistryServer(t *testing.T) *registryServer {
	t.Helper()
	s := &registryServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		fmt.Fprint(w, `{"name":"widget","stargazers_count":321}`)
	})
	mux.HandleFunc("/api/v1/crates/widget", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		fmt.Fprint(w, `{"crate":{"name":"widget","downloads":98765}}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestFetcher(t *testing.T, serverURL string) *fetcher.Fetcher {
	t.Helper()
	client, err := gh.NewClient(context.Background(), "dummy-token", gh.WithBaseURL(serverURL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	crates := cratesio.New(nil)
	crates.BaseURL = serverURL

	f, err := fetcher.NewFetcher(fetcher.Options{
		GitHub:       client,
		Crates:       crates,
		Budget:       fetcher.NewRequestBudget(),
		CratesBudget: fetcher.NewRequestBudget(),
		Logger:       logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewFetcher failed: %v", err)
	}
	return f
}

func TestSubjectFor(t *testing.T) {
	s := subjectFor(workspace.Target{Name: "widget", URL: "https://github.com/acme/widget"})
	if s.Owner != "acme" || s.Repo != "widget" || s.Crate != "widget" {
		t.Fatalf("unexpected subject: %+v", s)
	}

	local := subjectFor(workspace.Target{Name: "demo", Local: true})
	if local.Owner != "" || local.Repo != "" || local.Crate != "demo" {
		t.Fatalf("unexpected subject for local target: %+v", local)
	}
}

func TestPrefetchPopularity(t *testing.T) {
	srv := newRegistryServer(t)
	f := newTestFetcher(t, srv.URL)

	targets := []workspace.Target{
		{Name: "widget", URL: "https://github.com/acme/widget"},
		{Name: "gadget", URL: "https://github.com/acme/gadget"},
		{Name: "local", Local: true},
	}
	pops := prefetchPopularity(context.Background(), f, targets, 2, logging.Discard())
	if len(pops) != len(targets) {
		t.Fatalf("expected %d entries, got %d", len(targets), len(pops))
	}

	if pops[0].Stars != results.Of(321) || pops[0].Downloads != results.Of(98765) {
		t.Fatalf("unexpected widget popularity: %+v", pops[0])
	}
	if pops[1].Stars.Available() || pops[1].Downloads.Available() {
		t.Fatalf("expected unknown repository to stay unavailable, got %+v", pops[1])
	}
	if pops[2].Stars.Available() {
		t.Fatalf("expected no stars for a target without a GitHub URL, got %+v", pops[2])
	}
}

func TestPrefetchPopularity_NilFetcher(t *testing.T) {
	pops := prefetchPopularity(context.Background(), nil, []workspace.Target{{Name: "a"}, {Name: "b"}}, 4, logging.Discard())
	if len(pops) != 2 {
		t.Fatalf("expected index-aligned result, got %d", len(pops))
	}
	for _, p := range pops {
		if p.Stars.Available() || p.Downloads.Available() {
			t.Fatalf("expected unavailable popularity, got %+v", p)
		}
	}
}
