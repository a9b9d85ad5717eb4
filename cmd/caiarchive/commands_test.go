package main

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/caiarchive/internal/api"
	"github.com/kalambet/caiarchive/internal/config"
	"github.com/kalambet/caiarchive/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"decision not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

// useServer points the CLI at baseURL for the duration of the test.
func useServer(t *testing.T, baseURL string) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) {
		return &apiClient{baseURL: baseURL, httpClient: http.DefaultClient}, nil
	}
	t.Cleanup(func() { newAPIClient = old })
}

// execute runs the root command with args and returns its stdout. Flags are
// reset first since cobra commands are package globals.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)

	oldColor := noColor
	noColor = true
	defer func() { noColor = oldColor }()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestSearchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/decisions/search": `{"decisions":[{"id":7,"decision_number":"1012345-S","decision_date":"2024-03-01","subject":"Ville de Laval - caméras"}],"total":1,"page":1,"limit":5,"pages":1}`,
	})
	useServer(t, ts.server.URL)

	out, err := execute(t, "search", "caméras", "--year", "2024", "--org", "Laval", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	q := ts.requests[0].Query
	if q.Get("q") != "caméras" || q.Get("year") != "2024" || q.Get("organization") != "Laval" || q.Get("limit") != "5" {
		t.Errorf("query = %v", q)
	}
	if q.Has("page") {
		t.Errorf("page 1 should not be sent, got %q", q.Get("page"))
	}

	if !strings.Contains(out, "1012345-S  2024-03-01  Ville de Laval - caméras") {
		t.Errorf("output missing decision row:\n%s", out)
	}
	if !strings.Contains(out, "Page 1 of 1 (1 decisions)") {
		t.Errorf("output missing footer:\n%s", out)
	}
}

func TestSearchCommand_NoResults(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/decisions/search": `{"decisions":[],"total":0,"page":1,"limit":20,"pages":0}`,
	})
	useServer(t, ts.server.URL)

	out, err := execute(t, "search", "nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "No decisions found." {
		t.Errorf("output = %q", out)
	}
	if ts.requests[0].Query.Has("year") {
		t.Error("year flag leaked from an earlier run")
	}
}

func TestSearchCommand_AgainstAPI(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	_, err = store.Upsert(context.Background(), storage.Decision{
		DecisionNumber: "1009999-S",
		DecisionDate:   "2024-09-12",
		Subject:        "Hydro-Quebec - acces aux factures",
		Organization:   "Hydro-Quebec",
		Year:           2024,
		PDFText:        sql.NullString{String: "montant des factures", Valid: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(api.NewHandler(api.AppDeps{Store: store}))
	t.Cleanup(srv.Close)
	useServer(t, srv.URL)

	out, err := execute(t, "search", "factures")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "1009999-S") {
		t.Errorf("output missing decision:\n%s", out)
	}

	d, err := store.GetDecisionByNumber(context.Background(), "1009999-S")
	if err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "show", strconv.FormatInt(d.ID, 10))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "montant des factures") || !strings.Contains(out, "Organization: Hydro-Quebec") {
		t.Errorf("show output:\n%s", out)
	}
}

func TestShowCommand_InvalidID(t *testing.T) {
	_, err := execute(t, "show", "abc")
	if err == nil || !strings.Contains(err.Error(), "invalid decision id") {
		t.Fatalf("err = %v, want invalid decision id", err)
	}
}

func TestShowCommand_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	useServer(t, ts.server.URL)

	_, err := execute(t, "show", "42")
	if err == nil {
		t.Fatal("expected error for missing decision")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "decision not found") {
		t.Errorf("err = %v", err)
	}
	if ts.requests[0].Path != "/api/decisions/42" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
}

func TestShowCommand_JSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/decisions/3": `{"id":3,"decision_number":"1000003-S","pdf_text":null}`,
	})
	useServer(t, ts.server.URL)

	out, err := execute(t, "show", "3", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"decision_number": "1000003-S"`) || !strings.Contains(out, `"pdf_text": null`) {
		t.Errorf("json output:\n%s", out)
	}
}

func TestPrintDecision_TextStates(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	empty := ""
	tests := []struct {
		name string
		text *string
		want string
	}{
		{"never extracted", nil, "(text not extracted yet)"},
		{"nothing found", &empty, "(no text could be extracted)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			printDecision(&buf, decision{DecisionNumber: "1-S", PDFText: tc.text})
			if !strings.Contains(buf.String(), tc.want) {
				t.Errorf("output = %q, want %q", buf.String(), tc.want)
			}
		})
	}
}

func TestStatsCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/decisions/stats/summary": `{"total":4,"withExtractedText":3,"extractionPercentage":75,"yearBreakdown":[{"year":2024,"count":3},{"year":2023,"count":1}]}`,
	})
	useServer(t, ts.server.URL)

	out, err := execute(t, "stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Decisions: 4", "With text: 3 (75.0%)", "2024  3", "2023  1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/decisions/history": `[{"run_id":"r-2","scraped_at":"2024-06-02T02:00:00Z","records_added":5,"records_updated":2,"records_skipped":1,"status":"failed"}]`,
	})
	useServer(t, ts.server.URL)

	out, err := execute(t, "history", "--limit", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Query.Get("limit") != "1" {
		t.Errorf("limit = %q", ts.requests[0].Query.Get("limit"))
	}
	if !strings.Contains(out, "2024-06-02T02:00:00Z  failed  r-2  +5 ~2 !1") {
		t.Errorf("output:\n%s", out)
	}
}

func TestHistoryCommand_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/decisions/history": `[]`,
	})
	useServer(t, ts.server.URL)

	out, err := execute(t, "history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "No runs recorded." {
		t.Errorf("output = %q", out)
	}
}

func TestServerNotReachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	useServer(t, srv.URL)

	_, err := execute(t, "stats")
	if err == nil || !strings.Contains(err.Error(), "server not reachable") {
		t.Fatalf("err = %v", err)
	}
}

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		q     string
		year  int
		org   string
		page  int
		limit int
		want  string
	}{
		{"empty", "", 0, "", 1, 0, "/api/decisions/search?"},
		{"text", "accès", 0, "", 1, 20, "/api/decisions/search?limit=20&q=acc%C3%A8s"},
		{"all", "a b", 2023, "Ville", 3, 10, "/api/decisions/search?limit=10&organization=Ville&page=3&q=a+b&year=2023"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := searchQuery(tc.q, tc.year, tc.org, tc.page, tc.limit); got != tc.want {
				t.Errorf("searchQuery = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("décision", 3); got != "déc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("court", 10); got != "court" {
		t.Errorf("truncate = %q", got)
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorRed, "hello")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	result = colorize(colorRed, "hello")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestScheduleLabel(t *testing.T) {
	var cfg config.Config
	if scheduleLabel(cfg) != "disabled" {
		t.Errorf("label = %q", scheduleLabel(cfg))
	}
	cfg.Schedule = config.ScheduleConfig{Enabled: true, ScrapeCron: "0 2 * * *", RepairCron: "0 3 * * *"}
	if got := scheduleLabel(cfg); got != `scrape "0 2 * * *", repair "0 3 * * *"` {
		t.Errorf("label = %q", got)
	}
}
