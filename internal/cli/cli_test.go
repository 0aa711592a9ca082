package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/flaircheck/internal/bot"
	"github.com/ppiankov/flaircheck/internal/classify"
	"github.com/ppiankov/flaircheck/internal/config"
	"github.com/ppiankov/flaircheck/internal/reddit"
	"github.com/ppiankov/flaircheck/internal/store"
)

// fakeAPI serves canned search results and records every moderation call.
type fakeAPI struct {
	mu        sync.Mutex
	unflaired []reddit.Post
	upcoming  []reddit.Post
	calls     []string
}

func (f *fakeAPI) Search(_ context.Context, params reddit.SearchParams) (reddit.Listing, error) {
	if strings.HasPrefix(params.Query, "flair:") {
		return reddit.Listing{Posts: f.upcoming}, nil
	}
	return reddit.Listing{Posts: f.unflaired}, nil
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeAPI) Comment(_ context.Context, id, _ string) error {
	return f.record("comment " + id)
}

func (f *fakeAPI) SetFlair(_ context.Context, _, link, class, _ string) error {
	return f.record("flair " + link + " " + class)
}

func (f *fakeAPI) Remove(_ context.Context, id string, _ bool) error {
	return f.record("remove " + id)
}

func (f *fakeAPI) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func writeTestConfig(t *testing.T, dir, dbPath string) {
	t.Helper()
	cfg := `subreddit: uhcmatches
flairs:
  upcoming:
    class: upcoming
    text: Upcoming Match
  completed:
    class: completed
    text: Completed Match
  invalid: invalid
storage:
  path: ` + dbPath + `
log:
  level: error
`
	if err := os.WriteFile(filepath.Join(dir, config.DefaultConfigFile), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// setupCLI points the commands at a fresh config dir and fake API.
func setupCLI(t *testing.T, api *fakeAPI) (dir, dbPath string) {
	t.Helper()
	dir = t.TempDir()
	dbPath = filepath.Join(dir, "ledger.db")
	writeTestConfig(t, dir, dbPath)

	oldNewAPI := newAPI
	t.Cleanup(func() { newAPI = oldNewAPI })
	newAPI = func(context.Context, *config.Config) (bot.API, error) { return api, nil }
	return dir, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	runFormat = "terminal"
	noColor = false
	explainCreated, explainNow = "", ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}

func title(at time.Time, rest string) string {
	return at.UTC().Format(classify.DateLayout) + " " + rest
}

func TestRunCommand_EndToEnd(t *testing.T) {
	now := time.Now().UTC()
	created := now.Add(-time.Hour)
	api := &fakeAPI{
		unflaired: []reddit.Post{
			{Name: "t3_valid", Title: title(now.Add(48*time.Hour), "EU - FFA"), CreatedAt: created},
			{Name: "t3_past", Title: title(now.Add(-48*time.Hour), "NA - Teams"), CreatedAt: created},
			{Name: "t3_bad", Title: "who wants to play", CreatedAt: created},
			{Name: "t3_young", Title: "nope", CreatedAt: now},
		},
		upcoming: []reddit.Post{
			{Name: "t3_done", Title: title(now.Add(-3*time.Hour), "EU"), CreatedAt: created},
		},
	}
	dir, dbPath := setupCLI(t, api)

	out, err := execute(t, "--config", dir, "run", "--format", "json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}

	var rep struct {
		Titles struct {
			Grace   int `json:"within_grace_period"`
			Valid   int `json:"valid_schedule"`
			Past    int `json:"past_schedule"`
			Invalid int `json:"invalid_format"`
		} `json:"titles"`
		Completed struct {
			Flaired int `json:"flaired"`
		} `json:"completed"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if rep.Titles.Valid != 1 || rep.Titles.Past != 1 || rep.Titles.Invalid != 1 || rep.Titles.Grace != 1 {
		t.Fatalf("unexpected title counts: %+v", rep.Titles)
	}
	if rep.Completed.Flaired != 1 {
		t.Fatalf("completed flaired = %d", rep.Completed.Flaired)
	}

	for _, call := range []string{
		"flair t3_valid upcoming",
		"comment t3_past", "remove t3_past",
		"comment t3_bad", "remove t3_bad",
		"flair t3_done completed",
	} {
		if api.count(call) != 1 {
			t.Errorf("%q called %d times", call, api.count(call))
		}
	}

	// A second run sees every checked post in the ledger.
	if out, err := execute(t, "--config", dir, "run", "--format", "terminal", "--no-color"); err != nil {
		t.Fatalf("second run: %v\n%s", err, out)
	}
	if api.count("comment t3_bad") != 1 {
		t.Fatalf("invalid post handled twice")
	}

	ledger, err := store.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()
	n, err := ledger.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("ledger has %d records, want 3", n)
	}
}

func TestRunCommand_BadFormat(t *testing.T) {
	dir, _ := setupCLI(t, &fakeAPI{})
	if _, err := execute(t, "--config", dir, "run", "--format", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestPruneCommand(t *testing.T) {
	dir, dbPath := setupCLI(t, &fakeAPI{})
	ctx := context.Background()

	ledger, err := store.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	_ = ledger.Insert(ctx, "t3_ancient", time.Now().AddDate(-2, 0, 0))
	_ = ledger.Insert(ctx, "t3_fresh", time.Now())
	_ = ledger.Close()

	out, err := execute(t, "--config", dir, "prune")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	requireContains(t, out, "Pruned 1 checks older than 6 months")
}

func TestExplainCommand(t *testing.T) {
	dir, _ := setupCLI(t, &fakeAPI{})

	cases := []struct {
		args []string
		want []string
	}{
		{
			args: []string{"Dec 31 23:59 EU", "--now", "2024-01-10T00:00:00Z"},
			want: []string{"outcome:  past_schedule", "schedule: 2023-12-31T23:59:00Z", "remove"},
		},
		{
			args: []string{"Jan 12 18:00 EU", "--now", "2024-01-10T00:00:00Z"},
			want: []string{"outcome:  valid_schedule", "2 days from now", `set flair "Upcoming Match"`},
		},
		{
			args: []string{"Feb 30 10:00", "--now", "2024-01-10T00:00:00Z"},
			want: []string{"outcome:  invalid_format", "unparseable date"},
		},
		{
			args: []string{"hello", "--now", "2024-01-10T00:00:00Z", "--created", "2024-01-09T23:59:30Z"},
			want: []string{"outcome:  within_grace_period", "30s old"},
		},
	}
	for _, tc := range cases {
		out, err := execute(t, append([]string{"--config", dir, "explain"}, tc.args...)...)
		if err != nil {
			t.Fatalf("explain %v: %v", tc.args, err)
		}
		for _, want := range tc.want {
			requireContains(t, out, want)
		}
	}
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")

	out, err := execute(t, "--config", dir, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "with 2 files")

	for _, name := range []string{config.DefaultConfigFile, exampleEnvFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not created: %v", name, err)
		}
	}

	out, err = execute(t, "--config", dir, "init")
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	requireContains(t, out, "already initialized")
}

func TestExampleConfigLoads(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "--config", dir, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Subreddit != "uhcmatches" || cfg.Flairs.Upcoming.Class != "upcoming" {
		t.Fatalf("unexpected example config: %+v", cfg)
	}
}

func TestDoctorCommand_MissingCredentials(t *testing.T) {
	dir, _ := setupCLI(t, &fakeAPI{})

	out, err := execute(t, "--config", dir, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail without credentials")
	}
	requireContains(t, out, "[ OK ] config.yaml (r/uhcmatches, sqlite ledger")
	requireContains(t, out, "[FAIL] reddit credentials missing")
	requireContains(t, out, "[ OK ] ledger")
}

func TestDoctorCommand_AllGood(t *testing.T) {
	dir, _ := setupCLI(t, &fakeAPI{})
	t.Setenv("T_ID", "id")
	t.Setenv("T_SECRET", "secret")
	t.Setenv("T_USER", "modbot")
	t.Setenv("T_PASS", "pw")
	f, err := os.OpenFile(filepath.Join(dir, config.DefaultConfigFile), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	_, _ = f.WriteString("reddit:\n  client_id_env: T_ID\n  client_secret_env: T_SECRET\n  username_env: T_USER\n  password_env: T_PASS\n")
	_ = f.Close()

	out, err := execute(t, "--config", dir, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "reddit credentials for u/modbot")
	requireContains(t, out, "All checks passed.")
}
