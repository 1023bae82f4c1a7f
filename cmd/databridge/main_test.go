package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "databridge.db"))
	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABRIDGE_CONFIG", "")
	return dir
}

func TestRulesCheckBuiltIn(t *testing.T) {
	out, err := runCLI(t, "rules", "check")
	if err != nil {
		t.Fatalf("rules check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "built-in rules") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRulesCheckReportsMalformedRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := `validation:
  - id: 7
    importType: Permit
    field: valuation
    type: Range
    config: { min: "abc" }
    message: bad
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "rules", "check", path, "--json")
	if err == nil {
		t.Fatalf("expected malformed rule error, got output %q", out)
	}

	var problems []ruleProblem
	if jsonErr := json.Unmarshal([]byte(out), &problems); jsonErr != nil {
		t.Fatalf("decode: %v\n%s", jsonErr, out)
	}
	if len(problems) != 1 || problems[0].ID != 7 || problems[0].Kind != "validation" {
		t.Fatalf("unexpected problems: %+v", problems)
	}
}

func TestImportThenListJobs(t *testing.T) {
	dir := useSQLite(t)
	csvPath := filepath.Join(dir, "permits.csv")
	csv := "PERMIT NUMBER,ISSUE DATE,SITE ADDRESS\nB-1,06/01/2024,1 Elm St\n,06/02/2024,2 Elm St\n"
	if err := os.WriteFile(csvPath, []byte(csv), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "import", "permits", csvPath, "--json")
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	var job models.ImportJob
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode job: %v\n%s", err, out)
	}
	if job.Status != models.JobStatusCompleted || job.RecordsTotal != 2 || job.RecordsFailed != 1 {
		t.Fatalf("unexpected job: %+v", job)
	}

	out, err = runCLI(t, "jobs", "list", "--type", "permits", "--json")
	if err != nil {
		t.Fatalf("jobs list: %v\n%s", err, out)
	}
	var jobs []models.ImportJob
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode jobs: %v\n%s", err, out)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}

	out, err = runCLI(t, "jobs", "show", job.ID.String())
	if err != nil {
		t.Fatalf("jobs show: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Permit number is required") {
		t.Fatalf("expected validation error in output:\n%s", out)
	}
}

func TestJobsShowRejectsBadID(t *testing.T) {
	useSQLite(t)
	if _, err := runCLI(t, "jobs", "show", "nope"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Parcel", "Confidence"}, [][]string{{"10001", "95"}, {"10002"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"Parcel", "Confidence", "10001", "95", "10002"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "PARCEL") {
		t.Fatalf("headers should keep their case:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}

func TestStatusTextPlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	if got := statusText(&buf, "Completed"); got != "Completed" {
		t.Fatalf("expected plain status, got %q", got)
	}
}
