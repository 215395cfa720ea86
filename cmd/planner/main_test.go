package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const referenceProject = `
project:
  id: p1
  name: Website
  start: 2025-01-06
tasks:
  - id: T1
    name: Design
    duration_days: 3
  - id: T2
    name: Build
    duration_days: 2
    depends_on:
      - predecessor: T1
  - id: T3
    name: Review
    duration_days: 1
    depends_on:
      - predecessor: T1
        type: SS
        lag_days: 1
  - id: M
    name: Launch
    mode: manual
    start: 2025-03-03
    end: 2025-03-03
    duration_days: 1
    depends_on:
      - predecessor: T2
`

const cyclicProject = `{
  "project": {"id": "loop", "start": "2025-01-06"},
  "tasks": [
    {"id": "A", "duration_days": 1, "depends_on": [{"predecessor": "B"}]},
    {"id": "B", "duration_days": 1, "depends_on": [{"predecessor": "A", "type": "FF"}]},
    {"id": "C", "duration_days": 2}
  ]
}`

type harness struct {
	t   *testing.T
	dir string
	db  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return &harness{t: t, dir: dir, db: filepath.Join(dir, "data", "planner.db")}
}

func (h *harness) write(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		h.t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func (h *harness) run(args ...string) (code int, stdout, stderr string) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	if len(args) > 0 {
		args = append(args, "-db", h.db)
	}
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunUsage(t *testing.T) {
	h := newHarness(t)

	if code, _, stderr := h.run(); code != 2 || !strings.Contains(stderr, "usage:") {
		t.Errorf("no args: code %d, stderr %q", code, stderr)
	}
	if code, _, stderr := h.run("frobnicate"); code != 2 || !strings.Contains(stderr, "unknown command") {
		t.Errorf("unknown command: code %d, stderr %q", code, stderr)
	}
	if code, _, stderr := h.run("schedule"); code != 1 || !strings.Contains(stderr, "-project is required") {
		t.Errorf("missing flag: code %d, stderr %q", code, stderr)
	}
}

func TestImportAndSchedule(t *testing.T) {
	h := newHarness(t)
	file := h.write("project.yaml", referenceProject)

	code, stdout, stderr := h.run("import", "-file", file)
	if code != 0 {
		t.Fatalf("import exited %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "imported 4 tasks into p1") {
		t.Errorf("import output: %q", stdout)
	}

	code, stdout, stderr = h.run("schedule", "-project", "p1")
	if code != 0 {
		t.Fatalf("schedule exited %d: %s", code, stderr)
	}

	rows := map[string]string{}
	for _, line := range strings.Split(stdout, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			rows[fields[0]] = line
		}
	}
	want := map[string][]string{
		"T1": {"2025-01-06", "2025-01-08"},
		"T2": {"2025-01-09", "2025-01-10"},
		"T3": {"2025-01-07"},
		"M":  {"manual", "2025-03-03"},
	}
	for id, parts := range want {
		row, ok := rows[id]
		if !ok {
			t.Errorf("no row for %s in:\n%s", id, stdout)
			continue
		}
		for _, part := range parts {
			if !strings.Contains(row, part) {
				t.Errorf("row %q missing %q", row, part)
			}
		}
	}
}

func TestScheduleStrictAndBestEffort(t *testing.T) {
	h := newHarness(t)
	cfg := h.write("config.yaml", "recompute:\n  strict: true\n")
	file := h.write("loop.json", cyclicProject)

	code, _, stderr := h.run("import", "-file", file, "-config", cfg)
	if code != 1 || !strings.Contains(stderr, "cyclic dependency") {
		t.Fatalf("strict import: code %d, stderr %q", code, stderr)
	}

	code, stdout, stderr := h.run("schedule", "-project", "loop", "-config", cfg, "-best-effort")
	if code != 0 {
		t.Fatalf("best-effort schedule exited %d: %s", code, stderr)
	}
	for _, want := range []string{"best-effort schedule written", "skipped A", "skipped B", "2025-01-07"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}

	// Without strict in config the fallback needs no flag.
	code, stdout, stderr = h.run("schedule", "-project", "loop")
	if code != 0 || !strings.Contains(stdout, "best-effort schedule written") {
		t.Errorf("default schedule: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}
}

func TestValidateEdge(t *testing.T) {
	h := newHarness(t)
	file := h.write("project.yaml", referenceProject)
	if code, _, stderr := h.run("import", "-file", file); code != 0 {
		t.Fatalf("import exited %d: %s", code, stderr)
	}

	tests := []struct {
		from, to string
		code     int
		want     string
	}{
		{"T1", "T3", 0, "OK T1 -> T3"},
		{"T3", "T2", 0, "OK T3 -> T2"},
		{"T2", "T1", 1, "REJECTED T2 -> T1"},
		{"T1", "T1", 1, "REJECTED T1 -> T1"},
	}
	for _, tt := range tests {
		code, stdout, stderr := h.run("validate-edge", "-project", "p1", "-from", tt.from, "-to", tt.to)
		if code != tt.code || !strings.Contains(stdout, tt.want) {
			t.Errorf("%s -> %s: code %d, stdout %q, stderr %q", tt.from, tt.to, code, stdout, stderr)
		}
	}

	if code, _, stderr := h.run("validate-edge", "-project", "p1", "-from", "T1", "-to", "ghost"); code != 1 || !strings.Contains(stderr, "ghost") {
		t.Errorf("unknown task: code %d, stderr %q", code, stderr)
	}
}

func TestCalendars(t *testing.T) {
	h := newHarness(t)
	cfg := h.write("config.yaml", `
default_calendar: six-day
calendars:
  six-day:
    name: Six day week
    working_weekdays: [1, 2, 3, 4, 5, 6]
    hours_per_day: 7.5
    holidays: [2025-12-25]
`)

	code, stdout, stderr := h.run("calendars", "-config", cfg)
	if code != 0 {
		t.Fatalf("calendars exited %d: %s", code, stderr)
	}

	var sixDay string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "six-day") {
			sixDay = line
		}
	}
	for _, want := range []string{"Mon,Tue,Wed,Thu,Fri,Sat", "7.5", "1", "*"} {
		if !strings.Contains(sixDay, want) {
			t.Errorf("six-day row %q missing %q", sixDay, want)
		}
	}
	if !strings.Contains(stdout, "standard") {
		t.Errorf("standard calendar missing:\n%s", stdout)
	}
}

func TestHelpFlag(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run("schedule", "-h")
	if code != 0 || !strings.Contains(stderr, "-best-effort") || !strings.Contains(stderr, "override recompute.strict") {
		t.Errorf("help: code %d, stderr %q", code, stderr)
	}
}
