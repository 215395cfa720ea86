package scheduler

import (
	"errors"
	"strings"
	"testing"
)

func fs(pred string) Dependency { return Dependency{PredecessorID: pred, Type: FinishToStart} }

// TestDAGValidate tests DAG validation with various graph structures.
func TestDAGValidate(t *testing.T) {
	tests := []struct {
		name        string
		tasks       []*Task
		wantErr     bool
		errContains string
	}{
		{
			name: "valid linear chain",
			tasks: []*Task{
				{ID: "A"},
				{ID: "B", Dependencies: []Dependency{fs("A")}},
				{ID: "C", Dependencies: []Dependency{fs("B")}},
			},
		},
		{
			name: "valid parallel tasks",
			tasks: []*Task{
				{ID: "A"},
				{ID: "B"},
				{ID: "C", Dependencies: []Dependency{fs("A"), fs("B")}},
			},
		},
		{
			name:  "single task no deps",
			tasks: []*Task{{ID: "A"}},
		},
		{
			name: "direct cycle",
			tasks: []*Task{
				{ID: "A", Dependencies: []Dependency{fs("B")}},
				{ID: "B", Dependencies: []Dependency{fs("A")}},
			},
			wantErr:     true,
			errContains: "cycl",
		},
		{
			name: "transitive cycle",
			tasks: []*Task{
				{ID: "A", Dependencies: []Dependency{fs("B")}},
				{ID: "B", Dependencies: []Dependency{fs("C")}},
				{ID: "C", Dependencies: []Dependency{fs("A")}},
			},
			wantErr:     true,
			errContains: "cycl",
		},
		{
			name:        "self-loop",
			tasks:       []*Task{{ID: "A", Dependencies: []Dependency{fs("A")}}},
			wantErr:     true,
			errContains: "cycl",
		},
		{
			name:        "missing dependency",
			tasks:       []*Task{{ID: "A", Dependencies: []Dependency{fs("nonexistent")}}},
			wantErr:     true,
			errContains: "nonexistent",
		},
		{
			name: "disconnected components",
			tasks: []*Task{
				{ID: "A"},
				{ID: "B", Dependencies: []Dependency{fs("A")}},
				{ID: "C"},
				{ID: "D", Dependencies: []Dependency{fs("C")}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dag, err := BuildDAG(tt.tasks)
			if err != nil {
				t.Fatalf("BuildDAG failed: %v", err)
			}
			order, err := dag.Validate()

			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Error message %q doesn't contain %q", err.Error(), tt.errContains)
				}
				return
			}

			if len(order) != len(tt.tasks) {
				t.Fatalf("Expected %d tasks in order, got %d: %v", len(tt.tasks), len(order), order)
			}
			assertTopological(t, tt.tasks, order)
		})
	}
}

func assertTopological(t *testing.T, tasks []*Task, order []string) {
	t.Helper()
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, task := range tasks {
		for _, dep := range task.Dependencies {
			if pos[dep.PredecessorID] >= pos[task.ID] {
				t.Errorf("predecessor %s at %d not before %s at %d in %v",
					dep.PredecessorID, pos[dep.PredecessorID], task.ID, pos[task.ID], order)
			}
		}
	}
}

func TestBuildDAG_DuplicateID(t *testing.T) {
	_, err := BuildDAG([]*Task{{ID: "A"}, {ID: "A"}})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.TaskID != "A" {
		t.Errorf("TaskID = %q, want A", cfgErr.TaskID)
	}
}

// isRotation reports whether got is a rotation of want.
func isRotation(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	joined := strings.Join(append(append([]string(nil), want...), want...), ",") + ","
	return strings.Contains(joined, strings.Join(got, ",")+",")
}

func TestDetectCycles(t *testing.T) {
	tests := []struct {
		name       string
		tasks      []*Task
		wantCycles int
		wantCycle  []string
	}{
		{
			name:  "no edges",
			tasks: []*Task{{ID: "A"}, {ID: "B"}},
		},
		{
			name: "acyclic diamond",
			tasks: []*Task{
				{ID: "A"},
				{ID: "B", Dependencies: []Dependency{fs("A")}},
				{ID: "C", Dependencies: []Dependency{fs("A")}},
				{ID: "D", Dependencies: []Dependency{fs("B"), fs("C")}},
			},
		},
		{
			name: "three task cycle",
			tasks: []*Task{
				{ID: "A", Dependencies: []Dependency{fs("C")}},
				{ID: "B", Dependencies: []Dependency{fs("A")}},
				{ID: "C", Dependencies: []Dependency{fs("B")}},
			},
			wantCycles: 1,
			wantCycle:  []string{"A", "B", "C"},
		},
		{
			name: "cycle listed out of order",
			tasks: []*Task{
				{ID: "C", Dependencies: []Dependency{fs("B")}},
				{ID: "A", Dependencies: []Dependency{fs("C")}},
				{ID: "B", Dependencies: []Dependency{fs("A")}},
			},
			wantCycles: 1,
			wantCycle:  []string{"A", "B", "C"},
		},
		{
			name:       "self dependency",
			tasks:      []*Task{{ID: "A", Dependencies: []Dependency{fs("A")}}},
			wantCycles: 1,
			wantCycle:  []string{"A"},
		},
		{
			name: "two separate cycles",
			tasks: []*Task{
				{ID: "A", Dependencies: []Dependency{fs("B")}},
				{ID: "B", Dependencies: []Dependency{fs("A")}},
				{ID: "C", Dependencies: []Dependency{fs("D")}},
				{ID: "D", Dependencies: []Dependency{fs("C")}},
			},
			wantCycles: 2,
		},
		{
			name:  "unknown predecessor is ignored",
			tasks: []*Task{{ID: "A", Dependencies: []Dependency{fs("ghost")}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles := DetectCycles(tt.tasks)
			if len(cycles) != tt.wantCycles {
				t.Fatalf("DetectCycles() found %d cycles %v, want %d", len(cycles), cycles, tt.wantCycles)
			}
			if tt.wantCycle != nil && !isRotation(cycles[0], tt.wantCycle) {
				t.Errorf("cycle %v is not a rotation of %v", cycles[0], tt.wantCycle)
			}
		})
	}
}

func TestValidateNewEdge(t *testing.T) {
	tasks := []*Task{
		{ID: "A"},
		{ID: "B", Dependencies: []Dependency{fs("A")}},
		{ID: "C", Dependencies: []Dependency{fs("B")}},
	}

	t.Run("self dependency", func(t *testing.T) {
		err := ValidateNewEdge(tasks, "A", "A")
		var selfErr *SelfDependencyError
		if !errors.As(err, &selfErr) {
			t.Fatalf("expected SelfDependencyError, got %v", err)
		}
	})

	t.Run("edge closing a cycle", func(t *testing.T) {
		err := ValidateNewEdge(tasks, "C", "A")
		var cycErr *CyclicDependencyError
		if !errors.As(err, &cycErr) {
			t.Fatalf("expected CyclicDependencyError, got %v", err)
		}
		if len(cycErr.Cycles) == 0 || !isRotation(cycErr.Cycles[0], []string{"A", "B", "C"}) {
			t.Errorf("unexpected cycles %v", cycErr.Cycles)
		}
	})

	t.Run("acyclic edge", func(t *testing.T) {
		if err := ValidateNewEdge(tasks, "A", "C"); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		var cfgErr *ConfigurationError
		if err := ValidateNewEdge(tasks, "ghost", "A"); !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
		if err := ValidateNewEdge(tasks, "A", "ghost"); !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("input is not modified", func(t *testing.T) {
		_ = ValidateNewEdge(tasks, "C", "A")
		if len(tasks[0].Dependencies) != 0 {
			t.Errorf("ValidateNewEdge mutated task A: %v", tasks[0].Dependencies)
		}
	})
}

func TestDependencyTypeText(t *testing.T) {
	for _, want := range []DependencyType{FinishToStart, StartToStart, FinishToFinish, StartToFinish} {
		text, err := want.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) failed: %v", want, err)
		}
		var got DependencyType
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) failed: %v", text, err)
		}
		if got != want {
			t.Errorf("text round trip of %v gave %v", want, got)
		}
	}

	if got, err := ParseDependencyType("ss"); err != nil || got != StartToStart {
		t.Errorf("ParseDependencyType(ss) = %v, %v", got, err)
	}
	if _, err := ParseDependencyType("XX"); err == nil {
		t.Error("expected error for unknown dependency type")
	}
}
