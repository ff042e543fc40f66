package scene

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coachverse/recall/pkg/event"
)

func TestDefault(t *testing.T) {
	p := Default()
	if p.Weights != (Weights{Recency: 0.25, Emotional: 0.25, Conflict: 0.25, Comedy: 0.25}) {
		t.Errorf("unexpected default weights %+v", p.Weights)
	}
	if p.MaxMemories != 10 {
		t.Errorf("expected MaxMemories 10, got %d", p.MaxMemories)
	}
	if len(p.PriorityCategories) != 0 {
		t.Errorf("expected no priority categories, got %v", p.PriorityCategories)
	}
}

func TestDefaultProfiles_Valid(t *testing.T) {
	want := []string{Kitchen, Therapy, Battle, FinancialAdvisory, Training, TeamMeeting, Confessional, GroupActivity}
	profiles := DefaultProfiles()
	if len(profiles) != len(want) {
		t.Fatalf("expected %d profiles, got %d", len(want), len(profiles))
	}
	for _, id := range want {
		p, ok := profiles[id]
		if !ok {
			t.Errorf("missing profile %s", id)
			continue
		}
		if p.ID != id {
			t.Errorf("profile %s has id %s", id, p.ID)
		}
		if err := Validate(p); err != nil {
			t.Errorf("profile %s invalid: %v", id, err)
		}
	}
	if profiles[Therapy].Weights.Comedy != 0 {
		t.Errorf("therapy should not weight comedy")
	}
}

func TestTable_LookupFallsBack(t *testing.T) {
	table := NewTable(nil)

	if p := table.Lookup(Kitchen); p.ID != Kitchen {
		t.Errorf("expected kitchen profile, got %s", p.ID)
	}
	p := table.Lookup("rooftop")
	if p.ID != DefaultID || p.MaxMemories != DefaultMaxMemories {
		t.Errorf("expected default profile, got %+v", p)
	}
	if _, ok := table.Get("rooftop"); ok {
		t.Errorf("Get should not report unknown scenes")
	}
}

func TestTable_NormalizesBudget(t *testing.T) {
	table := NewTable(map[string]Profile{
		"zero": {Weights: Weights{Recency: 1}},
		"neg":  {MaxMemories: -3},
		"five": {MaxMemories: 5},
	})

	tests := map[string]int{"zero": 10, "neg": 10, "five": 5}
	for id, want := range tests {
		p, ok := table.Get(id)
		if !ok {
			t.Fatalf("missing %s", id)
		}
		if p.MaxMemories != want {
			t.Errorf("%s: expected MaxMemories %d, got %d", id, want, p.MaxMemories)
		}
		if p.ID != id {
			t.Errorf("%s: expected id from key, got %q", id, p.ID)
		}
	}
}

func TestTable_ReturnsCopies(t *testing.T) {
	table := NewTable(nil)
	p := table.Lookup(Battle)
	p.PriorityCategories[0] = event.Type("mutated")

	if table.Lookup(Battle).PriorityCategories[0] == "mutated" {
		t.Fatal("Lookup leaked the table's slice")
	}
}

func TestTable_ReplaceValidates(t *testing.T) {
	table := NewTable(nil)

	err := table.Replace(map[string]Profile{
		"bad": {Weights: Weights{Recency: -1}},
	})
	if err == nil {
		t.Fatal("expected negative weight to fail validation")
	}
	if _, ok := table.Get(Kitchen); !ok {
		t.Fatal("failed Replace must leave the table unchanged")
	}

	if err := table.Replace(map[string]Profile{"only": {MaxMemories: 3}}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if ids := table.IDs(); len(ids) != 1 || ids[0] != "only" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestTable_ConcurrentAccess(t *testing.T) {
	table := NewTable(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = table.Lookup(Kitchen)
		}()
		go func() {
			defer wg.Done()
			_ = table.Replace(DefaultProfiles())
		}()
	}
	wg.Wait()
}

func TestMerge(t *testing.T) {
	merged := Merge(DefaultProfiles(), map[string]Profile{
		Kitchen: {ID: Kitchen, MaxMemories: 2},
		"pool":  {ID: "pool"},
	})
	if merged[Kitchen].MaxMemories != 2 {
		t.Errorf("overlay should replace kitchen")
	}
	if _, ok := merged["pool"]; !ok {
		t.Errorf("overlay should add pool")
	}
	if _, ok := merged[Therapy]; !ok {
		t.Errorf("base profiles should survive")
	}
}

const yamlProfiles = `
scenes:
  kitchen:
    weights:
      recency: 0.1
      emotional: 0.2
      conflict: 0.3
      comedy: 0.9
    priority_categories:
      - kitchen_argument
      - meal_sharing
    max_memories: 4
  rooftop:
    weights:
      recency: 0.5
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scenes.yaml", yamlProfiles)

	profiles, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	kitchen := profiles[Kitchen]
	if kitchen.Weights.Comedy != 0.9 || kitchen.MaxMemories != 4 {
		t.Errorf("unexpected kitchen profile %+v", kitchen)
	}
	if !kitchen.Prioritizes(event.MealSharing) {
		t.Errorf("expected meal_sharing priority, got %v", kitchen.PriorityCategories)
	}
	rooftop := profiles["rooftop"]
	if rooftop.ID != "rooftop" || rooftop.MaxMemories != DefaultMaxMemories {
		t.Errorf("unexpected rooftop profile %+v", rooftop)
	}
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scenes.json",
		`{"scenes": {"battle": {"weights": {"recency": 1, "emotional": 0, "conflict": 0, "comedy": 0}, "max_memories": 3}}}`)

	profiles, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if profiles[Battle].Weights.Recency != 1 || profiles[Battle].MaxMemories != 3 {
		t.Errorf("unexpected battle profile %+v", profiles[Battle])
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"unsupported", writeFile(t, dir, "scenes.toml", ""), "unsupported"},
		{"missing", filepath.Join(dir, "nope.yaml"), "not found"},
		{"unknown category", writeFile(t, dir, "bad.yaml", "scenes:\n  x:\n    priority_categories: [not_a_type]\n"), "scene x"},
		{"negative weight", writeFile(t, dir, "neg.yaml", "scenes:\n  x:\n    weights:\n      comedy: -2\n"), "scene x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestWatch_ReloadsTable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scenes.yaml", "scenes:\n  kitchen:\n    max_memories: 4\n")

	table := NewTable(nil)
	reloaded := make(chan error, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, table,
			WithDebounce(20*time.Millisecond),
			WithReloadHook(func(ids []string, err error) {
				select {
				case reloaded <- err:
				default:
				}
			}),
		)
	}()

	// Give the watcher a moment to attach.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "scenes.yaml", "scenes:\n  kitchen:\n    max_memories: 2\n  rooftop:\n    max_memories: 5\n")

	deadline := time.After(3 * time.Second)
	for table.Lookup(Kitchen).MaxMemories != 2 {
		select {
		case err := <-reloaded:
			if err != nil {
				t.Logf("reload attempt failed: %v", err)
			}
		case <-deadline:
			t.Fatalf("timeout waiting for reload, kitchen budget %d", table.Lookup(Kitchen).MaxMemories)
		}
	}

	if _, ok := table.Get("rooftop"); !ok {
		t.Errorf("expected rooftop to be added")
	}
	if _, ok := table.Get(Therapy); !ok {
		t.Errorf("expected default profiles to survive reload")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
