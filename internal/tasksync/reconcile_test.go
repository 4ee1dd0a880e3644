package tasksync

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"davtodo/internal/models"
	"davtodo/internal/testutil"
)

func ids(tasks []models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	sort.Strings(out)
	return out
}

func TestReconcileScenarioRemoteNewer(t *testing.T) {
	local := []models.Task{testutil.Task("1", "A", testutil.MustTime(t, "2024-01-01T00:00:00Z"))}
	remote := []models.Task{testutil.Task("1", "B", testutil.MustTime(t, "2024-01-02T00:00:00Z"))}

	got := Reconcile(local, remote)
	if diff := cmp.Diff(remote, got); diff != "" {
		t.Errorf("expected remote version (-want +got):\n%s", diff)
	}
}

func TestReconcileLocalNewerAndTies(t *testing.T) {
	older := testutil.MustTime(t, "2024-01-01T00:00:00Z")
	newer := testutil.MustTime(t, "2024-01-02T00:00:00Z")

	local := []models.Task{testutil.Task("1", "local", newer)}
	remote := []models.Task{testutil.Task("1", "remote", older)}
	if got := Reconcile(local, remote); got[0].Title != "local" {
		t.Errorf("newer local must win, got %q", got[0].Title)
	}

	tieLocal := testutil.Task("1", "local", older)
	tieLocal.Completed = true
	tieRemote := testutil.Task("1", "remote", older)
	tieRemote.Tags = models.Tags{"remote-only"}

	got := Reconcile([]models.Task{tieLocal}, []models.Task{tieRemote})
	if diff := cmp.Diff([]models.Task{tieLocal}, got); diff != "" {
		t.Errorf("ties must favor local with no field merge (-want +got):\n%s", diff)
	}
}

func TestReconcileSameInstantDifferentZones(t *testing.T) {
	utc := testutil.MustTime(t, "2024-01-01T12:00:00Z")
	offset := testutil.MustTime(t, "2024-01-01T14:00:00+02:00")

	got := Reconcile(
		[]models.Task{testutil.Task("1", "local", utc)},
		[]models.Task{testutil.Task("1", "remote", offset)},
	)
	if got[0].Title != "local" {
		t.Errorf("equal instants must favor local, got %q", got[0].Title)
	}
}

func TestReconcileOneSidedTasks(t *testing.T) {
	ts := testutil.MustTime(t, "2024-01-01T00:00:00Z")
	local := []models.Task{testutil.Task("1", "local only", ts), testutil.Task("2", "shared", ts)}
	remote := []models.Task{testutil.Task("2", "shared", ts), testutil.Task("3", "remote only", ts)}

	got := Reconcile(local, remote)
	if diff := cmp.Diff([]string{"1", "2", "3"}, ids(got)); diff != "" {
		t.Errorf("unexpected ids (-want +got):\n%s", diff)
	}
	want := []models.Task{local[0], local[1], remote[1]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("one-sided tasks must be kept verbatim (-want +got):\n%s", diff)
	}
}

func TestReconcileEmptyInputs(t *testing.T) {
	if got := Reconcile(nil, nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	ts := testutil.MustTime(t, "2024-01-01T00:00:00Z")
	local := []models.Task{testutil.Task("1", "A", ts)}
	if diff := cmp.Diff(local, Reconcile(local, nil)); diff != "" {
		t.Errorf("empty remote must keep local (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(local, Reconcile(nil, local)); diff != "" {
		t.Errorf("empty local must take remote (-want +got):\n%s", diff)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	base := testutil.MustTime(t, "2024-01-01T00:00:00Z")
	var tasks []models.Task
	for i := 0; i < 20; i++ {
		tasks = append(tasks, testutil.Task(fmt.Sprint(i), fmt.Sprintf("task %d", i), base.Add(time.Duration(i)*time.Minute)))
	}

	got := Reconcile(tasks, tasks)
	if !SameTasks(tasks, got) {
		t.Errorf("reconciling a collection with itself must return it unchanged")
	}
}

// Union completeness over generated overlapping collections.
func TestReconcileUnionCompleteness(t *testing.T) {
	base := testutil.MustTime(t, "2024-01-01T00:00:00Z")

	for seed := 0; seed < 50; seed++ {
		var local, remote []models.Task
		union := map[string]struct{}{}
		for i := 0; i < 12; i++ {
			id := fmt.Sprint(i)
			updated := base.Add(time.Duration((i*7+seed)%5) * time.Hour)
			if (i+seed)%3 != 0 {
				local = append(local, testutil.Task(id, "L"+id, updated))
				union[id] = struct{}{}
			}
			if (i*seed)%4 != 1 {
				remote = append(remote, testutil.Task(id, "R"+id, updated.Add(time.Duration(seed%3-1)*time.Hour)))
				union[id] = struct{}{}
			}
		}

		got := Reconcile(local, remote)
		if len(got) != len(union) {
			t.Fatalf("seed %d: expected %d tasks, got %d", seed, len(union), len(got))
		}
		seen := map[string]struct{}{}
		for _, task := range got {
			if _, dup := seen[task.ID]; dup {
				t.Fatalf("seed %d: duplicate id %s", seed, task.ID)
			}
			seen[task.ID] = struct{}{}
			if _, ok := union[task.ID]; !ok {
				t.Fatalf("seed %d: unexpected id %s", seed, task.ID)
			}
		}
	}
}

func TestSameTasks(t *testing.T) {
	ts := testutil.MustTime(t, "2024-01-01T00:00:00Z")
	a := testutil.Task("1", "A", ts)
	b := testutil.Task("2", "B", ts)

	if !SameTasks([]models.Task{a, b}, []models.Task{b, a}) {
		t.Errorf("order must not matter")
	}
	changed := b
	changed.Completed = true
	if SameTasks([]models.Task{a, b}, []models.Task{a, changed}) {
		t.Errorf("field change must be detected")
	}
	if SameTasks([]models.Task{a}, []models.Task{a, b}) {
		t.Errorf("length change must be detected")
	}
	if SameTasks([]models.Task{a, a}, []models.Task{a, b}) {
		t.Errorf("duplicate ids must not compare equal")
	}
	if !SameTasks(nil, []models.Task{}) {
		t.Errorf("nil and empty are the same collection")
	}
}
