package protocol

import (
	"reflect"
	"testing"
)

func rec(name, content string, at int64) FileRecord {
	return FileRecord{Name: name, Content: content, UpdatedAt: at}
}

func TestWorkspace_InitSelectsLatest(t *testing.T) {
	w := NewWorkspace()
	e := w.Apply(NewInit([]FileRecord{rec("c.sql", "C", 30), rec("b.sql", "B", 20), rec("a.sql", "A", 10)}, "c.sql"))

	if w.Active() != "c.sql" {
		t.Errorf("Active: got %q, want c.sql", w.Active())
	}
	if w.Buffer() != "C" {
		t.Errorf("Buffer: got %q, want C", w.Buffer())
	}
	if !e.Reset {
		t.Error("first render of a file should be a reset")
	}
	if got, want := w.Tabs(), []string{"c.sql", "b.sql", "a.sql"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tabs: got %v, want %v", got, want)
	}
}

func TestWorkspace_InitWithoutLatestFallsBackToNewest(t *testing.T) {
	w := NewWorkspace()
	w.Apply(NewInit([]FileRecord{rec("a.sql", "A", 10), rec("b.sql", "B", 20)}, ""))
	if w.Active() != "b.sql" {
		t.Errorf("Active: got %q, want b.sql", w.Active())
	}
}

func TestWorkspace_InitDiscardsPriorSet(t *testing.T) {
	w := NewWorkspace()
	w.Apply(NewInit([]FileRecord{rec("a.sql", "A", 10)}, "a.sql"))
	w.Apply(NewInit(nil, ""))

	if len(w.Tabs()) != 0 {
		t.Errorf("Tabs after empty init: got %v, want none", w.Tabs())
	}
	if w.Active() != "" || w.Buffer() != "" {
		t.Errorf("after empty init: active %q buffer %q, want empty", w.Active(), w.Buffer())
	}
}

func TestWorkspace_InitKeepsActiveFileWhenStillPresent(t *testing.T) {
	w := NewWorkspace()
	w.Apply(NewInit([]FileRecord{rec("a.sql", "A", 10), rec("b.sql", "B", 5)}, "a.sql"))
	w.Select("b.sql")
	w.Apply(NewInit([]FileRecord{rec("a.sql", "A", 10), rec("b.sql", "B2", 5)}, "a.sql"))
	if w.Active() != "b.sql" {
		t.Errorf("Active: got %q, want b.sql", w.Active())
	}
}

func TestWorkspace_UpdateActiveFileIsMinimalPatch(t *testing.T) {
	w := NewWorkspace()
	w.Apply(NewInit([]FileRecord{rec("a.sql", "SELECT 1;", 10)}, "a.sql"))

	e := w.Apply(NewFileUpdate(rec("a.sql", "SELECT 2;", 20)))
	if e.Reset {
		t.Fatal("same-file update must not reset the buffer")
	}
	if e.Patch != (Patch{From: 7, To: 8, Insert: "2"}) {
		t.Errorf("Patch: got %+v", e.Patch)
	}
	if w.Buffer() != "SELECT 2;" {
		t.Errorf("Buffer: got %q", w.Buffer())
	}
}

func TestWorkspace_UpdateNewFilePrependsWithoutSwitching(t *testing.T) {
	w := NewWorkspace()
	w.Apply(NewInit([]FileRecord{rec("a.sql", "A", 10), rec("b.sql", "B", 5)}, "a.sql"))

	e := w.Apply(NewFileUpdate(rec("c.sql", "C", 30)))
	if e.Changed() {
		t.Errorf("update of an inactive file changed the buffer: %+v", e)
	}
	if got, want := w.Tabs(), []string{"c.sql", "a.sql", "b.sql"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tabs: got %v, want %v", got, want)
	}
	if w.Active() != "a.sql" {
		t.Errorf("Active: got %q, want a.sql", w.Active())
	}
}

func TestWorkspace_UpdateKnownFileKeepsOrder(t *testing.T) {
	w := NewWorkspace()
	w.Apply(NewInit([]FileRecord{rec("a.sql", "A", 10), rec("b.sql", "B", 5)}, "a.sql"))
	w.Apply(NewFileUpdate(rec("b.sql", "B2", 50)))

	if got, want := w.Tabs(), []string{"a.sql", "b.sql"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tabs: got %v, want %v", got, want)
	}
	f, _ := w.File("b.sql")
	if f.Content != "B2" {
		t.Errorf("b.sql content: got %q, want B2", f.Content)
	}
}

func TestWorkspace_UpdateActivatesFirstFile(t *testing.T) {
	w := NewWorkspace()
	w.Apply(NewInit(nil, ""))
	e := w.Apply(NewFileUpdate(rec("a.sql", "SELECT 1;", 1)))
	if w.Active() != "a.sql" {
		t.Errorf("Active: got %q, want a.sql", w.Active())
	}
	if !e.Reset || w.Buffer() != "SELECT 1;" {
		t.Errorf("edit %+v buffer %q", e, w.Buffer())
	}
}

func TestWorkspace_SelectAlwaysResets(t *testing.T) {
	w := NewWorkspace()
	w.Apply(NewInit([]FileRecord{rec("a.sql", "A", 10), rec("b.sql", "BB", 5)}, "a.sql"))

	e := w.Select("b.sql")
	if !e.Reset {
		t.Error("Select must reset")
	}
	if e.Patch != (Patch{From: 0, To: 1, Insert: "BB"}) {
		t.Errorf("Patch: got %+v", e.Patch)
	}
	if !w.Select("b.sql").Reset {
		t.Error("re-selecting the active file must still reset")
	}
}
