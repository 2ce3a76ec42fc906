package protocol

import "sort"

// Edit describes how a Workspace's rendered buffer changed.
type Edit struct {
	// Reset means the buffer was replaced wholesale and the cursor and
	// selection go back to the start. Patch then spans the whole old buffer.
	Reset bool
	Patch Patch
}

// Changed reports whether the buffer differs after the edit.
func (e Edit) Changed() bool {
	return e.Reset || !e.Patch.Empty()
}

// Workspace is a viewer's local copy of a room: the known files, their tab
// order, the active file and the text currently rendered for it.
// It is not safe for concurrent use.
type Workspace struct {
	files    map[string]FileRecord
	order    []string
	active   string
	buffer   string
	rendered string // file the buffer was last rendered for
}

// NewWorkspace returns an empty Workspace.
func NewWorkspace() *Workspace {
	return &Workspace{files: make(map[string]FileRecord)}
}

// Apply merges a server message and re-renders the active file.
func (w *Workspace) Apply(m Message) Edit {
	switch m.Type {
	case TypeInit:
		w.applyInit(m)
	case TypeFileUpdate:
		if m.File != nil {
			w.applyUpdate(*m.File)
		}
	}
	return w.render(false)
}

// Select makes name the active file. The buffer is always replaced
// wholesale, even when name is already active.
func (w *Workspace) Select(name string) Edit {
	w.active = name
	return w.render(true)
}

func (w *Workspace) applyInit(m Message) {
	files := make(map[string]FileRecord, len(m.Files))
	for _, f := range m.Files {
		files[f.Name] = f
	}
	order := make([]string, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range m.Files {
		if !seen[f.Name] {
			seen[f.Name] = true
			order = append(order, f.Name)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return files[order[i]].UpdatedAt > files[order[j]].UpdatedAt
	})
	w.files = files
	w.order = order

	if _, ok := files[w.active]; ok {
		return
	}
	switch {
	case m.Latest != "":
		w.active = m.Latest
	case len(order) > 0:
		w.active = order[0]
	default:
		w.active = ""
	}
}

func (w *Workspace) applyUpdate(rec FileRecord) {
	if _, known := w.files[rec.Name]; !known {
		w.order = append([]string{rec.Name}, w.order...)
	}
	w.files[rec.Name] = rec
	if w.active == "" {
		w.active = rec.Name
	}
}

// render brings the buffer in line with the active file's content. A change
// of active file, or force, replaces the buffer wholesale.
func (w *Workspace) render(force bool) Edit {
	prev := w.buffer
	next := w.files[w.active].Content
	switched := w.rendered != w.active
	w.buffer = next
	w.rendered = w.active
	if force || switched {
		return Edit{Reset: true, Patch: Patch{From: 0, To: len(prev), Insert: next}}
	}
	return Edit{Patch: Diff(prev, next)}
}

// Active returns the active file name, or "" when there is none.
func (w *Workspace) Active() string { return w.active }

// Buffer returns the text rendered for the active file.
func (w *Workspace) Buffer() string { return w.buffer }

// Tabs returns the known file names in display order.
func (w *Workspace) Tabs() []string {
	out := make([]string, 0, len(w.order))
	for _, name := range w.order {
		if _, ok := w.files[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// File returns the record for name.
func (w *Workspace) File(name string) (FileRecord, bool) {
	f, ok := w.files[name]
	return f, ok
}
