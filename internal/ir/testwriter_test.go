package ir

// recordingWriter captures everything a writeout emits so tests can assert
// on the generated streams without a real backend.
type recordingWriter struct {
	table []string
	order []string
	funcs map[string][]string
	setup []string
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{funcs: make(map[string][]string)}
}

func (w *recordingWriter) WriteFuncTable(table []string) error {
	w.table = append(w.table, table...)
	return nil
}

func (w *recordingWriter) WriteFunction(name string, cmds []string) error {
	w.order = append(w.order, name)
	w.funcs[name] = cmds
	return nil
}

func (w *recordingWriter) WriteEventHandler(handler VisibleFunction, ev *EventRef) error {
	w.setup = append(w.setup, "handler "+handler.GlobalName()+" on "+ev.Name)
	return nil
}

func (w *recordingWriter) WriteSetupFunction(fn VisibleFunction) error {
	w.setup = append(w.setup, "setup "+fn.GlobalName())
	return nil
}

func (w *recordingWriter) WriteObjective(name, criteria string) error {
	w.setup = append(w.setup, "objective "+name+" "+criteria)
	return nil
}

func (w *recordingWriter) WriteTeam(name, display string) error {
	w.setup = append(w.setup, "team "+name+" "+display)
	return nil
}

func (w *recordingWriter) WriteBossbar(name, display string) error {
	w.setup = append(w.setup, "bossbar "+name+" "+display)
	return nil
}
