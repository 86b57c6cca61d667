package session

// Item is a nested record referenced by a field, e.g. a revision.
type Item struct {
	ID        string
	ModelType string
}

// Field is a named value of a work item. It carries either a string value or
// a nested item.
type Field struct {
	Name  string
	Value string
	Null  bool
	Item  *Item
}

// String returns the string value, falling back to the nested item id.
func (f Field) String() string {
	if f.Value == "" && f.Item != nil {
		return f.Item.ID
	}
	return f.Value
}

// Result carries the per-item outcome of a mutating command such as resync.
type Result struct {
	Message string
}

// WorkItem is one row of a response's result stream.
type WorkItem struct {
	ID        string
	Context   string
	ModelType string
	Fields    map[string]Field
	Result    *Result
}

// Field looks up a field by name.
func (w WorkItem) Field(name string) (Field, bool) {
	f, ok := w.Fields[name]
	return f, ok
}

// StringField returns the string value of a field. Missing and null fields
// report false.
func (w WorkItem) StringField(name string) (string, bool) {
	f, ok := w.Fields[name]
	if !ok || f.Null {
		return "", false
	}
	return f.String(), true
}

// Message returns the untrimmed result message, or "" when the item has no
// result.
func (w WorkItem) Message() string {
	if w.Result == nil {
		return ""
	}
	return w.Result.Message
}

// Response is the outcome of a remote command.
type Response struct {
	App       string
	Command   string
	ExitCode  int
	WorkItems []WorkItem
	// Exception holds the server-side error message, if any.
	Exception string
}
