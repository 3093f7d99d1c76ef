package domain

// Changeset is one atomic write against a project's canonical state.
type Changeset struct {
	PutColumns    []Column
	PutItems      []Item
	PutTasks      []Task
	DeleteColumns []string
	DeleteItems   []string
	DeleteTasks   []string
}

// Empty reports whether the changeset carries no writes.
func (c Changeset) Empty() bool {
	return len(c.PutColumns) == 0 && len(c.PutItems) == 0 && len(c.PutTasks) == 0 &&
		len(c.DeleteColumns) == 0 && len(c.DeleteItems) == 0 && len(c.DeleteTasks) == 0
}
