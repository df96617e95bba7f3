package aggregate

// State is a stage of an aggregation run.
type State int

// Aggregation states in the order a complete run visits them.
const (
	Idle State = iota
	LoadingDocuments
	Merging
	Collapsing
	Normalizing
	Writing
	MergingWithDuplicates
	UnknownSubdirectory
	Done
)

var stateNames = map[State]string{
	Idle:                  "idle",
	LoadingDocuments:      "loading_documents",
	Merging:               "merging",
	Collapsing:            "collapsing",
	Normalizing:           "normalizing",
	Writing:               "writing",
	MergingWithDuplicates: "merging_with_duplicates",
	UnknownSubdirectory:   "unknown_subdirectory",
	Done:                  "done",
}

// String returns the state name used in logs and reports.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// TransitionHook is called after every state change.
type TransitionHook func(from, to State)
