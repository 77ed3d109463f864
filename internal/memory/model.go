package memory

import "time"

// Entry is one completed exchange in a session transcript. Entries are never
// mutated after they are recorded.
type Entry struct {
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}
