package backend

import "time"

// Entry represents a single backup set discovered in a backend.
type Entry struct {
	Target    string    `json:"target"`    // mysql or a service name
	Timestamp string    `json:"timestamp"` // YYYYMMDDHHmm with an optional _NN suffix
	Path      string    `json:"path"`      // absolute filesystem path to the set directory
	Created   time.Time `json:"created"`   // minute the set was taken, local time
}

// KindAll selects every target when filtering.
const KindAll = "all"

// StorageBackend lists backup sets.
type StorageBackend interface {
	List(kind string) ([]Entry, error)
}
