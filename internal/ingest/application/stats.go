package application

import "go.uber.org/atomic"

// Stats son los contadores del consumidor; se leen desde /stats.
type Stats struct {
	Read             atomic.Int64
	Applied          atomic.Int64
	Duplicates       atomic.Int64
	Failed           atomic.Int64
	DeadLettered     atomic.Int64
	DispatchFailures atomic.Int64
	TransportErrors  atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

// StatsSnapshot es la foto serializable de Stats.
type StatsSnapshot struct {
	Read             int64 `json:"read"`
	Applied          int64 `json:"applied"`
	Duplicates       int64 `json:"duplicates"`
	Failed           int64 `json:"failed"`
	DeadLettered     int64 `json:"dead_lettered"`
	DispatchFailures int64 `json:"dispatch_failures"`
	TransportErrors  int64 `json:"transport_errors"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Read:             s.Read.Load(),
		Applied:          s.Applied.Load(),
		Duplicates:       s.Duplicates.Load(),
		Failed:           s.Failed.Load(),
		DeadLettered:     s.DeadLettered.Load(),
		DispatchFailures: s.DispatchFailures.Load(),
		TransportErrors:  s.TransportErrors.Load(),
	}
}
