package domain

import "time"

// StatusEvent describes a single Account or Download state transition, for
// the live monitoring feed only. It is never consulted by the pipeline
// itself.
type StatusEvent struct {
	Kind     string
	ID       string
	From     string
	To       string
	At       time.Time
	WorkerID WorkerID
}
