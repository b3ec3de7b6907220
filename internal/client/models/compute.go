package models

import (
	"time"
)

// ComputePayload is the caller-defined body of POST /compute. The "fn" field
// names the remote function.
type ComputePayload map[string]any

// Function returns payload["fn"] when it is a string.
func (p ComputePayload) Function() string {
	fn, _ := p["fn"].(string)
	return fn
}

// ComputeResult is the opaque JSON object returned by POST /compute.
type ComputeResult map[string]any

func (r ComputeResult) JobID() string {
	id, _ := r["job_id"].(string)
	return id
}

// CostUSD prefers proof.cost_usd over the top-level cost_usd; 0 when neither is set.
func (r ComputeResult) CostUSD() float64 {
	if v, ok := nested(r, "proof", "cost_usd").(float64); ok && v != 0 {
		return v
	}
	if v, ok := r["cost_usd"].(float64); ok {
		return v
	}
	return 0
}

// Cloud reads metadata.cloud, then route.cloud, defaulting to "unknown".
func (r ComputeResult) Cloud() string {
	if v, ok := nested(r, "metadata", "cloud").(string); ok && v != "" {
		return v
	}
	if v, ok := nested(r, "route", "cloud").(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// Failed reports whether the server embedded an "error" field in a 2xx body.
func (r ComputeResult) Failed() bool {
	v, ok := r["error"]
	return ok && v != nil && v != "" && v != false
}

func nested(m map[string]any, outer, inner string) any {
	sub, ok := m[outer].(map[string]any)
	if !ok {
		return nil
	}
	return sub[inner]
}

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ComputeRun is one entry of the in-memory compute history.
type ComputeRun struct {
	RunID     string
	Function  string
	Cloud     string
	CostUSD   float64
	Timestamp time.Time
	Status    RunStatus
	Result    any
}

// HistoryCapacity bounds the compute history.
const HistoryCapacity = 10

// History keeps the most recent runs, newest first. The zero value is empty
// and ready to use. It is not safe for concurrent use.
type History struct {
	runs []ComputeRun
}

// Push inserts run at the front and evicts the oldest entries past capacity.
func (h *History) Push(run ComputeRun) {
	next := make([]ComputeRun, 0, HistoryCapacity)
	next = append(next, run)
	for _, r := range h.runs {
		if len(next) == HistoryCapacity {
			break
		}
		next = append(next, r)
	}
	h.runs = next
}

// Runs returns a copy, newest first.
func (h *History) Runs() []ComputeRun {
	out := make([]ComputeRun, len(h.runs))
	copy(out, h.runs)
	return out
}

func (h *History) Len() int { return len(h.runs) }

// Reset drops every run.
func (h *History) Reset() { h.runs = nil }

// HistorySummary aggregates the runs currently held.
type HistorySummary struct {
	TotalCostUSD float64
	Completed    int
	Failed       int
}

func (h *History) Summary() HistorySummary {
	var s HistorySummary
	for _, r := range h.runs {
		s.TotalCostUSD += r.CostUSD
		switch r.Status {
		case RunCompleted:
			s.Completed++
		case RunFailed:
			s.Failed++
		}
	}
	return s
}
