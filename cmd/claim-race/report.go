package main

import (
	"fmt"
	"sort"
	"sync"
)

type raceReportV1 struct {
	SchemaVersion  int    `json:"schema_version"`
	RunID          string `json:"run_id"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
	BaseURL        string `json:"base_url"`
	SolicitationID string `json:"solicitation_id"`
	Attempts       int    `json:"attempts"`

	Statuses  map[string]int   `json:"statuses"`
	Agents    []raceAgentStats `json:"agents"`
	Errors    int              `json:"errors"`
	Exclusive bool             `json:"exclusive"`
}

type raceAgentStats struct {
	AgentID  string `json:"agent_id"`
	Attempts int    `json:"attempts"`
	Created  int    `json:"created"`
}

type attemptResult struct {
	AgentID    string
	StatusCode int
	Err        error
}

type tally struct {
	mu       sync.Mutex
	statuses map[int]int
	agents   map[string]*raceAgentStats
	errors   int
}

func newTally() *tally {
	return &tally{statuses: map[int]int{}, agents: map[string]*raceAgentStats{}}
}

func (t *tally) record(res attemptResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	as := t.agents[res.AgentID]
	if as == nil {
		as = &raceAgentStats{AgentID: res.AgentID}
		t.agents[res.AgentID] = as
	}
	as.Attempts++
	if res.Err != nil {
		t.errors++
		return
	}
	t.statuses[res.StatusCode]++
	if res.StatusCode == 201 {
		as.Created++
	}
}

// exclusive reports whether at most one claim was created. The agents of one run are expected
// to belong to the same store.
func (t *tally) exclusive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statuses[201] <= 1
}

func (t *tally) fill(r *raceReportV1) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.Statuses = make(map[string]int, len(t.statuses))
	for code, n := range t.statuses {
		r.Statuses[fmt.Sprintf("%d", code)] = n
	}
	r.Agents = make([]raceAgentStats, 0, len(t.agents))
	for _, as := range t.agents {
		r.Agents = append(r.Agents, *as)
	}
	sort.Slice(r.Agents, func(i, j int) bool { return r.Agents[i].AgentID < r.Agents[j].AgentID })
	r.Errors = t.errors
}
