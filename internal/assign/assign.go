// Package assign picks the least-loaded online agent for a new chat or ticket.
//
// Selection is pure: callers materialize workloads (fresh, never cached) and
// pass them in. An empty result means "leave unassigned" and is not an error.
package assign

import (
	"fmt"
	"sort"
	"strings"
)

// Pool is the kind of work being assigned.
type Pool string

const (
	PoolChat   Pool = "chat"
	PoolTicket Pool = "ticket"
)

// Mode decides which counts make up a workload.
type Mode string

const (
	// ModeCombined weighs open tickets plus active chats for either pool.
	ModeCombined Mode = "combined"
	// ModePerPool weighs only the pool's own count.
	ModePerPool Mode = "per_pool"
)

// ParseMode accepts "combined" or "per_pool". Empty means combined.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeCombined, nil
	case ModeCombined, ModePerPool:
		return m, nil
	default:
		return "", fmt.Errorf("unknown workload mode %q", s)
	}
}

// Candidate is an online agent with its workload snapshot.
type Candidate struct {
	AgentID     string `json:"agentId"`
	Name        string `json:"name"`
	OpenTickets int    `json:"openTickets"`
	ActiveChats int    `json:"activeChats"`
}

// Workload returns the load used to rank c for pool under mode.
func (c Candidate) Workload(pool Pool, mode Mode) int {
	if mode == ModePerPool {
		if pool == PoolTicket {
			return c.OpenTickets
		}
		return c.ActiveChats
	}
	return c.OpenTickets + c.ActiveChats
}

// Rank returns a copy of candidates ordered by ascending workload. Equal
// workloads keep their input order.
func Rank(candidates []Candidate, pool Pool, mode Mode) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Workload(pool, mode) < ranked[j].Workload(pool, mode)
	})
	return ranked
}

// Select returns the least-loaded candidate. Ties go to the earliest in input
// order. The boolean is false when candidates is empty.
func Select(candidates []Candidate, pool Pool, mode Mode) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return Rank(candidates, pool, mode)[0], true
}
