// Package workflow drives one pass ("cycle") over an ordered workflow
// definition: dependency-ordered, optionally-parallel named job steps.
package workflow

import "fmt"

// Step is one named, executable unit in the workflow.
type Step struct {
	Name          string
	FunctionName  string
	ParallelGroup string // empty means the step is sequential (its own singleton group)
	Skipped       bool
}

// Definition is the immutable, in-memory ordered workflow.
type Definition struct {
	Steps []Step
}

// Validate checks the invariants from the data model: functionName values
// unique across non-skipped steps, and parallel groups contiguous.
func (d Definition) Validate() error {
	seen := make(map[string]bool, len(d.Steps))
	var lastGroup string
	groupSeenBefore := make(map[string]bool)

	for i, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("workflow: step %d has no name", i)
		}
		if !s.Skipped {
			if seen[s.FunctionName] {
				return fmt.Errorf("workflow: duplicate functionName %q among non-skipped steps", s.FunctionName)
			}
			seen[s.FunctionName] = true
		}

		if s.ParallelGroup != "" && s.ParallelGroup != lastGroup && groupSeenBefore[s.ParallelGroup] {
			return fmt.Errorf("workflow: parallel group %q is not contiguous", s.ParallelGroup)
		}
		if s.ParallelGroup != "" {
			groupSeenBefore[s.ParallelGroup] = true
		}
		lastGroup = s.ParallelGroup
	}
	return nil
}

// TotalAsyncFns is the count of non-skipped steps — the denominator for
// cycle-level progress.
func (d Definition) TotalAsyncFns() int {
	n := 0
	for _, s := range d.Steps {
		if !s.Skipped {
			n++
		}
	}
	return n
}

// Group is a contiguous run of steps sharing the same non-empty
// ParallelGroup, or a singleton for a sequential step.
type Group struct {
	Name  string // ParallelGroup value, or "" for a sequential singleton
	Steps []Step
}

// Parallel reports whether the group's members run concurrently.
func (g Group) Parallel() bool { return len(g.Steps) > 1 }

// Groups partitions Steps into contiguous groups of consecutive steps
// sharing the same ParallelGroup; steps with an empty ParallelGroup are
// each their own singleton group.
func (d Definition) Groups() []Group {
	var groups []Group
	for _, s := range d.Steps {
		if s.ParallelGroup == "" {
			groups = append(groups, Group{Steps: []Step{s}})
			continue
		}
		if n := len(groups); n > 0 && groups[n-1].Name == s.ParallelGroup {
			groups[n-1].Steps = append(groups[n-1].Steps, s)
			continue
		}
		groups = append(groups, Group{Name: s.ParallelGroup, Steps: []Step{s}})
	}
	return groups
}
