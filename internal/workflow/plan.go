package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Plan orders steps so every step follows its dependencies. Ties keep
// registration order, so a linear pipeline runs exactly as declared.
func Plan[C any](steps []Step[C]) ([]Step[C], error) {
	verr := &ValidationError{}
	index := make(map[string]int, len(steps))
	for i, step := range steps {
		id := strings.TrimSpace(step.ID)
		if id == "" {
			verr.Add(fmt.Sprintf("step %d: id is required", i))
			continue
		}
		if _, dup := index[id]; dup {
			verr.Add(fmt.Sprintf("step %q: duplicate id", id))
			continue
		}
		if step.Run == nil {
			verr.Add(fmt.Sprintf("step %q: run function is required", id))
		}
		if step.MaxRetries < 0 {
			verr.Add(fmt.Sprintf("step %q: max retries must be >= 0", id))
		}
		index[id] = i
	}
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := index[dep]; !ok {
				verr.Add(fmt.Sprintf("step %q: unknown dependency %q", step.ID, dep))
			}
			if dep == step.ID {
				verr.Add(fmt.Sprintf("step %q: depends on itself", step.ID))
			}
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(steps))
	adj := make(map[string][]string, len(steps))
	for _, step := range steps {
		inDegree[step.ID] += 0
		for _, dep := range step.DependsOn {
			adj[dep] = append(adj[dep], step.ID)
			inDegree[step.ID]++
		}
	}

	byOrder := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool { return index[ids[i]] < index[ids[j]] })
	}

	ready := make([]string, 0, len(steps))
	for _, step := range steps {
		if inDegree[step.ID] == 0 {
			ready = append(ready, step.ID)
		}
	}

	ordered := make([]Step[C], 0, len(steps))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, steps[index[id]])
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
				byOrder(ready)
			}
		}
	}

	if len(ordered) != len(steps) {
		cyclic := make([]string, 0)
		for id, degree := range inDegree {
			if degree > 0 {
				cyclic = append(cyclic, id)
			}
		}
		byOrder(cyclic)
		verr.Add(fmt.Sprintf("dependency graph contains a cycle through %s", strings.Join(cyclic, ", ")))
		return nil, verr
	}
	return ordered, nil
}
