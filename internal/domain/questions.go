package domain

import "sort"

// ActivePool filters questions to the active ones, optionally within a category,
// and orders them by ID so sampling sees a stable pool.
func ActivePool(questions []Question, categoryID string) []Question {
	pool := make([]Question, 0, len(questions))
	for _, q := range questions {
		if !q.Active {
			continue
		}
		if categoryID != "" && q.CategoryID != categoryID {
			continue
		}
		pool = append(pool, q)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool
}
