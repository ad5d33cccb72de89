package summarize

// Batch packs docs greedily in order. A document that would push the running
// count past maxTokens closes the current batch and opens a new one, even if
// the document alone is over the ceiling. Concatenating the batches gives
// back docs.
func Batch[T any](docs []T, maxTokens int, count func(T) int) [][]T {
	var batches [][]T
	var current []T
	running := 0

	for _, doc := range docs {
		tokens := count(doc)
		if len(current) > 0 && running+tokens > maxTokens {
			batches = append(batches, current)
			current = nil
			running = 0
		}
		current = append(current, doc)
		running += tokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
