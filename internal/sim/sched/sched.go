// Package sched is the engine's data-parallel acceleration layer. A system
// may split index-addressed work across workers; every result lands in a
// pre-allocated slot keyed by input index, and callers fold the slots in
// ascending index order. Worker count and goroutine scheduling therefore
// never influence the folded output, which keeps parallel ticks bit-equal
// to serial ones.
package sched

import "sync"

// Map computes fn(i) for every i in [0, n) using up to workers goroutines
// and returns the results in input order. workers <= 1 runs inline.
func Map[T any](workers, n int, fn func(int) T) []T {
	out := make([]T, n)
	if n == 0 {
		return out
	}
	if workers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			out[i] = fn(i)
		}
		return out
	}
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	next := make(chan int, n)
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				out[i] = fn(i)
			}
		}()
	}
	wg.Wait()
	return out
}

// Fold is the reduction side of Map: it folds the slots in ascending index
// order. The explicit merge order is the determinism contract — callers
// must never fold in completion order.
func Fold[T, A any](acc A, slots []T, merge func(A, T) A) A {
	for i := range slots {
		acc = merge(acc, slots[i])
	}
	return acc
}
