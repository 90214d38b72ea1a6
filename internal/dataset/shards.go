package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type shardJob struct {
	id   int
	path string
}

// shardResult holds one shard's decoded examples, kept apart until every
// earlier shard has been appended.
type shardResult struct {
	id    int
	split *Split
	err   error
}

// LoadShards reads every example of shards into a Split. Up to numWorkers
// shards are decoded concurrently, but examples are appended strictly in
// the order the shards were given so repeated loads are identical.
func LoadShards(parent context.Context, shards []string, numWorkers int) (*Split, error) {
	if len(shards) == 0 {
		return nil, errors.New("no shards discovered")
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan shardJob)
	results := make(chan shardResult, numWorkers)

	go func() {
		defer close(jobs)
		for i, path := range shards {
			select {
			case <-ctx.Done():
				return
			case jobs <- shardJob{id: i, path: path}:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					return
				case results <- readShard(ctx, job):
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	split := &Split{Width: featureSize}
	pending := make(map[int]shardResult)
	for next := 0; next < len(shards); {
		res, ok := pending[next]
		if !ok {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case r, ok := <-results:
				if !ok {
					return nil, errors.New("shard workers exited early")
				}
				pending[r.id] = r
			}
			continue
		}
		delete(pending, next)
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w", shards[next], res.err)
		}
		split.Pixels = append(split.Pixels, res.split.Pixels...)
		split.Labels = append(split.Labels, res.split.Labels...)
		next++
	}
	return split, nil
}

func readShard(ctx context.Context, job shardJob) shardResult {
	res := shardResult{id: job.id, split: &Split{Width: featureSize}}
	res.err = WalkShard(ctx, job.path, defaultMaxUnpaired, func(ex Example) error {
		res.split.append(ex.Pixels, ex.Label)
		return nil
	})
	return res
}
