package toolgen

import (
	"context"
	"iter"
)

// streamChunks turns a push-style producer into a pull-style sequence. The
// producer runs on its own goroutine with a derived context that is cancelled
// when the consumer stops pulling.
func streamChunks(ctx context.Context, run func(ctx context.Context, onDelta func(string)) error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		done := make(chan error, 1)
		go func() {
			defer close(chunks)
			done <- run(ctx, func(delta string) {
				if delta == "" {
					return
				}
				select {
				case chunks <- delta:
				case <-ctx.Done():
				}
			})
		}()

		for chunk := range chunks {
			if !yield(chunk, nil) {
				cancel()
				for range chunks {
				}
				<-done
				return
			}
		}
		if err := <-done; err != nil {
			yield("", err)
		}
	}
}
