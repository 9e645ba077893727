package portal

// Result is the outcome of processing one item of a batch. Failed items are
// kept so they can be reported without aborting the rest of the batch.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

type Batch[T any] []Result[T]

func (b Batch[T]) Values() []T {
	values := make([]T, 0, len(b))
	for _, r := range b {
		if r.Err == nil {
			values = append(values, r.Value)
		}
	}
	return values
}

func (b Batch[T]) Failed() []Result[T] {
	var failed []Result[T]
	for _, r := range b {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
