package channelmerge

// Merged holds the most recent value seen on each merged channel.
type Merged[A any, B any] struct {
	A A
	B B
}

// Merge combines two streams into one.  Nothing is emitted until both a and
// b have produced a value, after which every new value on either side
// produces a Merged holding the latest of each.  The output is closed as soon
// as either input is closed.
func Merge[A any, B any](a <-chan A, b <-chan B) <-chan Merged[A, B] {
	outputCh := make(chan Merged[A, B])

	go func() {
		defer close(outputCh)

		var current Merged[A, B]
		haveA, haveB := false, false

		for {
			select {
			case v, ok := <-a:
				if !ok {
					return
				}
				current.A = v
				haveA = true

			case v, ok := <-b:
				if !ok {
					return
				}
				current.B = v
				haveB = true
			}

			if haveA && haveB {
				outputCh <- current
			}
		}
	}()

	return outputCh
}
