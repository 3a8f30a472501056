package latestonlychannel

import "context"

// Wrap returns a channel which yields the values received on inputCh, but
// never holds more than one pending value: a newer input replaces an older
// one which has not been read yet.  Sends to inputCh therefore never wait on
// the reader.  The output is closed once inputCh is closed or ctx is done.
func Wrap[T any](ctx context.Context, inputCh <-chan T) <-chan T {
	outputCh := make(chan T)

	go func() {
		defer close(outputCh)

		var pending T
		var sendCh chan<- T

		for {
			select {
			case v, ok := <-inputCh:
				if !ok {
					return
				}
				pending = v
				sendCh = outputCh

			case sendCh <- pending:
				// a nil sendCh disables this case until a new value arrives
				sendCh = nil

			case <-ctx.Done():
				return
			}
		}
	}()

	return outputCh
}
