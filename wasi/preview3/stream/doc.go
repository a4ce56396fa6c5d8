// Package stream implements the byte and value stream pair used by every
// shim resource.
//
// A stream has one Writer and one Reader sharing a bounded in-flight queue
// (a lock-free SPSC ring). Write suspends while the queue is full; Read
// suspends while it is empty.
//
//	w, r := stream.New[[]byte](0)
//	go func() {
//		defer w.Close()
//		w.Write(ctx, []byte("hello"))
//	}()
//	data, err := stream.ReadAll(ctx, r)
//
// # End of stream
//
// Once Read observes the end it returns io.EOF forever. CloseWithError
// delivers its error once, after queued chunks drain.
//
// # Cancellation
//
// Reader.Cancel abandons the stream; the producer sees Writer.Done close
// and further writes fail. Reader.Close before the end is a cancel, after
// it a no-op.
//
// # Transfer
//
// IntoTransferable consumes an endpoint and returns a transfer that the
// receiving context opens exactly once. The origin handle is invalid from
// then on.
package stream
