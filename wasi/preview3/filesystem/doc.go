// Package filesystem implements WASI filesystem descriptors over host files.
//
// Scalar operations (stat, sync, path manipulation, positional read and
// write) run in the caller against the host file and map failures to
// errcode filesystem codes. Stream operations are submitted to an offload
// pool; each carries its own duplicated host handle, so closing the
// descriptor does not interrupt them.
//
//	pool := filesystem.NewPool(offload.Config{})
//	host := filesystem.NewHost(pool)
//	host.AddPreopen("/data", "./data", filesystem.FlagRead|filesystem.FlagMutateDirectory)
//
//	dir := host.Preopens()[0].Descriptor
//	f, err := dir.OpenAt(0, "log.txt", filesystem.OpenCreate, filesystem.FlagWrite)
//	done := f.AppendViaStream(stream.FromSlice([]byte("hello\n")))
//	_, err = done.Await(ctx)
//
// Paths are resolved relative to the descriptor. Absolute paths and paths
// that climb out of it fail with errcode.NotPermitted.
package filesystem
