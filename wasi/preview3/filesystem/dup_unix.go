//go:build unix

package filesystem

import (
	"os"

	"golang.org/x/sys/unix"
)

// duplicate returns an independent handle to the same open file, so a
// stream operation survives the descriptor being closed.
func duplicate(f *os.File, _ int) (*os.File, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), f.Name()), nil
}
