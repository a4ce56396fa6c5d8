//go:build !linux

package filesystem

import (
	"os"
	"time"
)

type extra struct {
	atime time.Time
	ctime time.Time
	links uint64
	dev   uint64
	ino   uint64
}

func statExtra(os.FileInfo) (extra, bool) {
	return extra{}, false
}

// advise is a hint; platforms without fadvise accept and ignore it.
func advise(*os.File, int64, int64, Advice) error {
	return nil
}

func syncData(f *os.File) error {
	return f.Sync()
}
