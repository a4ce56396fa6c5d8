//go:build linux

package filesystem

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type extra struct {
	atime time.Time
	ctime time.Time
	links uint64
	dev   uint64
	ino   uint64
}

func statExtra(info os.FileInfo) (extra, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return extra{}, false
	}
	return extra{
		atime: time.Unix(st.Atim.Unix()),
		ctime: time.Unix(st.Ctim.Unix()),
		links: uint64(st.Nlink),
		dev:   uint64(st.Dev),
		ino:   st.Ino,
	}, true
}

var fadvice = map[Advice]int{
	AdviceNormal:     unix.FADV_NORMAL,
	AdviceSequential: unix.FADV_SEQUENTIAL,
	AdviceRandom:     unix.FADV_RANDOM,
	AdviceWillNeed:   unix.FADV_WILLNEED,
	AdviceDontNeed:   unix.FADV_DONTNEED,
	AdviceNoReuse:    unix.FADV_NOREUSE,
}

func advise(f *os.File, offset, length int64, advice Advice) error {
	a, ok := fadvice[advice]
	if !ok {
		return unix.EINVAL
	}
	return unix.Fadvise(int(f.Fd()), offset, length, a)
}

func syncData(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
