package filehandler

import (
	"os"
	"syscall"
	"time"
)

// fileAtime returns the last access time, or the modification time when
// the platform does not expose it.
func fileAtime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Atim.Unix())
	}
	return info.ModTime()
}
