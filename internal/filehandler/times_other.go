//go:build !linux

package filehandler

import (
	"os"
	"time"
)

func fileAtime(info os.FileInfo) time.Time {
	return info.ModTime()
}
