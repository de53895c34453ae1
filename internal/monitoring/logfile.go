package monitoring

import (
	"io"
	"log"
	"os"

	"github.com/natefinch/lumberjack"
)

// Log rotation limits for --log-file.
const (
	logMaxSizeMB  = 20
	logMaxBackups = 5
	logMaxAgeDays = 14
)

// RedirectToFile sends the standard logger to stderr and a rotating file at
// path. The returned closer flushes and closes the file.
func RedirectToFile(path string) io.Closer {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}
