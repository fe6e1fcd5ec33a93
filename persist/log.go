package persist

import (
	"log"
	"os"
	"time"
)

// Logger is a line-oriented file logger that brackets its output with a
// startup banner (when opened) and a shutdown banner (when closed), so an
// operator scanning a log file can immediately see every process
// lifetime it spans.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger opens (creating if necessary) filename for append and writes
// a STARTUP banner to it.
func NewLogger(filename string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	logger := log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	logger.Println("STARTUP: coordinator logging started at", time.Now().Format(time.RFC3339))
	return &Logger{Logger: logger, file: file}, nil
}

// Close writes a SHUTDOWN banner and closes the underlying file.
func (l *Logger) Close() error {
	l.Println("SHUTDOWN: logging terminated at", time.Now().Format(time.RFC3339))
	return l.file.Close()
}
