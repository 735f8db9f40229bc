// logger/zaplogger_logpath.go

package logger

import (
	"os"
	"path/filepath"
	"time"
)

// EnsureLogFilePath resolves the file a logger should write to.
// A directory (existing or not) gets a timestamped apiclient_*.log file inside it;
// any other existing path is used as is. Parent directories are created.
func EnsureLogFilePath(logPath string) (string, error) {
	name := "apiclient_" + time.Now().Format("20060102_150405") + ".log"

	if logPath == "" {
		logPath = filepath.Join(".", name)
	} else {
		info, err := os.Stat(logPath)
		switch {
		case os.IsNotExist(err), err == nil && info.IsDir():
			logPath = filepath.Join(logPath, name)
		case err != nil:
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return "", err
	}

	return logPath, nil
}
