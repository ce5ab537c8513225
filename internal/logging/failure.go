package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// FailureLog appends timestamped failure details to a local file. Every
// caught failure that ends in a generic user-facing message is recorded here
// with its full detail. Write errors are swallowed: the failure log must
// never become a failure source itself.
type FailureLog struct {
	mu   sync.Mutex
	path string
}

// NewFailureLog returns a failure log writing to the given path. The file is
// created on first record.
func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path}
}

// Record appends one entry naming the failed operation and the error detail.
func (f *FailureLog) Record(op string, err error) {
	if f == nil || f.path == "" || err == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, openErr := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if openErr != nil {
		Warn("failure log unavailable", Fields{"path": f.path, "error": openErr})
		return
	}
	defer file.Close()

	entry := fmt.Sprintf("[%s] %s: %v\n", time.Now().Format(time.RFC3339), op, err)
	if _, writeErr := file.WriteString(entry); writeErr != nil {
		Warn("failure log write failed", Fields{"path": f.path, "error": writeErr})
	}
}
