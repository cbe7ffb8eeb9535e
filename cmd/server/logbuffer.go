package main

import "sync"

// LogBuffer captures the most recent log lines in memory
type LogBuffer struct {
	lines []string
	size  int
	mu    sync.Mutex
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		lines: make([]string, 0, size),
		size:  size,
	}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))
	if len(lb.lines) > lb.size {
		lb.lines = lb.lines[len(lb.lines)-lb.size:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
