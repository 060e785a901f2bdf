package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const flushInterval = 2 * time.Second

// asyncFileWriter decouples log emission from disk I/O. Writes are queued on
// a channel and flushed by a single goroutine; when the queue is full the
// entry is dropped rather than blocking the caller.
type asyncFileWriter struct {
	mu     sync.Mutex
	out    *bufio.Writer
	file   *os.File
	queue  chan []byte
	closed chan struct{}
}

func newAsyncFileWriter(path string, bufferSize int) (*asyncFileWriter, error) {
	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	w := &asyncFileWriter{
		out:    bufio.NewWriterSize(file, bufferSize),
		file:   file,
		queue:  make(chan []byte, 1000),
		closed: make(chan struct{}),
	}
	go w.drain()

	return w, nil
}

func (w *asyncFileWriter) Write(p []byte) (int, error) {
	select {
	case w.queue <- append([]byte{}, p...):
		return len(p), nil
	default:
		return 0, nil
	}
}

func (w *asyncFileWriter) drain() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case line := <-w.queue:
			w.mu.Lock()
			if _, err := w.out.Write(line); err != nil {
				fmt.Println("error writing log line to file", err)
			}
			w.mu.Unlock()
		case <-ticker.C:
			w.mu.Lock()
			_ = w.out.Flush()
			w.mu.Unlock()
		case <-w.closed:
			w.mu.Lock()
			_ = w.out.Flush()
			w.mu.Unlock()
			return
		}
	}
}

func (w *asyncFileWriter) Close() {
	close(w.closed)
	_ = w.file.Close()
}

// consoleHook mirrors every entry to stdout so container logs stay useful
// while the file writer owns durable output.
type consoleHook struct{}

func (h *consoleHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	fmt.Print(string(line))
	return nil
}

func (h *consoleHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
