package gui

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// lineWriter splits written bytes into lines. Partial lines are kept
// until their newline arrives or Flush is called.
type lineWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	echo   io.Writer
	onLine func(string)
}

// Write implements io.Writer
func (w *lineWriter) Write(p []byte) (int, error) {
	if w.echo != nil {
		w.echo.Write(p)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits a trailing partial line
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line != "" && w.onLine != nil {
		w.onLine(line)
	}
}

// LogViewer shows the output of backfill runs
type LogViewer struct {
	widget.BaseWidget

	container  *fyne.Container
	logEntry   *widget.Entry
	scrollView *container.Scroll

	mu          sync.Mutex
	messages    []string
	maxMessages int

	// For capturing output
	originalStdout *os.File
	originalStderr *os.File
	pipes          []*os.File
	readers        sync.WaitGroup
}

// NewLogViewer creates a new log viewer widget
func NewLogViewer() *LogViewer {
	v := &LogViewer{
		maxMessages: 2000,
	}

	v.logEntry = widget.NewMultiLineEntry()
	v.logEntry.Disable()
	v.logEntry.Wrapping = fyne.TextWrapWord

	v.scrollView = container.NewVScroll(v.logEntry)
	v.scrollView.SetMinSize(fyne.NewSize(0, 160))

	v.container = container.NewBorder(
		widget.NewLabel("Output:"),
		nil, nil, nil,
		v.scrollView,
	)

	v.ExtendBaseWidget(v)
	return v
}

// CreateRenderer implements fyne.Widget
func (v *LogViewer) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(v.container)
}

// StartCapture redirects stdout and stderr into the viewer while still
// echoing to the terminal
func (v *LogViewer) StartCapture() error {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return err
	}

	v.originalStdout = os.Stdout
	v.originalStderr = os.Stderr
	v.pipes = []*os.File{stdoutW, stderrW}

	stdout := &lineWriter{echo: v.originalStdout, onLine: v.AddMessage}
	stderr := &lineWriter{echo: v.originalStderr, onLine: v.AddMessage}

	os.Stdout = stdoutW
	os.Stderr = stderrW
	log.SetOutput(stderr)

	v.readers.Add(2)
	go v.pipeReader(stdoutR, stdout)
	go v.pipeReader(stderrR, stderr)
	return nil
}

// pipeReader copies a pipe into a lineWriter until the pipe is closed
func (v *LogViewer) pipeReader(pipe *os.File, w *lineWriter) {
	defer v.readers.Done()
	defer pipe.Close()
	io.Copy(w, pipe)
	w.Flush()
}

// StopCapture restores stdout and stderr
func (v *LogViewer) StopCapture() {
	if v.originalStdout != nil {
		os.Stdout = v.originalStdout
		v.originalStdout = nil
	}
	if v.originalStderr != nil {
		os.Stderr = v.originalStderr
		v.originalStderr = nil
	}
	log.SetOutput(os.Stderr)

	for _, p := range v.pipes {
		p.Close()
	}
	v.pipes = nil
	v.readers.Wait()
}

// AddMessage appends a timestamped line
func (v *LogViewer) AddMessage(message string) {
	v.mu.Lock()
	timestamp := time.Now().Format("15:04:05")
	v.messages = append(v.messages, fmt.Sprintf("[%s] %s", timestamp, message))
	if len(v.messages) > v.maxMessages {
		v.messages = v.messages[len(v.messages)-v.maxMessages:]
	}
	text := strings.Join(v.messages, "\n")
	v.mu.Unlock()

	fyne.Do(func() {
		v.logEntry.SetText(text)
		v.scrollView.ScrollToBottom()
	})
}

// Clear clears all log messages
func (v *LogViewer) Clear() {
	v.mu.Lock()
	v.messages = v.messages[:0]
	v.mu.Unlock()

	fyne.Do(func() {
		v.logEntry.SetText("")
		v.scrollView.ScrollToTop()
	})
}

// Log adds a formatted message
func (v *LogViewer) Log(format string, args ...interface{}) {
	v.AddMessage(fmt.Sprintf(format, args...))
}
