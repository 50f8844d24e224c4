package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/companion"
)

// FileOutput "plays" a segment by writing it to disk and holding the output
// for the segment's duration.
type FileOutput struct {
	dir string

	mu  sync.Mutex
	seq int
}

// NewFileOutput creates dir if needed.
func NewFileOutput(dir string) (*FileOutput, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &FileOutput{dir: dir}, nil
}

// Start writes seg and returns a source that finishes after seg.Duration.
func (o *FileOutput) Start(ctx context.Context, seg companion.Segment) (companion.Source, error) {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.mu.Unlock()

	format := seg.Format
	if format == "" {
		format = "bin"
	}
	path := filepath.Join(o.dir, fmt.Sprintf("%04d-%02d.%s", seq, seg.Index, format))
	if err := os.WriteFile(path, seg.Audio, 0o644); err != nil {
		return nil, fmt.Errorf("write segment: %w", err)
	}

	src := &timedSource{done: make(chan struct{})}
	src.timer = time.AfterFunc(seg.Duration, src.finish)
	return src, nil
}

type timedSource struct {
	done  chan struct{}
	once  sync.Once
	timer *time.Timer
}

func (s *timedSource) Done() <-chan struct{} { return s.done }

func (s *timedSource) Stop() {
	s.timer.Stop()
	s.finish()
}

func (s *timedSource) finish() {
	s.once.Do(func() { close(s.done) })
}

// printDriver renders the avatar as status lines.
type printDriver struct {
	mu   sync.Mutex
	w    io.Writer
	open bool
}

func (d *printDriver) SetMouthOpenness(value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// only edges are printed
	open := value > 0.05
	if open == d.open {
		return
	}
	d.open = open
	if !open {
		fmt.Fprintln(d.w, "  (Yui stops talking)")
	}
}

func (d *printDriver) SetExpression(label emotion.Label) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "  (Yui looks %s)\n", label)
}

func (d *printDriver) Focus(x, y float64) {}

func (d *printDriver) Resize() {}
