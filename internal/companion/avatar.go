package companion

import (
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

// AvatarDriver is the renderer boundary driven by the session.
type AvatarDriver interface {
	SetMouthOpenness(value float64)
	SetExpression(label emotion.Label)
	Focus(x, y float64)
	Resize()
}

const (
	defaultFrame        = 16 * time.Millisecond
	defaultPerCharacter = 55 * time.Millisecond
	mouthPeriodScale    = 100 * time.Millisecond
	focusScale          = 0.95
	defaultRecenter     = time.Second
	defaultEase         = time.Second
)

// MouthOpenness is the mouth curve at elapsed time into a spoken message.
func MouthOpenness(elapsed time.Duration) float64 {
	v := math.Sin(float64(elapsed)/float64(mouthPeriodScale))*0.5 + 0.5
	return clamp(v, 0, 1)
}

// SpeakingDuration is how long the mouth moves for content.
func SpeakingDuration(content string, perCharacter time.Duration) time.Duration {
	if perCharacter <= 0 {
		perCharacter = defaultPerCharacter
	}
	return time.Duration(utf8.RuneCountInString(content)) * perCharacter
}

// AnimatorConfig tunes the mouth animation. Zero values use the defaults.
type AnimatorConfig struct {
	Frame        time.Duration
	PerCharacter time.Duration
}

// Animator reacts to new assistant messages: it sets the expression and moves
// the mouth for a time proportional to the message length.
type Animator struct {
	driver AvatarDriver
	frame  time.Duration
	perCh  time.Duration

	mu     sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewAnimator returns an animator driving driver.
func NewAnimator(driver AvatarDriver, cfg AnimatorConfig) *Animator {
	if cfg.Frame <= 0 {
		cfg.Frame = defaultFrame
	}
	if cfg.PerCharacter <= 0 {
		cfg.PerCharacter = defaultPerCharacter
	}
	return &Animator{driver: driver, frame: cfg.Frame, perCh: cfg.PerCharacter}
}

// Attach subscribes the animator to assistant messages recorded in store.
func (a *Animator) Attach(store *Store) func() {
	return store.Subscribe(func(u Update) {
		if u.Kind == UpdateMessage && u.Message.Role == chat.RoleAssistant {
			a.React(u.Message)
		}
	})
}

// React sets the expression for msg and restarts the mouth animation.
func (a *Animator) React(msg chat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.stop != nil {
		close(a.stop)
	}

	label := msg.Emotion
	if !label.Valid() {
		label = emotion.Neutral
	}
	a.driver.SetExpression(label)

	stop := make(chan struct{})
	a.stop = stop
	duration := SpeakingDuration(msg.Content, a.perCh)
	a.wg.Add(1)
	go a.animate(stop, duration)
}

func (a *Animator) animate(stop <-chan struct{}, duration time.Duration) {
	defer a.wg.Done()

	start := time.Now()
	ticker := time.NewTicker(a.frame)
	defer ticker.Stop()

	for {
		elapsed := time.Since(start)
		if elapsed >= duration {
			a.driver.SetMouthOpenness(0)
			return
		}
		a.driver.SetMouthOpenness(MouthOpenness(elapsed))

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Close stops the running animation and closes the mouth.
func (a *Animator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.driver.SetMouthOpenness(0)
}

// FocusPoint maps a pointer position inside a width x height viewport to the
// avatar's focus range, with y pointing up.
func FocusPoint(x, y, width, height float64) (float64, float64) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	fx := (x/width - 0.5) * 2 * focusScale
	fy := -(y/height - 0.5) * 2 * focusScale
	return clamp(fx, -1, 1), clamp(fy, -1, 1)
}

// Ease is the ease-out curve used when returning focus to the centre.
func Ease(progress float64) float64 {
	return math.Sin(math.Pi * clamp(progress, 0, 1) / 2)
}

// FocusConfig tunes head tracking. Zero values use the defaults.
type FocusConfig struct {
	Frame         time.Duration
	RecenterDelay time.Duration
	EaseDuration  time.Duration
}

// FocusTracker follows the pointer and eases the avatar back to the centre
// after the pointer has been idle for RecenterDelay.
type FocusTracker struct {
	driver AvatarDriver
	cfg    FocusConfig

	mu     sync.Mutex
	width  float64
	height float64
	seq    int
	timer  *time.Timer
	closed bool
}

// NewFocusTracker returns a tracker for a width x height viewport.
func NewFocusTracker(driver AvatarDriver, width, height float64, cfg FocusConfig) *FocusTracker {
	if cfg.Frame <= 0 {
		cfg.Frame = defaultFrame
	}
	if cfg.RecenterDelay <= 0 {
		cfg.RecenterDelay = defaultRecenter
	}
	if cfg.EaseDuration <= 0 {
		cfg.EaseDuration = defaultEase
	}
	return &FocusTracker{driver: driver, cfg: cfg, width: width, height: height}
}

// Resize updates the viewport and tells the driver to rescale.
func (f *FocusTracker) Resize(width, height float64) {
	f.mu.Lock()
	if width > 0 && height > 0 {
		f.width, f.height = width, height
	}
	f.mu.Unlock()
	f.driver.Resize()
}

// Pointer moves focus towards the pointer at (x, y) and re-arms recentring.
func (f *FocusTracker) Pointer(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	fx, fy := FocusPoint(x, y, f.width, f.height)
	f.seq++
	seq := f.seq
	f.driver.Focus(fx, fy)

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.cfg.RecenterDelay, func() {
		f.recenter(seq, fx, fy)
	})
}

func (f *FocusTracker) recenter(seq int, fromX, fromY float64) {
	start := time.Now()
	ticker := time.NewTicker(f.cfg.Frame)
	defer ticker.Stop()

	for {
		progress := float64(time.Since(start)) / float64(f.cfg.EaseDuration)
		remaining := 1 - Ease(progress)
		if progress >= 1 {
			remaining = 0
		}

		f.mu.Lock()
		if f.closed || f.seq != seq {
			f.mu.Unlock()
			return
		}
		f.driver.Focus(fromX*remaining, fromY*remaining)
		f.mu.Unlock()

		if progress >= 1 {
			return
		}
		<-ticker.C
	}
}

// Close cancels pending recentring. No Focus call happens after it returns.
func (f *FocusTracker) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
