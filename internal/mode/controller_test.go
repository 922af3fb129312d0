package mode

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/coolpanel/internal/media"
	"github.com/nerrad567/coolpanel/internal/settings"
)

// fakeSource plays a fixed list of frames.
type fakeSource struct {
	frames  []*image.RGBA
	count   int
	fps     float64
	pos     int
	nextErr error
	closed  bool
}

func (f *fakeSource) FrameCount() int { return f.count }
func (f *fakeSource) FPS() float64    { return f.fps }

func (f *fakeSource) Next() (*image.RGBA, error) {
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	if f.pos >= len(f.frames) {
		return nil, io.EOF
	}
	fr := f.frames[f.pos]
	f.pos++
	return fr, nil
}

func (f *fakeSource) Rewind() error { f.pos = 0; return nil }
func (f *fakeSource) Close() error  { f.closed = true; return nil }

type fakeOpener struct {
	mu      sync.Mutex
	sources map[string]*fakeSource
	fresh   func() *fakeSource
	source  media.Source
	err     error
}

func (f *fakeOpener) Open(_ context.Context, path string) (media.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.fresh != nil {
		return f.fresh(), nil
	}
	if f.source != nil {
		return f.source, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[path]
	if !ok {
		return nil, media.ErrUnsupported
	}
	return src, nil
}

type recordingStore struct {
	mu      sync.Mutex
	updates []settings.Update
	err     error
}

func (r *recordingStore) Merge(_ context.Context, u settings.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return r.err
}

func (r *recordingStore) last() settings.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func frameOf(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// touch creates an empty file so the existence check passes.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, nil, 0600))
	return p
}

type fixture struct {
	ctrl   *Controller
	opener *fakeOpener
	store  *recordingStore
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	opener := &fakeOpener{sources: map[string]*fakeSource{}}
	store := &recordingStore{}
	return &fixture{
		ctrl:   New(opener, store, 30),
		opener: opener,
		store:  store,
		dir:    t.TempDir(),
	}
}

func (f *fixture) add(t *testing.T, name string, src *fakeSource) string {
	t.Helper()
	p := touch(t, f.dir, name)
	f.opener.sources[p] = src
	return p
}

var (
	red  = color.RGBA{255, 0, 0, 255}
	blue = color.RGBA{0, 0, 255, 255}
)

func TestController_InitialState(t *testing.T) {
	c := New(&fakeOpener{}, nil, 0)
	v := c.View()
	assert.Equal(t, Monitor, v.Mode)
	assert.Equal(t, 1.0, v.Brightness)
	assert.Nil(t, v.Frame)
}

func TestController_SetMediaNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.SetMedia(context.Background(), filepath.Join(f.dir, "missing.mp4"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, Monitor, f.ctrl.View().Mode)
	assert.Empty(t, f.store.updates)
}

func TestController_SetMediaOpenErrors(t *testing.T) {
	tests := []struct {
		name string
		src  *fakeSource
	}{
		{name: "decoder rejects", src: nil},
		{name: "no first frame", src: &fakeSource{count: 10, fps: 25}},
		{name: "first frame unreadable", src: &fakeSource{nextErr: errors.New("corrupt")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := touch(t, f.dir, "clip.bin")
			if tt.src != nil {
				f.opener.sources[p] = tt.src
			}

			_, err := f.ctrl.SetMedia(context.Background(), p)
			assert.ErrorIs(t, err, ErrOpen)
			assert.Equal(t, Monitor, f.ctrl.View().Mode)
			if tt.src != nil {
				assert.True(t, tt.src.closed, "rejected source must be released")
			}
		})
	}
}

func TestController_SetMediaDirectory(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.SetMedia(context.Background(), f.dir)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestController_SetMediaEmptyPath(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.SetMedia(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestController_Classification(t *testing.T) {
	tests := []struct {
		name    string
		src     *fakeSource
		want    Mode
		wantFPS float64
	}{
		{
			name: "single frame is static",
			src:  &fakeSource{frames: []*image.RGBA{frameOf(red)}, count: 1, fps: 25},
			want: Static,
		},
		{
			name: "zero fps is static",
			src:  &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 0},
			want: Static,
		},
		{
			name:    "multi frame with rate is video",
			src:     &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 24},
			want:    Video,
			wantFPS: 24,
		},
		{
			name:    "unknown count with rate is video",
			src:     &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: -1, fps: 12.5},
			want:    Video,
			wantFPS: 12.5,
		},
		{
			name:    "negative rate uses default",
			src:     &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: -1},
			want:    Video,
			wantFPS: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.add(t, "media", tt.src)

			msg, err := f.ctrl.SetMedia(context.Background(), p)
			require.NoError(t, err)
			assert.NotEmpty(t, msg)

			v := f.ctrl.View()
			assert.Equal(t, tt.want, v.Mode)
			assert.Equal(t, p, v.MediaPath)
			assert.InDelta(t, tt.wantFPS, v.FPS, 1e-9)

			if tt.want == Static {
				require.NotNil(t, v.Frame)
				assert.Equal(t, red, v.Frame.RGBAAt(0, 0))
				assert.True(t, tt.src.closed, "static source is cached and released")
			} else {
				assert.Nil(t, v.Frame)
				assert.False(t, tt.src.closed)
			}

			u := f.store.last()
			require.NotNil(t, u.Mode)
			require.NotNil(t, u.MediaPath)
			assert.Equal(t, string(tt.want), *u.Mode)
			assert.Equal(t, p, *u.MediaPath)
			assert.Nil(t, u.Brightness)
		})
	}
}

func TestController_SwitchReleasesPrevious(t *testing.T) {
	f := newFixture(t)
	first := &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 10}
	second := &fakeSource{frames: []*image.RGBA{frameOf(blue), frameOf(red)}, count: 2, fps: 20}
	p1 := f.add(t, "a.mp4", first)
	p2 := f.add(t, "b.mp4", second)

	_, err := f.ctrl.SetMedia(context.Background(), p1)
	require.NoError(t, err)
	_, err = f.ctrl.SetMedia(context.Background(), p2)
	require.NoError(t, err)

	assert.True(t, first.closed)
	assert.False(t, second.closed)

	_, err = f.ctrl.SetMonitor(context.Background())
	require.NoError(t, err)
	assert.True(t, second.closed)
	assert.Equal(t, Monitor, f.ctrl.View().Mode)
	assert.Equal(t, "monitor", *f.store.last().Mode)
}

func TestController_FailedSwitchKeepsState(t *testing.T) {
	f := newFixture(t)
	video := &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 10}
	p := f.add(t, "a.mp4", video)

	_, err := f.ctrl.SetMedia(context.Background(), p)
	require.NoError(t, err)

	_, err = f.ctrl.SetMedia(context.Background(), filepath.Join(f.dir, "gone.mp4"))
	require.ErrorIs(t, err, ErrNotFound)

	v := f.ctrl.View()
	assert.Equal(t, Video, v.Mode)
	assert.Equal(t, p, v.MediaPath)
	assert.False(t, video.closed)
}

func TestController_NextVideoFrameLoops(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 10}
	p := f.add(t, "loop.gif", src)

	_, err := f.ctrl.SetMedia(context.Background(), p)
	require.NoError(t, err)

	var got []color.RGBA
	for i := 0; i < 5; i++ {
		frame, ok := f.ctrl.NextVideoFrame()
		require.True(t, ok)
		got = append(got, frame.RGBAAt(0, 0))
	}
	assert.Equal(t, []color.RGBA{red, blue, red, blue, red}, got)
}

func TestController_NextVideoFrameSkipsUnreadable(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 10}
	p := f.add(t, "clip.mp4", src)

	_, err := f.ctrl.SetMedia(context.Background(), p)
	require.NoError(t, err)

	src.nextErr = errors.New("decode error")
	_, ok := f.ctrl.NextVideoFrame()
	assert.False(t, ok)
	assert.Equal(t, Video, f.ctrl.View().Mode)
}

func TestController_NextVideoFrameOutsideVideo(t *testing.T) {
	f := newFixture(t)
	_, ok := f.ctrl.NextVideoFrame()
	assert.False(t, ok)
}

func TestController_SetBrightness(t *testing.T) {
	tests := []struct {
		percent float64
		want    float64
	}{
		{150, 1.0},
		{-10, 0.0},
		{40, 0.4},
		{100, 1.0},
		{0, 0.0},
	}

	for _, tt := range tests {
		f := newFixture(t)
		_, err := f.ctrl.SetBrightness(context.Background(), tt.percent)
		require.NoError(t, err)

		assert.InDelta(t, tt.want, f.ctrl.View().Brightness, 1e-9, "percent %v", tt.percent)
		u := f.store.last()
		require.NotNil(t, u.Brightness)
		assert.InDelta(t, tt.want, *u.Brightness, 1e-9)
		assert.Nil(t, u.Mode, "brightness update must not touch mode")
	}
}

func TestController_PersistFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("disk full")

	_, err := f.ctrl.SetBrightness(context.Background(), 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f.ctrl.View().Brightness, 1e-9)
}

func TestController_OnChange(t *testing.T) {
	f := newFixture(t)
	var views []View
	f.ctrl.OnChange(func(v View) { views = append(views, v) })

	_, err := f.ctrl.SetBrightness(context.Background(), 20)
	require.NoError(t, err)
	_, err = f.ctrl.SetMonitor(context.Background())
	require.NoError(t, err)

	require.Len(t, views, 2)
	assert.InDelta(t, 0.2, views[0].Brightness, 1e-9)
	assert.Equal(t, Monitor, views[1].Mode)
}

func TestController_Restore(t *testing.T) {
	t.Run("media reopened", func(t *testing.T) {
		f := newFixture(t)
		src := &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 15}
		p := f.add(t, "clip.mp4", src)

		f.ctrl.Restore(context.Background(), settings.Settings{Mode: "video", MediaPath: p, Brightness: 0.3})

		v := f.ctrl.View()
		assert.Equal(t, Video, v.Mode)
		assert.InDelta(t, 15, v.FPS, 1e-9)
		assert.InDelta(t, 0.3, v.Brightness, 1e-9)
		assert.Empty(t, f.store.updates, "restore does not write back")
	})

	t.Run("missing media falls back to monitor", func(t *testing.T) {
		f := newFixture(t)
		f.ctrl.Restore(context.Background(), settings.Settings{
			Mode:       "static",
			MediaPath:  filepath.Join(f.dir, "deleted.png"),
			Brightness: 1,
		})
		assert.Equal(t, Monitor, f.ctrl.View().Mode)
	})

	t.Run("out of range brightness clamped", func(t *testing.T) {
		f := newFixture(t)
		f.ctrl.Restore(context.Background(), settings.Settings{Mode: "monitor", Brightness: 7})
		assert.Equal(t, 1.0, f.ctrl.View().Brightness)
	})
}

func TestController_Close(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 10}
	p := f.add(t, "clip.mp4", src)

	_, err := f.ctrl.SetMedia(context.Background(), p)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Close())
	assert.True(t, src.closed)
	require.NoError(t, f.ctrl.Close())
}

func TestController_ConcurrentReadsDuringTransitions(t *testing.T) {
	f := newFixture(t)
	f.opener.fresh = func() *fakeSource {
		return &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 10}
	}
	paths := []string{touch(t, f.dir, "a.mp4"), touch(t, f.dir, "b.mp4")}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			v := f.ctrl.View()
			if v.Mode == Video {
				assert.NotEmpty(t, v.MediaPath)
			}
			f.ctrl.NextVideoFrame()
		}
	}()

	for i := 0; i < 50; i++ {
		if i%3 == 0 {
			_, _ = f.ctrl.SetMonitor(context.Background())
			continue
		}
		_, _ = f.ctrl.SetMedia(context.Background(), paths[i%2])
	}
	<-done
}

// stallingSource serves the first frame, then blocks every later Next until
// release is closed. It records whether Close ran while a read was active.
type stallingSource struct {
	frame   *image.RGBA
	entered chan struct{}
	release chan struct{}

	mu            sync.Mutex
	calls         int
	reading       bool
	closed        bool
	closedMidRead bool
}

func newStallingSource() *stallingSource {
	return &stallingSource{
		frame:   frameOf(red),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *stallingSource) FrameCount() int { return 100 }
func (s *stallingSource) FPS() float64    { return 25 }
func (s *stallingSource) Rewind() error   { return nil }

func (s *stallingSource) Next() (*image.RGBA, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	if !first {
		s.reading = true
	}
	s.mu.Unlock()

	if first {
		return s.frame, nil
	}

	close(s.entered)
	<-s.release

	s.mu.Lock()
	s.reading = false
	s.mu.Unlock()
	return s.frame, nil
}

func (s *stallingSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reading {
		s.closedMidRead = true
	}
	s.closed = true
	return nil
}

func (s *stallingSource) state() (closed, midRead bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closedMidRead
}

func TestController_StalledVideoReadDoesNotBlockControl(t *testing.T) {
	f := newFixture(t)
	src := newStallingSource()
	f.opener.source = src
	p := touch(t, f.dir, "stream.mp4")

	_, err := f.ctrl.SetMedia(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, Video, f.ctrl.View().Mode)

	readDone := make(chan bool)
	go func() {
		_, ok := f.ctrl.NextVideoFrame()
		readDone <- ok
	}()

	select {
	case <-src.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("render read never reached the source")
	}

	switched := make(chan struct{})
	go func() {
		defer close(switched)
		_, _ = f.ctrl.SetBrightness(context.Background(), 50)
		_, _ = f.ctrl.SetMonitor(context.Background())
		_ = f.ctrl.View()
	}()

	select {
	case <-switched:
	case <-time.After(time.Second):
		t.Fatal("control requests blocked behind a stalled video read")
	}
	assert.Equal(t, Monitor, f.ctrl.View().Mode)

	closed, _ := src.state()
	assert.False(t, closed, "source closed while a read was in flight")

	close(src.release)
	select {
	case ok := <-readDone:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("render read did not finish after release")
	}

	require.NoError(t, f.ctrl.Close())
	closed, midRead := src.state()
	assert.True(t, closed)
	assert.False(t, midRead)
}

func TestController_NextVideoFrameAfterReplacement(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{frames: []*image.RGBA{frameOf(red), frameOf(blue)}, count: 2, fps: 10}
	p := f.add(t, "clip.mp4", src)

	_, err := f.ctrl.SetMedia(context.Background(), p)
	require.NoError(t, err)
	_, err = f.ctrl.SetMonitor(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Close())
	assert.True(t, src.closed)

	_, ok := f.ctrl.NextVideoFrame()
	assert.False(t, ok)
}
