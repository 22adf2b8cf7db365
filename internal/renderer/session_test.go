package renderer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/rendercast/internal/registry"
)

type fakeClient struct {
	mu        sync.Mutex
	loaded    string
	media     Media
	calls     []string
	seek      int
	volume    int
	hwMax     int
	position  map[string]string
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{hwMax: 100, volume: 20, done: make(chan struct{})}
}

func (c *fakeClient) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *fakeClient) Load(_ context.Context, u string, m Media) error {
	c.mu.Lock()
	c.loaded, c.media = u, m
	c.mu.Unlock()
	c.record("load")
	return nil
}

func (c *fakeClient) Play(context.Context) error  { c.record("play"); return nil }
func (c *fakeClient) Pause(context.Context) error { c.record("pause"); return nil }
func (c *fakeClient) Stop(context.Context) error  { c.record("stop"); return nil }

func (c *fakeClient) Seek(_ context.Context, s int) error {
	c.mu.Lock()
	c.seek = s
	c.mu.Unlock()
	c.record("seek")
	return nil
}

func (c *fakeClient) CallAction(_ context.Context, service, action string, args map[string]string) (map[string]string, error) {
	c.record(service + "." + action)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch action {
	case "GetVolume":
		return map[string]string{"CurrentVolume": strconv.Itoa(c.volume)}, nil
	case "SetVolume":
		v, _ := strconv.Atoi(args["DesiredVolume"])
		c.volume = min(v, c.hwMax)
		return nil, nil
	case "GetPositionInfo":
		return c.position, nil
	}
	return nil, errors.New("unsupported action " + action)
}

func (c *fakeClient) Done() <-chan struct{} { return c.done }

func (c *fakeClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

var testDevice = registry.Device{Name: "Living Room", Host: "10.0.0.5", Location: "http://10.0.0.5/desc.xml"}

func dialerFor(clients ...*fakeClient) (Dialer, *atomic.Int32) {
	var n atomic.Int32
	return func(_ context.Context, location string) (Client, error) {
		i := int(n.Add(1)) - 1
		if location != testDevice.Location {
			return nil, errors.New("wrong location " + location)
		}
		return clients[min(i, len(clients)-1)], nil
	}, &n
}

func TestSession_PlayConnectsAndLoads(t *testing.T) {
	client := newFakeClient()
	dial, dials := dialerFor(client)
	s := NewSession(testDevice, dial)

	if s.State() != Disconnected {
		t.Fatalf("State() = %v, want disconnected", s.State())
	}

	err := s.Play(context.Background(), "http://media/movie.mkv", PlayOptions{
		Title:     "Movie",
		Subtitles: []string{"http://media/movie.srt"},
		Seek:      30,
	})
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	if s.State() != Connected {
		t.Errorf("State() = %v, want connected", s.State())
	}
	if dials.Load() != 1 {
		t.Errorf("dials = %d, want 1", dials.Load())
	}
	if client.loaded != "http://media/movie.mkv" || !client.media.AutoPlay || client.media.Title != "Movie" {
		t.Errorf("loaded %q with %+v", client.loaded, client.media)
	}
	if client.media.SubtitlesURL != "http://media/movie.srt" {
		t.Errorf("SubtitlesURL = %q", client.media.SubtitlesURL)
	}
	if client.seek != 30 {
		t.Errorf("seek = %d, want 30", client.seek)
	}
}

func TestSession_PlayEmptyURLResumes(t *testing.T) {
	s := NewSession(testDevice, func(context.Context, string) (Client, error) { return newFakeClient(), nil })

	if err := s.Play(context.Background(), "", PlayOptions{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Play(\"\") before connect = %v, want ErrNotConnected", err)
	}
}

func TestSession_ControlsRequireConnection(t *testing.T) {
	s := NewSession(testDevice, func(context.Context, string) (Client, error) { return newFakeClient(), nil })
	ctx := context.Background()

	checks := map[string]func() error{
		"Pause":  func() error { return s.Pause(ctx) },
		"Resume": func() error { return s.Resume(ctx) },
		"Stop":   func() error { return s.Stop(ctx) },
		"Seek":   func() error { return s.Seek(ctx, 5) },
		"Volume": func() error { _, err := s.Volume(ctx); return err },
	}
	for name, fn := range checks {
		if err := fn(); !errors.Is(err, ErrNotConnected) {
			t.Errorf("%s() = %v, want ErrNotConnected", name, err)
		}
	}
}

func TestSession_EnsureConnectedSharesDial(t *testing.T) {
	client := newFakeClient()
	release := make(chan struct{})
	var dials atomic.Int32
	s := NewSession(testDevice, func(context.Context, string) (Client, error) {
		dials.Add(1)
		<-release
		return client, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.EnsureConnected(context.Background()); err != nil {
				t.Errorf("EnsureConnected() error = %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	if s.State() != Connecting {
		t.Errorf("State() = %v, want connecting", s.State())
	}
	close(release)
	wg.Wait()

	if n := dials.Load(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestSession_RedialsAfterClientCloses(t *testing.T) {
	first, second := newFakeClient(), newFakeClient()
	dial, dials := dialerFor(first, second)
	s := NewSession(testDevice, dial)
	ctx := context.Background()

	if _, err := s.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	_ = first.Close()

	deadline := time.Now().Add(time.Second)
	for s.State() != Disconnected {
		if time.Now().After(deadline) {
			t.Fatal("session did not observe client close")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, err := s.EnsureConnected(ctx)
	if err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if got != Client(second) {
		t.Error("EnsureConnected() did not return the redialed client")
	}
	if dials.Load() != 2 {
		t.Errorf("dials = %d, want 2", dials.Load())
	}
}

func TestSession_DialError(t *testing.T) {
	boom := errors.New("unreachable")
	s := NewSession(testDevice, func(context.Context, string) (Client, error) { return nil, boom })

	if _, err := s.EnsureConnected(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("EnsureConnected() = %v, want %v", err, boom)
	}
	if s.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
}

func TestSession_VolumeAndStatus(t *testing.T) {
	client := newFakeClient()
	client.hwMax = 30
	client.volume = 10
	client.position = map[string]string{"AbsTime": "NOT_IMPLEMENTED", "RelTime": "0:01:40"}
	dial, _ := dialerFor(client)
	s := NewSession(testDevice, dial)
	ctx := context.Background()

	if err := s.Play(ctx, "http://media/a.mp4", PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	detected, err := s.DetectMaxVolume(ctx)
	if err != nil {
		t.Fatalf("DetectMaxVolume() error = %v", err)
	}
	if detected != 30 {
		t.Errorf("DetectMaxVolume() = %d, want 30", detected)
	}
	if client.volume != 10 {
		t.Errorf("volume after detection = %d, want restored 10", client.volume)
	}

	if err := s.SetVolume(ctx, 0.5); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if client.volume != 15 {
		t.Errorf("device volume = %d, want 15", client.volume)
	}

	st, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.CurrentTime != 100 {
		t.Errorf("CurrentTime = %d, want 100 (RelTime fallback)", st.CurrentTime)
	}
	if st.Volume != 0.5 {
		t.Errorf("Volume = %v, want 0.5", st.Volume)
	}
	if st.PlayerState != "PLAYING" {
		t.Errorf("PlayerState = %q, want PLAYING", st.PlayerState)
	}

	if err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if st, _ := s.Status(ctx); st.PlayerState != "PAUSED" {
		t.Errorf("PlayerState = %q, want PAUSED", st.PlayerState)
	}
}

func TestSession_Close(t *testing.T) {
	client := newFakeClient()
	dial, _ := dialerFor(client)
	s := NewSession(testDevice, dial)
	ctx := context.Background()

	if _, err := s.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-client.Done():
	default:
		t.Error("client not closed")
	}
	if _, err := s.EnsureConnected(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("EnsureConnected() after Close = %v, want ErrClosed", err)
	}
	if err := s.Pause(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Pause() after Close = %v, want ErrClosed", err)
	}
}
