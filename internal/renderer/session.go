package renderer

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/registry"
)

// ConnState is the connection state of a Session.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (c ConnState) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnState(%d)", int(c))
	}
}

const (
	avTransport      = "AVTransport"
	renderingControl = "RenderingControl"
	instanceID       = "0"
)

// Session is a Player for one device. It dials lazily and redials after
// the client reports its connection closed.
type Session struct {
	device registry.Device
	dial   Dialer

	mu        sync.Mutex
	state     ConnState
	client    Client
	closed    bool
	maxVolume int
	status    Status
	subtitles []string

	group singleflight.Group
}

var _ Player = (*Session)(nil)

// NewSession creates a disconnected session for device.
func NewSession(device registry.Device, dial Dialer) *Session {
	return &Session{device: device, dial: dial, maxVolume: DefaultMaxVolume}
}

// Device returns the renderer this session controls.
func (s *Session) Device() registry.Device {
	return s.device
}

// State returns the connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureConnected returns the current client, dialing if needed. Callers
// arriving during a dial share its result.
func (s *Session) EnsureConnected(ctx context.Context) (Client, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.state == Connected {
		c := s.client
		s.mu.Unlock()
		return c, nil
	}
	s.state = Connecting
	s.mu.Unlock()

	ch := s.group.DoChan("connect", func() (interface{}, error) {
		return s.connect(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Client), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) connect(ctx context.Context) (Client, error) {
	client, err := s.dial(ctx, s.device.Location)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = Disconnected
		return nil, fmt.Errorf("connect to %s: %w", s.device.Name, err)
	}
	if s.closed {
		_ = client.Close()
		return nil, ErrClosed
	}

	s.client = client
	s.state = Connected
	go s.watch(client)

	logging.Debug("Renderer connected",
		zap.String("name", s.device.Name),
		zap.String("location", s.device.Location),
	)
	return client, nil
}

// watch returns the session to Disconnected when client closes, so the
// next call dials again.
func (s *Session) watch(client Client) {
	<-client.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != client {
		return
	}
	s.client = nil
	if s.state == Connected {
		s.state = Disconnected
	}
	logging.Debug("Renderer connection closed", zap.String("name", s.device.Name))
}

// connected returns the live client without dialing.
func (s *Session) connected() (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.state != Connected {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// Play loads mediaURL and starts playback. An empty URL resumes.
func (s *Session) Play(ctx context.Context, mediaURL string, opts PlayOptions) error {
	if mediaURL == "" {
		return s.Resume(ctx)
	}

	client, err := s.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	media := Media{
		ContentType:  opts.ContentType,
		AutoPlay:     !opts.NoAutoPlay,
		Title:        opts.Title,
		Kind:         "video",
		DLNAFeatures: opts.DLNAFeatures,
	}
	if media.ContentType == "" {
		media.ContentType = ContentTypeFor(mediaURL)
	}
	if len(opts.Subtitles) > 0 {
		media.SubtitlesURL = opts.Subtitles[0]
	}

	s.mu.Lock()
	s.subtitles = opts.Subtitles
	s.mu.Unlock()

	if err := client.Load(ctx, mediaURL, media); err != nil {
		return fmt.Errorf("load %s: %w", mediaURL, err)
	}
	if media.AutoPlay {
		s.setPlayerState("PLAYING")
	}
	if opts.Seek > 0 {
		return client.Seek(ctx, opts.Seek)
	}
	return nil
}

// Resume continues paused playback.
func (s *Session) Resume(ctx context.Context) error {
	client, err := s.connected()
	if err != nil {
		return err
	}
	if err := client.Play(ctx); err != nil {
		return err
	}
	s.setPlayerState("PLAYING")
	return nil
}

// Pause pauses playback.
func (s *Session) Pause(ctx context.Context) error {
	client, err := s.connected()
	if err != nil {
		return err
	}
	if err := client.Pause(ctx); err != nil {
		return err
	}
	s.setPlayerState("PAUSED")
	return nil
}

// Stop stops playback; the connection stays open.
func (s *Session) Stop(ctx context.Context) error {
	client, err := s.connected()
	if err != nil {
		return err
	}
	if err := client.Stop(ctx); err != nil {
		return err
	}
	s.setPlayerState("STOPPED")
	return nil
}

// Seek jumps to an absolute position in seconds.
func (s *Session) Seek(ctx context.Context, seconds int) error {
	client, err := s.connected()
	if err != nil {
		return err
	}
	return client.Seek(ctx, seconds)
}

// Request invokes an arbitrary action on the connected client.
func (s *Session) Request(ctx context.Context, service, action string, args map[string]string) (map[string]string, error) {
	client, err := s.connected()
	if err != nil {
		return nil, err
	}
	return client.CallAction(ctx, service, action, args)
}

// SetVolume sets the Master volume; level is a fraction in [0, 1].
func (s *Session) SetVolume(ctx context.Context, level float64) error {
	level = math.Max(0, math.Min(1, level))
	s.mu.Lock()
	scale := s.maxVolume
	s.mu.Unlock()
	return s.setRawVolume(ctx, int(float64(scale)*level))
}

func (s *Session) setRawVolume(ctx context.Context, v int) error {
	client, err := s.connected()
	if err != nil {
		return err
	}
	_, err = client.CallAction(ctx, renderingControl, "SetVolume", map[string]string{
		"InstanceID":    instanceID,
		"Channel":       "Master",
		"DesiredVolume": strconv.Itoa(v),
	})
	return err
}

// Volume returns the Master volume as a fraction of the maximum.
func (s *Session) Volume(ctx context.Context) (float64, error) {
	v, err := s.rawVolume(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	scale := s.maxVolume
	s.mu.Unlock()
	if scale <= 0 {
		return 0, nil
	}
	return float64(v) / float64(scale), nil
}

func (s *Session) rawVolume(ctx context.Context) (int, error) {
	client, err := s.connected()
	if err != nil {
		return 0, err
	}
	res, err := client.CallAction(ctx, renderingControl, "GetVolume", map[string]string{
		"InstanceID": instanceID,
		"Channel":    "Master",
	})
	if err != nil {
		return 0, err
	}
	v, _ := strconv.Atoi(res["CurrentVolume"])
	return v, nil
}

// DetectMaxVolume finds the device's volume scale by setting the volume to
// the current maximum, reading it back, and restoring the original level.
func (s *Session) DetectMaxVolume(ctx context.Context) (int, error) {
	current, err := s.rawVolume(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	probe := s.maxVolume
	s.mu.Unlock()

	if err := s.setRawVolume(ctx, probe); err != nil {
		return 0, err
	}
	detected, err := s.rawVolume(ctx)
	if err != nil {
		return 0, err
	}
	if detected > 0 {
		s.mu.Lock()
		s.maxVolume = detected
		s.mu.Unlock()
	}
	if err := s.setRawVolume(ctx, current); err != nil {
		return detected, err
	}
	return detected, nil
}

// Status queries position and volume.
func (s *Session) Status(ctx context.Context) (Status, error) {
	client, err := s.connected()
	if err != nil {
		return Status{}, err
	}

	pos, err := client.CallAction(ctx, avTransport, "GetPositionInfo", map[string]string{"InstanceID": instanceID})
	if err != nil {
		return Status{}, err
	}
	current := ParseClock(pos["AbsTime"])
	if current == 0 {
		current = ParseClock(pos["RelTime"])
	}

	vol, err := s.Volume(ctx)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.CurrentTime = current
	s.status.Volume = vol
	return s.status, nil
}

func (s *Session) setPlayerState(state string) {
	s.mu.Lock()
	s.status.PlayerState = state
	s.mu.Unlock()
}

// Close closes the client and fails every later call with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.state = Disconnected
	s.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}
