package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/coolpanel/internal/process"
)

// probeInfo is what ffprobe reports about the first video stream.
type probeInfo struct {
	FPS    float64
	Frames int // -1 when unknown
}

// ffprobeOutput mirrors `ffprobe -of json -show_entries stream=...`.
type ffprobeOutput struct {
	Streams []struct {
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

func probe(ctx context.Context, binary string, timeout time.Duration, path string) (probeInfo, error) {
	out, err := process.Output(ctx, timeout, binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,r_frame_rate,nb_frames",
		"-of", "json",
		path,
	)
	if err != nil {
		return probeInfo{}, err
	}
	return parseProbe(out)
}

// parseProbe extracts the frame rate and count. A missing or non-numeric
// nb_frames (common for streamed containers) is reported as -1.
func parseProbe(data []byte) (probeInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return probeInfo{}, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return probeInfo{}, ErrNoFrames
	}

	s := out.Streams[0]
	info := probeInfo{Frames: -1}

	info.FPS = parseRate(s.AvgFrameRate)
	if info.FPS == 0 {
		info.FPS = parseRate(s.RFrameRate)
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil {
		info.Frames = n
	}
	return info, nil
}

// parseRate parses "30000/1001" or "25". Malformed or undefined rates
// ("0/0") return 0.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return sanitizeRate(n)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return sanitizeRate(n / d)
}

func sanitizeRate(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ffmpegSource streams raw rgb24 frames from an ffmpeg child process.
type ffmpegSource struct {
	proc   *process.Manager
	ctx    context.Context
	info   probeInfo
	width  int
	height int
	rgb    []byte
	frame  *image.RGBA
	closed bool
}

func newFFmpegSource(ctx context.Context, cfg Config, info probeInfo, path string, logger Logger) (*ffmpegSource, error) {
	proc := process.NewManager(process.Config{
		Name:   "ffmpeg",
		Binary: cfg.FFmpegBinary,
		Args: []string{
			"-hide_banner", "-loglevel", "error", "-nostdin",
			"-i", path,
			"-an",
			"-vf", fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height),
			"-f", "rawvideo", "-pix_fmt", "rgb24",
			"-",
		},
		GracefulTimeout: 2 * time.Second,
	})
	proc.SetLogger(logger)

	s := &ffmpegSource{
		proc:   proc,
		ctx:    context.WithoutCancel(ctx),
		info:   info,
		width:  cfg.Width,
		height: cfg.Height,
		rgb:    make([]byte, cfg.Width*cfg.Height*3),
		frame:  image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
	}
	if err := proc.Start(s.ctx); err != nil {
		return nil, fmt.Errorf("starting decoder: %w", err)
	}
	return s, nil
}

func (s *ffmpegSource) FrameCount() int { return s.info.Frames }

func (s *ffmpegSource) FPS() float64 { return s.info.FPS }

// Next reads one frame. The returned raster is reused by the following call.
func (s *ffmpegSource) Next() (*image.RGBA, error) {
	if s.closed {
		return nil, ErrClosed
	}
	r := s.proc.Stdout()
	if r == nil {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(r, s.rgb); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	rgb24ToRGBA(s.frame, s.rgb)
	return s.frame, nil
}

// Rewind restarts the decoder from the beginning of the file.
func (s *ffmpegSource) Rewind() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.proc.Stop(); err != nil {
		return fmt.Errorf("stopping decoder: %w", err)
	}
	if err := s.proc.Start(s.ctx); err != nil {
		return fmt.Errorf("restarting decoder: %w", err)
	}
	return nil
}

func (s *ffmpegSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.proc.Stop()
}

// rgb24ToRGBA expands packed RGB into dst's RGBA pixels.
func rgb24ToRGBA(dst *image.RGBA, rgb []byte) {
	for i, j := 0, 0; i+2 < len(rgb) && j+3 < len(dst.Pix); i, j = i+3, j+4 {
		dst.Pix[j] = rgb[i]
		dst.Pix[j+1] = rgb[i+1]
		dst.Pix[j+2] = rgb[i+2]
		dst.Pix[j+3] = 0xFF
	}
}
