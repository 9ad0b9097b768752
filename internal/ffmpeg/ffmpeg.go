package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

const (
	probeTimeout = 30 * time.Second
	remuxTimeout = 120 * time.Second
	frameTimeout = 30 * time.Second

	// Instagram clip cover dimensions
	coverWidth = 1080
)

// MediaInfo describes a probed video file.
type MediaInfo struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
}

// Processor runs ffmpeg operations. Binaries are overridable in tests.
type Processor struct {
	ffmpegBin  string
	ffprobeBin string
}

// New creates a processor using the ffmpeg/ffprobe binaries on PATH.
func New() *Processor {
	return &Processor{ffmpegBin: "ffmpeg", ffprobeBin: "ffprobe"}
}

// Check verifies both binaries are available.
func (p *Processor) Check(ctx context.Context) error {
	for _, bin := range []string{p.ffmpegBin, p.ffprobeBin} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH", bin)
		}
	}
	return nil
}

// probeOutput is the subset of ffprobe's JSON the pipeline reads.
type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads duration, dimensions, and video codec from a file.
func (p *Processor) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	start := time.Now()
	status := "success"
	defer func() { p.record("probe", status, start) }()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		status = "error"
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, stderr.String())
	}

	var output probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		status = "error"
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	info.Duration, _ = strconv.ParseFloat(output.Format.Duration, 64)
	for _, stream := range output.Streams {
		if stream.CodecType == "video" {
			info.Codec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
			break
		}
	}
	return info, nil
}

// FastStart remuxes a file in place so the moov atom leads and playback
// can start before the whole file transfers. Stream copies only, no
// re-encode.
func (p *Processor) FastStart(ctx context.Context, path string) error {
	start := time.Now()
	status := "success"
	defer func() { p.record("faststart", status, start) }()

	ctx, cancel := context.WithTimeout(ctx, remuxTimeout)
	defer cancel()

	tmpPath := path + ".remux.mp4"
	cmd := exec.CommandContext(ctx, p.ffmpegBin,
		"-y",
		"-i", path,
		"-c", "copy",
		"-movflags", "+faststart",
		tmpPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		status = "error"
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logging.Warn("Failed to remove remux temp file: %v", removeErr)
		}
		return fmt.Errorf("remux failed: %w - %s", err, truncate(stderr.String(), 200))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		status = "error"
		return fmt.Errorf("failed to replace original with remux: %w", err)
	}

	logging.Debug("Remuxed %s in %v", path, time.Since(start))
	return nil
}

// CoverFrame extracts a frame one second in, resizes it to Instagram's
// cover width, and writes it as JPEG to outPath.
func (p *Processor) CoverFrame(ctx context.Context, videoPath, outPath string) error {
	start := time.Now()
	status := "success"
	defer func() { p.record("cover_frame", status, start) }()

	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	rawPath := outPath + ".raw.jpg"
	cmd := exec.CommandContext(ctx, p.ffmpegBin,
		"-y",
		"-ss", "1",
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		rawPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		status = "error"
		return fmt.Errorf("frame extraction failed: %w - %s", err, truncate(stderr.String(), 200))
	}
	defer func() {
		if err := os.Remove(rawPath); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove raw frame: %v", err)
		}
	}()

	img, err := imaging.Open(rawPath, imaging.AutoOrientation(true))
	if err != nil {
		status = "error"
		return fmt.Errorf("failed to open extracted frame: %w", err)
	}

	if img.Bounds().Dx() > coverWidth {
		img = imaging.Resize(img, coverWidth, 0, imaging.Lanczos)
	}

	if err := imaging.Save(img, outPath, imaging.JPEGQuality(jpeg.DefaultQuality)); err != nil {
		status = "error"
		return fmt.Errorf("failed to save cover frame: %w", err)
	}

	logging.Debug("Extracted cover frame %s in %v", outPath, time.Since(start))
	return nil
}

func (p *Processor) record(operation, status string, start time.Time) {
	metrics.FFmpegInvocationsTotal.WithLabelValues(operation, status).Inc()
	metrics.FFmpegDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
