package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// framePattern is the zero-padded filename pattern for keyframe JPEGs.
const framePattern = "frame_%04d.jpg"

const defaultMuxTimeout = 30 * time.Second

// Encoder produces the muxed MP4 from on-disk artefacts. The production
// implementation shells out to ffmpeg; tests substitute a fake.
type Encoder interface {
	// Mux encodes the JPEG sequence in framesDir (framePattern naming, 1 fps)
	// and the optional WAV at wavPath into an MP4 at outPath. Empty wavPath
	// means a silent clip. Duration follows the shortest input stream.
	Mux(ctx context.Context, framesDir, wavPath, outPath string) error
}

// FFmpegEncoder invokes the external ffmpeg binary.
type FFmpegEncoder struct {
	// Path is the ffmpeg binary, resolved via PATH when not absolute.
	Path string

	// Timeout bounds one invocation. Zero means defaultMuxTimeout.
	Timeout time.Duration
}

var _ Encoder = (*FFmpegEncoder)(nil)

// Mux runs ffmpeg over the frame sequence and optional WAV.
func (e *FFmpegEncoder) Mux(ctx context.Context, framesDir, wavPath, outPath string) error {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultMuxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"-y", "-framerate", "1", "-i", filepath.Join(framesDir, framePattern)}
	if wavPath != "" {
		args = append(args, "-i", wavPath, "-c:a", "aac", "-shortest")
	}
	args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", "-r", "1", outPath)

	cmd := exec.CommandContext(ctx, e.Path, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("media: ffmpeg: %w: %s", err, out)
	}
	return nil
}

// Muxer turns a flushed buffer snapshot into filesystem artefacts under a
// fixed per-question layout:
//
//	<root>/<session_id>_q<N>_frames/frame_%04d.jpg
//	<root>/<session_id>_q<N>.wav
//	<root>/<session_id>_q<N>_av.mp4
//
// Finalize is idempotent for identical inputs: filenames derive only from the
// (session, question) key and existing artefacts are overwritten in place.
type Muxer struct {
	root    string
	encoder Encoder
	log     *slog.Logger
}

// NewMuxer returns a Muxer writing under root. encoder may be nil, in which
// case no MP4 is produced and the WAV (if any) is the best artefact.
func NewMuxer(root string, encoder Encoder) *Muxer {
	return &Muxer{root: root, encoder: encoder, log: slog.Default()}
}

// Finalize writes the snapshot's artefacts and returns the best available
// clip path: the MP4 when muxing succeeded, else the WAV, else "". Encoder
// failure is non-fatal and only logged; a WAV or JPEG write failure surfaces
// as the error alongside whatever path is still usable.
func (m *Muxer) Finalize(ctx context.Context, sessionID string, questionIndex int, audio, frames [][]byte) (string, error) {
	if len(audio) == 0 && len(frames) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("media: create clip root: %w", err)
	}

	base := fmt.Sprintf("%s_q%d", sessionID, questionIndex)

	var wavPath string
	if len(audio) > 0 {
		wavPath = filepath.Join(m.root, base+".wav")
		if err := m.writeWAVFile(wavPath, audio); err != nil {
			return "", err
		}
	}

	var framesDir string
	if len(frames) > 0 {
		framesDir = filepath.Join(m.root, base+"_frames")
		if err := m.writeFrames(framesDir, frames); err != nil {
			return wavPath, err
		}
	}

	// Audio-only: nothing to encode, the WAV is the clip.
	if framesDir == "" {
		return wavPath, nil
	}

	if m.encoder == nil {
		return wavPath, nil
	}
	mp4Path := filepath.Join(m.root, base+"_av.mp4")
	if err := m.encoder.Mux(ctx, framesDir, wavPath, mp4Path); err != nil {
		m.log.Warn("clip mux failed, keeping raw artefacts",
			"session_id", sessionID, "question_index", questionIndex, "error", err)
		return wavPath, nil
	}
	return mp4Path, nil
}

func (m *Muxer) writeWAVFile(path string, audio [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("media: create WAV: %w", err)
	}
	if err := WriteWAV(f, audio); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("media: close WAV: %w", err)
	}
	return nil
}

func (m *Muxer) writeFrames(dir string, frames [][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("media: create frames dir: %w", err)
	}
	for i, frame := range frames {
		name := filepath.Join(dir, fmt.Sprintf(framePattern, i))
		if err := os.WriteFile(name, frame, 0o644); err != nil {
			return fmt.Errorf("media: write frame %d: %w", i, err)
		}
	}
	return nil
}
