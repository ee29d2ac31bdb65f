package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

const scriptName = "mediapipe_service.py"

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Frames are sent as a 4-byte big-endian length, an 8-byte big-endian
// timestamp in milliseconds and the JPEG payload. The service answers each
// frame with one JSON line.
type MediaPipeDetector struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	loaded bool
}

// NewMediaPipeDetector creates a new MediaPipe detector. Nothing is started
// until Load is called.
func NewMediaPipeDetector(config Config) *MediaPipeDetector {
	return &MediaPipeDetector{config: config}
}

// Load starts the Python service and waits for it to report that the hand
// landmark model is ready.
func (d *MediaPipeDetector) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return nil
	}

	scriptPath := d.config.ScriptPath
	if scriptPath == "" {
		scriptPath = findMediaPipeScript()
	}
	if scriptPath == "" {
		return fmt.Errorf("%s not found", scriptName)
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, scriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)

	// The service prints a single status line once the model is in memory.
	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		d.kill()
		return fmt.Errorf("read ready line: %w", err)
	}
	var status struct {
		Ready bool   `json:"ready"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &status); err != nil {
		d.kill()
		return fmt.Errorf("parse ready line: %w", err)
	}
	if !status.Ready {
		d.kill()
		if status.Error == "" {
			status.Error = "service did not report ready"
		}
		return errors.New(status.Error)
	}

	d.loaded = true
	return nil
}

// Detect analyzes a frame and returns detected hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat, timestampMs int64) ([]HandLandmarks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return nil, ErrNotLoaded
	}
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	binary.BigEndian.PutUint64(header[4:], uint64(timestampMs))

	if _, err := d.stdin.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return parseResponse(line)
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		return nil
	}
	if d.stdin != nil {
		d.stdin.Close()
	}
	err := d.cmd.Wait()
	d.reset()
	return err
}

func (d *MediaPipeDetector) kill() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
		d.cmd.Wait()
	}
	d.reset()
}

func (d *MediaPipeDetector) reset() {
	d.loaded = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
}

func parseResponse(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe: %s", response.Error)
	}

	result := make([]HandLandmarks, len(response.Hands))
	for i, h := range response.Hands {
		result[i] = h.toHandLandmarks()
	}
	return result, nil
}

func findMediaPipeScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	return firstExisting(
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(os.Getenv("HOME"), ".fingerglow", "scripts", scriptName),
	)
}

// findVenvPython looks for a Python interpreter in a virtual environment
// next to the working directory, the executable or the user's data dir.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	return firstExisting(
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".fingerglow/venv/bin/python"),
	)
}

func firstExisting(candidates ...string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if absPath, err := filepath.Abs(path); err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	copy(lm.Points[:], h.Points)
	return lm
}
