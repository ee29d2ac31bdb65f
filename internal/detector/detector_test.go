package detector

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func TestHandLandmarks_Fingertip(t *testing.T) {
	tests := []struct {
		name          string
		tipX, tipY    float64
		width, height int
		wantX, wantY  float64
		wantOK        bool
	}{
		{name: "center of 1000x800", tipX: 0.5, tipY: 0.5, width: 1000, height: 800, wantX: 500, wantY: 400, wantOK: true},
		{name: "top left corner", tipX: 0, tipY: 0, width: 640, height: 480, wantX: 0, wantY: 0, wantOK: true},
		{name: "bottom right corner", tipX: 1, tipY: 1, width: 640, height: 480, wantX: 640, wantY: 480, wantOK: true},
		{name: "past right edge", tipX: 1.2, tipY: 0.5, width: 1000, height: 800, wantX: 1200, wantY: 400, wantOK: false},
		{name: "above top edge", tipX: 0.5, tipY: -0.1, width: 1000, height: 800, wantX: 500, wantY: -80, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hand := HandLandmarks{}
			hand.Points[IndexTip] = Point3D{X: tt.tipX, Y: tt.tipY}

			x, y, ok := hand.Fingertip(tt.width, tt.height)

			if math.Abs(x-tt.wantX) > epsilon || math.Abs(y-tt.wantY) > epsilon {
				t.Errorf("expected (%f, %f), got (%f, %f)", tt.wantX, tt.wantY, x, y)
			}
			if ok != tt.wantOK {
				t.Errorf("expected ok=%v, got %v", tt.wantOK, ok)
			}
		})
	}
}

func TestHandConnections(t *testing.T) {
	if len(HandConnections) != 23 {
		t.Fatalf("expected 23 skeleton edges, got %d", len(HandConnections))
	}

	seen := make(map[Connection]bool)
	for _, c := range HandConnections {
		if c.From < 0 || c.From >= NumLandmarks || c.To < 0 || c.To >= NumLandmarks {
			t.Errorf("edge %v references an unknown landmark", c)
		}
		if seen[c] {
			t.Errorf("duplicate edge %v", c)
		}
		seen[c] = true
	}

	// Every landmark is reachable from the skeleton.
	touched := make(map[int]bool)
	for _, c := range HandConnections {
		touched[c.From] = true
		touched[c.To] = true
	}
	if len(touched) != NumLandmarks {
		t.Errorf("expected all %d landmarks in the skeleton, got %d", NumLandmarks, len(touched))
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("detect before load returns ErrNotLoaded", func(t *testing.T) {
		mock := NewMockDetector()

		_, err := mock.Detect(nil, 0)

		if !errors.Is(err, ErrNotLoaded) {
			t.Errorf("expected ErrNotLoaded, got %v", err)
		}
	})

	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()
		if err := mock.Load(); err != nil {
			t.Fatalf("Load: %v", err)
		}

		hands, err := mock.Detect(nil, 16)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if hands != nil {
			t.Errorf("expected nil hands, got %v", hands)
		}
		if mock.LastTimestamp() != 16 {
			t.Errorf("expected timestamp 16, got %d", mock.LastTimestamp())
		}
	})

	t.Run("returns configured hands", func(t *testing.T) {
		mock := NewMockDetector()
		mock.Load()
		mock.SetHands([]HandLandmarks{
			PointingLandmarks(0.5, 0.3),
			PointingLandmarks(0.2, 0.4),
		})

		hands, err := mock.Detect(nil, 0)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(hands) != 2 {
			t.Errorf("expected 2 hands, got %d", len(hands))
		}
		if mock.DetectCalls() != 1 {
			t.Errorf("expected 1 detect call, got %d", mock.DetectCalls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		mock.Load()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		hands, err := mock.Detect(nil, 0)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if hands != nil {
			t.Errorf("expected nil hands when error is set, got %v", hands)
		}
	})

	t.Run("load error", func(t *testing.T) {
		mock := NewMockDetector()
		loadErr := errors.New("model missing")
		mock.SetLoadError(loadErr)

		if err := mock.Load(); err != loadErr {
			t.Errorf("expected %v, got %v", loadErr, err)
		}
		if _, err := mock.Detect(nil, 0); !errors.Is(err, ErrNotLoaded) {
			t.Errorf("expected ErrNotLoaded after failed load, got %v", err)
		}
	})

	t.Run("Close marks closed", func(t *testing.T) {
		mock := NewMockDetector()

		if err := mock.Close(); err != nil {
			t.Errorf("expected Close to return nil, got %v", err)
		}
		if !mock.Closed() {
			t.Error("expected Closed to be true")
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*MediaPipeDetector)(nil)
	})
}

func TestPointingLandmarks(t *testing.T) {
	landmarks := PointingLandmarks(0.6, 0.25)

	if landmarks.Handedness != "Right" {
		t.Errorf("expected handedness Right, got %s", landmarks.Handedness)
	}

	tip := landmarks.Points[IndexTip]
	if math.Abs(tip.X-0.6) > epsilon || math.Abs(tip.Y-0.25) > epsilon {
		t.Errorf("expected index tip at (0.6, 0.25), got (%f, %f)", tip.X, tip.Y)
	}

	// Index finger is extended: the tip is the highest point of the finger.
	for _, j := range []int{IndexMCP, IndexPIP, IndexDIP} {
		if landmarks.Points[j].Y <= tip.Y {
			t.Errorf("expected joint %d below the tip", j)
		}
	}
}

func TestParseResponse(t *testing.T) {
	t.Run("hands", func(t *testing.T) {
		line := []byte(`{"hands":[{"points":[{"x":0.1,"y":0.2,"z":0}],"handedness":"Left","score":0.8}]}` + "\n")

		hands, err := parseResponse(line)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
		if hands[0].Handedness != "Left" || hands[0].Points[Wrist].X != 0.1 {
			t.Errorf("unexpected hand %+v", hands[0])
		}
	})

	t.Run("service error", func(t *testing.T) {
		if _, err := parseResponse([]byte(`{"error":"bad frame"}`)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := parseResponse([]byte("not json")); err == nil {
			t.Error("expected error")
		}
	})
}

func TestMediaPipeDetector_DetectBeforeLoad(t *testing.T) {
	d := NewMediaPipeDetector(DefaultConfig())

	if _, err := d.Detect(nil, 0); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close on unloaded detector: %v", err)
	}
}

func TestMediaPipeDetector_LoadMissingScript(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptPath = ""
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	d := NewMediaPipeDetector(cfg)
	if err := d.Load(); err == nil {
		t.Error("expected error when the service script cannot be found")
	}
}
