package render

import (
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

func TestCanvas_Resize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	c := NewCanvas(320, 240)
	defer c.Close()

	c.Resize(640, 480)
	w, h := c.Size()
	if w != 640 || h != 480 {
		t.Errorf("expected 640x480, got %dx%d", w, h)
	}
}

func TestCanvas_ComposeAddsParticles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	c := NewCanvas(100, 100)
	defer c.Close()

	c.SetBlend(BlendAdditive)
	c.FillCircle(50, 50, 5, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 1, 0)
	c.SetBlend(BlendNormal)

	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(10, 10, 10, 0))

	c.ComposeOnto(&frame)

	center := frame.GetVecbAt(50, 50)
	if center[0] != 255 {
		t.Errorf("expected saturated pixel under particle, got %v", center)
	}
	corner := frame.GetVecbAt(0, 0)
	if corner[0] != 10 {
		t.Errorf("expected untouched background, got %v", corner)
	}
}

func TestCanvas_AdditiveCirclesAccumulate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	composed := func(circles int) uint8 {
		c := NewCanvas(100, 100)
		defer c.Close()

		c.SetBlend(BlendAdditive)
		for i := 0; i < circles; i++ {
			c.FillCircle(50, 50, 8, white, 0.5, 0)
		}
		c.SetBlend(BlendNormal)

		frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
		defer frame.Close()
		frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
		c.ComposeOnto(&frame)
		return frame.GetVecbAt(50, 50)[1]
	}

	single := composed(1)
	double := composed(2)
	if single < 120 || single > 130 {
		t.Fatalf("expected a half-intensity circle, got %d", single)
	}
	if double <= single {
		t.Errorf("expected overlapping circles to brighten, got %d then %d", single, double)
	}
	if double < 250 {
		t.Errorf("expected overlapping half-intensity circles to sum to ~254, got %d", double)
	}

	// Pixels outside the circle stay black.
	c := NewCanvas(100, 100)
	defer c.Close()
	c.SetBlend(BlendAdditive)
	c.FillCircle(50, 50, 8, white, 0.5, 0)
	c.FillCircle(2, 2, 8, white, 0.5, 0)
	c.SetBlend(BlendNormal)
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	c.ComposeOnto(&frame)
	if v := frame.GetVecbAt(30, 30)[1]; v != 0 {
		t.Errorf("expected untouched pixel to stay black, got %d", v)
	}
	if v := frame.GetVecbAt(0, 0)[1]; v < 120 {
		t.Errorf("expected clipped circle at the edge to be drawn, got %d", v)
	}
}

func TestCanvas_ClearErasesLayer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	c := NewCanvas(50, 50)
	defer c.Close()

	c.Dot(25, 25, 4, LandmarkColor)
	c.Clear()

	frame := gocv.NewMatWithSize(50, 50, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	c.ComposeOnto(&frame)

	gray := grayOf(frame)
	defer gray.Close()
	if n := gocv.CountNonZero(gray); n != 0 {
		t.Errorf("expected empty frame after clear, got %d lit pixels", n)
	}
}

func TestCanvas_ComposeIgnoresMismatchedFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	c := NewCanvas(50, 50)
	defer c.Close()
	c.Dot(25, 25, 4, LandmarkColor)

	frame := gocv.NewMatWithSize(40, 40, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	c.ComposeOnto(&frame)

	gray := grayOf(frame)
	defer gray.Close()
	if n := gocv.CountNonZero(gray); n != 0 {
		t.Errorf("expected frame untouched, got %d lit pixels", n)
	}
}

func grayOf(m gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	return gray
}
