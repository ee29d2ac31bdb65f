package server

import (
	"errors"
	"image"
	"image/color"
	"net/http"
	"strconv"
	"sync"

	"github.com/skip2/go-qrcode"
	"gocv.io/x/gocv"
)

const (
	DefaultQRSize = 256
	maxQRSize     = 1024

	PlaceholderWidth  = 1280
	PlaceholderHeight = 720
)

// ErrNoPairingURL is returned when there is nothing to encode.
var ErrNoPairingURL = errors.New("no pairing url")

// RenderQR encodes url as a size x size PNG QR code.
func RenderQR(url string, size int) ([]byte, error) {
	if url == "" {
		return nil, ErrNoPairingURL
	}
	return qrcode.Encode(url, qrcode.Medium, size)
}

// QRHandler serves the pairing URL of the waiting remote session as a PNG.
type QRHandler struct {
	controller Controller
}

// NewQRHandler creates a new QRHandler.
func NewQRHandler(c Controller) *QRHandler {
	return &QRHandler{controller: c}
}

// ServeHTTP handles GET /api/pairing/qr.png?size=N.
func (h *QRHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	size := DefaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > maxQRSize {
			http.Error(w, "size must be between 64 and 1024", http.StatusBadRequest)
			return
		}
		size = n
	}

	url := h.controller.PairingURL()
	if url == "" {
		http.Error(w, "No pairing session is waiting", http.StatusNotFound)
		return
	}

	png, err := RenderQR(url, size)
	if err != nil {
		http.Error(w, "Failed to render QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// Placeholder renders the JPEG shown while no video is playing. The last
// rendering is cached.
type Placeholder struct {
	width, height int

	mu   sync.Mutex
	key  string
	jpeg []byte
}

// NewPlaceholder creates a placeholder renderer.
func NewPlaceholder(width, height int) *Placeholder {
	return &Placeholder{width: width, height: height}
}

// Render draws the QR code for url (if any) above caption.
func (p *Placeholder) Render(url, caption string) ([]byte, error) {
	key := url + "\x00" + caption

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jpeg != nil && p.key == key {
		return p.jpeg, nil
	}

	img := gocv.NewMatWithSize(p.height, p.width, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(24, 18, 18, 0))

	textY := p.height / 2
	if url != "" {
		size := p.height / 2
		if err := p.drawQR(&img, url, size); err != nil {
			return nil, err
		}
		textY = (p.height+size)/2 + 60
	}

	white := color.RGBA{R: 235, G: 235, B: 235, A: 255}
	textSize := gocv.GetTextSize(caption, gocv.FontHersheySimplex, 1.0, 2)
	origin := image.Pt((p.width-textSize.X)/2, textY)
	gocv.PutText(&img, caption, origin, gocv.FontHersheySimplex, 1.0, white, 2)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	p.key = key
	p.jpeg = append([]byte(nil), buf.GetBytes()...)
	return p.jpeg, nil
}

func (p *Placeholder) drawQR(img *gocv.Mat, url string, size int) error {
	png, err := RenderQR(url, size)
	if err != nil {
		return err
	}
	qr, err := gocv.IMDecode(png, gocv.IMReadColor)
	if err != nil {
		return err
	}
	defer qr.Close()

	x := (p.width - qr.Cols()) / 2
	y := (p.height-qr.Rows())/2 - 30
	roi := img.Region(image.Rect(x, y, x+qr.Cols(), y+qr.Rows()))
	defer roi.Close()
	qr.CopyTo(&roi)
	return nil
}
