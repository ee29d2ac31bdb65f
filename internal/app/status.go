package app

import (
	"errors"

	"github.com/ayusman/fingerglow/internal/pairing"
	"github.com/ayusman/fingerglow/internal/source"
)

// Status is the viewer-facing projection of the controller state.
type Status struct {
	Source string `json:"source"`
	Ready  bool   `json:"ready"`

	Pairing       string `json:"pairing,omitempty"`
	PairingStatus string `json:"pairing_status,omitempty"`
	PairingURL    string `json:"pairing_url,omitempty"`

	Error string `json:"error,omitempty"`

	Detector        DetectorState `json:"detector"`
	DetectorMessage string        `json:"detector_message,omitempty"`
}

// Status returns the current status.
func (a *App) Status() Status {
	a.stateMu.RLock()
	src, kind, host := a.current, a.kind, a.host
	srcErr, det := a.sourceErr, a.detector
	a.stateMu.RUnlock()

	st := Status{
		Source:   kind.String(),
		Detector: det,
	}
	switch det {
	case DetectorLoading:
		st.DetectorMessage = MsgDetectorLoading
	case DetectorFailed:
		st.DetectorMessage = MsgDetectorFailed
	}

	if src != nil {
		st.Ready = src.Ready()
	}
	if host != nil {
		st.Pairing = host.State().String()
		st.PairingStatus = host.Status()
		if !st.Ready {
			st.PairingURL = host.PairingURL()
		}
	}
	if srcErr != nil {
		st.Error = errorMessage(srcErr)
	}
	return st
}

func errorMessage(err error) string {
	var perr *pairing.Error
	switch {
	case errors.Is(err, source.ErrCameraAccess):
		return MsgCameraDenied
	case errors.As(err, &perr):
		return pairing.StatusText(pairing.RoleHost, pairing.StateClosed, perr)
	default:
		return err.Error()
	}
}
