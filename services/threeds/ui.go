package threeds

import "context"

// ChallengeUI is the presentation side of a verification: a loading indicator
// around every wait, and a place to mount the issuer frame.
type ChallengeUI interface {
	StartLoader()
	StopLoader()
	MountFrame(ctx context.Context, frame *Frame) error
	UnmountFrame(ctx context.Context, frame *Frame)
	StateChanged(state State)
}

// NopUI ignores every call. It is used when Verify gets a nil UI.
type NopUI struct{}

func (NopUI) StartLoader() {}
func (NopUI) StopLoader() {}
func (NopUI) MountFrame(context.Context, *Frame) error { return nil }
func (NopUI) UnmountFrame(context.Context, *Frame) {}
func (NopUI) StateChanged(State) {}

// frameScope tracks the frame that is currently mounted so it can be released
// on every exit path.
type frameScope struct {
	ui      ChallengeUI
	mounted *Frame
}

func (s *frameScope) acquire(ctx context.Context, frame *Frame) error {
	s.ui.StopLoader()
	if err := s.ui.MountFrame(ctx, frame); err != nil {
		return err
	}
	s.mounted = frame
	return nil
}

// release unmounts the frame if one is mounted. It is safe to call repeatedly.
func (s *frameScope) release(ctx context.Context) bool {
	if s.mounted == nil {
		return false
	}
	frame := s.mounted
	s.mounted = nil
	s.ui.UnmountFrame(ctx, frame)
	return true
}
