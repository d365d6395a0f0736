package chat

// Session binds a Synchronizer to one participant.
// It is captured at construction time: nickname changes are not propagated
// to messages already sent.
type Session struct {
	ParticipantID string
	Nickname      string
}

func (s Session) IsBound() bool {
	return s.ParticipantID != ""
}

func (s Session) DisplayName() string {
	if s.Nickname == "" {
		return DefaultNickname
	}
	return s.Nickname
}

// UploadProgress is "none" when Active is false.
type UploadProgress struct {
	Percent int
	Active  bool
}

type Status struct {
	IsSending bool
	Progress  UploadProgress
}
