package chat

// PhotoSource is either raw image bytes picked by the user or a remote locator.
// Data wins when both are set.
type PhotoSource struct {
	Data        []byte
	ContentType string
	Locator     string `validate:"omitempty,url"`
}

func (s PhotoSource) IsEmpty() bool {
	return len(s.Data) == 0 && s.Locator == ""
}

type SendPhotoCommand struct {
	Source    PhotoSource
	PixelSize int    `validate:"min=1"`
	Caption   string `validate:"max=2000"`
}

type AcceptPhotoCommand struct {
	MessageID string `validate:"required"`
}
