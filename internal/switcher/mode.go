package switcher

type Mode int

const (
	ModeUnset Mode = iota
	ModeNormal
	ModeInsert
	ModeVisual
	ModeReplace
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeInsert:
		return "insert"
	case ModeVisual:
		return "visual"
	case ModeReplace:
		return "replace"
	}
	return "unset"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	if string(text) == "unset" || len(text) == 0 {
		*m = ModeUnset
		return nil
	}
	*m = ParseMode(string(text))
	return nil
}

// ParseMode maps a host mode name to a Mode. Names other than insert, visual
// and replace are normal mode.
func ParseMode(name string) Mode {
	switch name {
	case "insert":
		return ModeInsert
	case "visual":
		return ModeVisual
	case "replace":
		return ModeReplace
	}
	return ModeNormal
}

// ModeChange is the payload of a host mode change notification. A nil
// *ModeChange means the host had no actionable mode.
type ModeChange struct {
	Mode string `json:"mode"`
}

// State is the runtime state of the switcher.
type State struct {
	InsertIM  string `json:"insert_im"`
	VisualIM  string `json:"visual_im"`
	ReplaceIM string `json:"replace_im"`
	Previous  Mode   `json:"previous"`
	Windows   bool   `json:"windows"`
	// Seq counts settled transitions.
	Seq uint64 `json:"seq"`
}

func (s *State) slot(m Mode) *string {
	switch m {
	case ModeInsert:
		return &s.InsertIM
	case ModeVisual:
		return &s.VisualIM
	case ModeReplace:
		return &s.ReplaceIM
	}
	return nil
}
