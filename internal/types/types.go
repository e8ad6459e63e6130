package types

import "time"

type CommandKind string

const (
	CommandSwitch CommandKind = "switch"
	CommandObtain CommandKind = "obtain"
)

// IMCache holds the last input method used in every sub-mode.
type IMCache struct {
	InsertIM  string `json:"insert_im"`
	VisualIM  string `json:"visual_im"`
	ReplaceIM string `json:"replace_im"`
}

// CommandRecord describes one external command run by the switcher.
type CommandRecord struct {
	ID        string        `json:"id"`
	Kind      CommandKind   `json:"kind"`
	Mode      string        `json:"mode"`
	IM        string        `json:"im,omitempty"`
	Command   string        `json:"command"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Seq       uint64        `json:"seq"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (r CommandRecord) Failed() bool {
	return r.Error != ""
}
