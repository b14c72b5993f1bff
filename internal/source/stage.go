package source

// Stage is a step of one rendering pass. A pass moves through the stages in
// declaration order and never revisits one.
type Stage uint8

const (
	StageIdle Stage = iota
	StageSelecting
	StageFetching
	StageEncoding
	StageWidthFetching
	StageHighlighting
	StageDone
)

var stageNames = [...]string{
	StageIdle:          "idle",
	StageSelecting:     "selecting",
	StageFetching:      "fetching",
	StageEncoding:      "encoding",
	StageWidthFetching: "width-fetching",
	StageHighlighting:  "highlighting",
	StageDone:          "done",
}

// String returns the stage name.
func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}
