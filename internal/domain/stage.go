package domain

import "fmt"

type Stage int

const (
	StageStart Stage = iota
	StageClassified
	StageClarified
	StageTested
	StageEvaluated
	StageSynthesized
	StageFailed
)

var stageNames = map[Stage]string{
	StageStart:       "start",
	StageClassified:  "classified",
	StageClarified:   "clarified",
	StageTested:      "tested",
	StageEvaluated:   "evaluated",
	StageSynthesized: "synthesized",
	StageFailed:      "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

func (s Stage) Terminal() bool {
	return s == StageSynthesized || s == StageFailed
}

// Advance moves the session one stage forward. Skipping a stage, going
// back or leaving a terminal stage is an error.
func (s *Session) Advance(to Stage) error {
	if s.Stage.Terminal() {
		return fmt.Errorf("session %s is %s", s.Id, s.Stage)
	}
	if to != s.Stage+1 || to == StageFailed {
		return fmt.Errorf("invalid transition %s -> %s", s.Stage, to)
	}

	s.Stage = to
	return nil
}

// Fail moves the session to FAILED and clears the synthesized prompt.
func (s *Session) Fail(err error) {
	if s.Stage == StageSynthesized {
		return
	}
	s.Stage = StageFailed
	s.Err = err
	s.CrispoPrompt = ""
	s.ImprovementSummary = ""
}
