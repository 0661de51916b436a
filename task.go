package yolobridge

import "fmt"

// Task identifies the model task type a Predictor or View runs.
type Task string

// task type values sent to the engine with loadModel and setModel
const (
	Detect   Task = "detect"
	Segment  Task = "segment"
	Classify Task = "classify"
	Pose     Task = "pose"
	OBB      Task = "obb"
)

// String returns the task name as sent on the wire
func (t Task) String() string {
	return string(t)
}

// ParseTask converts a task name into a Task. Matching is exact and
// lower case.
func ParseTask(s string) (Task, error) {

	switch Task(s) {
	case Detect, Segment, Classify, Pose, OBB:
		return Task(s), nil
	}

	return "", fmt.Errorf("unknown task type %q", s)
}
