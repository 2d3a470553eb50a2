package app

import (
	"fmt"
	"time"
)

// StageMsg moves the view to a new phase of the cycle.
type StageMsg struct {
	State  AppState
	Detail string
}

// ProgressMsg updates the overall progress bar.
type ProgressMsg struct {
	Current int64
	Total   int64
	Batch   int
	Batches int
}

// FileProgressMsg updates the row of one report.
type FileProgressMsg struct {
	FileID      string        // artifact file name
	FileName    string        // display label
	Status      string        // "Queued", "Sending", "Sent", "Degraded", "Error", "Skipped"
	ElapsedTime time.Duration
	ErrMsg      string
}

// PauseMsg announces the inter-batch delay.
type PauseMsg struct {
	Duration time.Duration
	Until    time.Time
}

// TaskFinishedMsg signals the end of the cycle.
type TaskFinishedMsg struct {
	Err       error
	StartTime time.Time
	EndTime   time.Time
	Message   string // summary line
}

func NewFileProgress(fileID, fileName, status string, elapsed time.Duration, errMsg string) FileProgressMsg {
	return FileProgressMsg{
		FileID:      fileID,
		FileName:    fileName,
		Status:      status,
		ElapsedTime: elapsed,
		ErrMsg:      errMsg,
	}
}

func NewTaskFinished(start time.Time, err error, msg string) TaskFinishedMsg {
	return TaskFinishedMsg{
		StartTime: start,
		EndTime:   time.Now(),
		Err:       err,
		Message:   msg,
	}
}

func (t TaskFinishedMsg) Error() string {
	if t.Err != nil {
		return t.Err.Error()
	}
	return ""
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress: %d/%d (batch %d/%d)", p.Current, p.Total, p.Batch, p.Batches)
}
func (fp FileProgressMsg) String() string {
	return fmt.Sprintf("FileProgress %s: %s", fp.FileID, fp.Status)
}
func (tf TaskFinishedMsg) String() string { return fmt.Sprintf("TaskFinished: %s", tf.Message) }
