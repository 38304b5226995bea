package models

const (
	JobStatusPending  = "pending"
	JobStatusFinished = "finished"
	JobStatusFailed   = "failed"
)

// ImageJob is a row of the image_job table processed by the batch workers.
type ImageJob struct {
	Id              int
	ImagePath       string
	OutputType      string
	Description     string
	OutputStructure string
	Status          string
	ResultText      *string
	ResultJson      *string
	ErrorMessage    *string
}
