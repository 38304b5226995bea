package workers

import (
	"context"
	"sync"

	"ImageToText/logic"
	"ImageToText/models"

	"go.uber.org/zap"
)

type Processor interface {
	Process(ctx context.Context, imagePath, outputType, description, outputStructure string) (*models.ExtractionResult, error)
}

type JobStore interface {
	FinishJob(ctx context.Context, job *models.ImageJob) error
}

// ProcessImages consumes jobs until the channel is closed. A failing job is
// recorded as failed and never stops the worker.
func ProcessImages(ctx context.Context, id int, processor Processor, store JobStore, jobs <-chan models.ImageJob, wg *sync.WaitGroup, logger *zap.Logger) {
	defer wg.Done()

	log := logger.With(zap.Int("worker", id))

	for job := range jobs {
		log.Info("⌛ worker handle job", zap.Int("job", job.Id), zap.String("image", job.ImagePath))

		result, err := processor.Process(ctx, job.ImagePath, job.OutputType, job.Description, job.OutputStructure)
		if err != nil {
			log.Error("❌ worker encounter an error", zap.Int("job", job.Id), zap.Error(err))
		}
		if err := logic.ApplyResult(&job, result, err); err != nil {
			log.Warn("result kept without its json payload", zap.Int("job", job.Id), zap.Error(err))
		}

		if err := store.FinishJob(ctx, &job); err != nil {
			log.Error("unable to update image job", zap.Int("job", job.Id), zap.Error(err))
			continue
		}

		if job.Status == models.JobStatusFinished {
			log.Info("✅ worker finished job", zap.Int("job", job.Id))
		}
	}
}
