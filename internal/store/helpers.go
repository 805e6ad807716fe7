package store

import (
	"go.uber.org/zap"

	"github.com/integritystudio/alephauto/internal/domain"
	"github.com/integritystudio/alephauto/internal/logging"
)

func logField(key string, value any) logging.Field {
	return zap.Any(key, value)
}

func interruptedStatus() domain.Status { return domain.StatusFailed }

func interruptedError() *domain.JobError {
	return &domain.JobError{
		Kind:           "Interrupted",
		Message:        "job was running when the process restarted",
		Classification: "non-retryable",
	}
}
