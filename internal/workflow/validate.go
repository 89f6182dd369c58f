package workflow

import (
	"regexp"

	"github.com/timmy/hubexport/internal/domain"
)

var datasetNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidateDataset checks the dataset name used in the repository id.
func ValidateDataset(name string) error {
	if !datasetNamePattern.MatchString(name) {
		return &domain.ValidationError{
			Field:  "dataset",
			Value:  name,
			Reason: "only lowercase letters, digits, '-' and '_' are allowed",
		}
	}
	return nil
}
