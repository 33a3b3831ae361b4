package tracker

import (
	"fmt"
	"time"

	"github.com/awehrman/peas/internal/models"
)

func errDifferentImport(noteID, existing, got string) error {
	return fmt.Errorf("note %s already initialized with importId %s, got %s", noteID, existing, got)
}

func errExpectedCountChanged(noteID string, kind models.LineKind, existing, got int) error {
	return fmt.Errorf("note %s kind %s expected count already set to %d, got %d", noteID, kind, existing, got)
}

func errCategorizationTimeout(noteID string, timeout time.Duration) error {
	return fmt.Errorf("note %s categorization not ready after %s", noteID, timeout)
}
