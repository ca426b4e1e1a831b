package recovery

import "fmt"

// TargetPathNotEmptyError is returned when a restore target directory
// already exists and contains entries.
type TargetPathNotEmptyError struct {
	Path string
}

func (e *TargetPathNotEmptyError) Error() string {
	return fmt.Sprintf("recovery: %s is not empty", e.Path)
}
