package api

import "fmt"

var (
	errMissingSessionID = fmt.Errorf("session_id is required")
	errMissingField     = fmt.Errorf("field is required")
	errEmptyIngest      = fmt.Errorf("ingest payload is empty")
)

func errNodeNotFound(id string) error {
	return fmt.Errorf("node %q not found", id)
}

