package ports

import "errors"

// ErrStaleProgress is returned by MergeSessionAnswers when another writer
// advanced the session first. Callers reload and retry.
var ErrStaleProgress = errors.New("session progress changed concurrently")
