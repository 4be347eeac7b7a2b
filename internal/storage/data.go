package storage

// WriteResult describes one appended output row. Duplicate is true when
// the record id was already on disk and nothing was written.
type WriteResult struct {
	recordID  string
	path      string
	duplicate bool
}

func NewWriteResult(
	recordID string,
	path string,
	duplicate bool,
) WriteResult {
	return WriteResult{
		recordID:  recordID,
		path:      path,
		duplicate: duplicate,
	}
}

func (w *WriteResult) RecordID() string {
	return w.recordID
}

func (w *WriteResult) Path() string {
	return w.path
}

func (w *WriteResult) Duplicate() bool {
	return w.duplicate
}
