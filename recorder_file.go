package scriptbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const runLogFile = "runs.jsonl"

// FileRunRecorder is an implementation of RunRecorder that appends records
// to a newline-delimited JSON file in a directory.
type FileRunRecorder struct {
	directory string
	mutex     sync.Mutex
}

func NewFileRunRecorder(directory string) *FileRunRecorder {
	return &FileRunRecorder{directory: directory}
}

func (r *FileRunRecorder) path() string {
	return filepath.Join(r.directory, runLogFile)
}

func (r *FileRunRecorder) RecordRun(ctx context.Context, record *RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := os.MkdirAll(r.directory, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (r *FileRunRecorder) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	records, err := r.readAll()
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.ID == id {
			return record, nil
		}
	}
	return nil, ErrRunNotFound
}

func (r *FileRunRecorder) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	records, err := r.readAll()
	if err != nil {
		return nil, err
	}
	result := make([]*RunRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, records[i])
	}
	return result, nil
}

// PruneRuns rewrites the log without the runs that started before the
// given time.
func (r *FileRunRecorder) PruneRuns(ctx context.Context, before time.Time) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	records, err := r.readLocked()
	if err != nil || len(records) == 0 {
		return 0, err
	}
	tmp, err := os.CreateTemp(r.directory, runLogFile+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	pruned := 0
	for _, record := range records {
		if record.StartTime.Before(before) {
			pruned++
			continue
		}
		data, err := json.Marshal(record)
		if err != nil {
			tmp.Close()
			return 0, err
		}
		w.Write(append(data, '\n'))
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if pruned == 0 {
		return 0, nil
	}
	return pruned, os.Rename(tmp.Name(), r.path())
}

func (r *FileRunRecorder) readAll() ([]*RunRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.readLocked()
}

func (r *FileRunRecorder) readLocked() ([]*RunRecord, error) {
	f, err := os.Open(r.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []*RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record RunRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}
	return records, scanner.Err()
}
