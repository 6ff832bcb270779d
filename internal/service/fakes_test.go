package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/amanningeso/ngas/internal/catalog"
	"github.com/amanningeso/ngas/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// fakeVolumes — in-memory реализация catalog.Volumes.
type fakeVolumes struct {
	mu         sync.Mutex
	vols       map[string]*model.Volume
	bestFitErr error
	addFileErr error
}

func newFakeVolumes(vols ...*model.Volume) *fakeVolumes {
	f := &fakeVolumes{vols: map[string]*model.Volume{}}
	for _, v := range vols {
		f.vols[v.DiskID] = v
	}
	return f
}

func (f *fakeVolumes) Upsert(_ context.Context, v *model.Volume) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vols[v.DiskID] = v
	return nil
}

func (f *fakeVolumes) Get(_ context.Context, diskID string) (*model.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vols[diskID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return v, nil
}

func (f *fakeVolumes) BestFit(_ context.Context, hostID string) (*model.Volume, error) {
	if f.bestFitErr != nil {
		return nil, f.bestFitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var best *model.Volume
	for _, v := range f.vols {
		if v.HostID != hostID || v.Completed {
			continue
		}
		if best == nil || v.AvailableMB > best.AvailableMB {
			best = v
		}
	}
	if best == nil {
		return nil, catalog.ErrNotFound
	}
	return best, nil
}

func (f *fakeVolumes) List(_ context.Context, hostID string) ([]*model.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Volume
	for _, v := range f.vols {
		if v.HostID == hostID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVolumes) AddFile(_ context.Context, diskID string, fileSize int64) error {
	if f.addFileErr != nil {
		return f.addFileErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vols[diskID]
	if !ok {
		return catalog.ErrNotFound
	}
	v.NumberOfFiles++
	v.BytesStored += fileSize
	v.AvailableMB -= fileSize / (1024 * 1024)
	return nil
}

func (f *fakeVolumes) MarkCompleted(_ context.Context, diskID string, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vols[diskID]
	if !ok {
		return catalog.ErrNotFound
	}
	v.Completed = true
	v.CompletionDate = &when
	return nil
}

// fakeFiles — in-memory реализация catalog.Files.
type fakeFiles struct {
	mu      sync.Mutex
	records map[string]*model.FileRecord
	// failOn — file_id, на котором Insert возвращает ошибку
	failOn    string
	insertErr error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{records: map[string]*model.FileRecord{}}
}

func fileKey(fileID string, version int) string {
	return fmt.Sprintf("%s|%d", fileID, version)
}

func (f *fakeFiles) Insert(_ context.Context, rec *model.FileRecord) error {
	if f.failOn != "" && rec.FileID == f.failOn {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fileKey(rec.FileID, rec.FileVersion)
	if _, ok := f.records[key]; ok {
		return catalog.ErrConflict
	}
	f.records[key] = rec
	return nil
}

func (f *fakeFiles) Get(_ context.Context, fileID string, version int) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[fileKey(fileID, version)]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return rec, nil
}

func (f *fakeFiles) NextVersion(_ context.Context, fileID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxVersion := 0
	for _, rec := range f.records {
		if rec.FileID == fileID && rec.FileVersion > maxVersion {
			maxVersion = rec.FileVersion
		}
	}
	return maxVersion + 1, nil
}

// fakeContainers — in-memory реализация catalog.Containers,
// запоминающая порядок персистенции.
type fakeContainers struct {
	mu        sync.Mutex
	rows      map[string]*catalog.ContainerRow
	order     []string
	members   map[string][]string
	nextID    int
	createErr error
}

func newFakeContainers() *fakeContainers {
	return &fakeContainers{
		rows:    map[string]*catalog.ContainerRow{},
		members: map[string][]string{},
	}
}

func (f *fakeContainers) Create(_ context.Context, name string, parentID *string, size int64, ingestionDate time.Time) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Родитель обязан быть персистирован раньше ребёнка
	if parentID != nil {
		if _, ok := f.rows[*parentID]; !ok {
			return "", fmt.Errorf("родительский контейнер %s не персистирован", *parentID)
		}
	}

	f.nextID++
	id := fmt.Sprintf("container-%d", f.nextID)
	f.rows[id] = &catalog.ContainerRow{
		ContainerID:   id,
		Name:          name,
		ParentID:      parentID,
		Size:          size,
		IngestionDate: ingestionDate,
	}
	f.order = append(f.order, id)
	return id, nil
}

func (f *fakeContainers) AddFile(_ context.Context, containerID, fileID string, fileVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[containerID]; !ok {
		return catalog.ErrNotFound
	}
	f.members[containerID] = append(f.members[containerID], fileKey(fileID, fileVersion))
	return nil
}

func (f *fakeContainers) SetSize(_ context.Context, containerID string, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[containerID]
	if !ok {
		return catalog.ErrNotFound
	}
	row.Size = size
	return nil
}

func (f *fakeContainers) Get(_ context.Context, containerID string) (*catalog.ContainerRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[containerID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return row, nil
}

// fakeNotifier запоминает доставленные уведомления.
type fakeNotifier struct {
	mu    sync.Mutex
	calls [][]*model.FileRecord
}

func (f *fakeNotifier) NotifyIngested(_ context.Context, records []*model.FileRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, records)
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
