package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"student-progress-sync/internal/excel"
	"student-progress-sync/internal/model"
	syncsvc "student-progress-sync/internal/sync"
	"student-progress-sync/pkg/errors"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestPoolSubmitBlocksUntilAccepted(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	release := make(chan struct{})
	var ran sync.WaitGroup
	ran.Add(4)
	job := Job{Name: "blocking", Run: func(ctx context.Context) error {
		<-release
		ran.Done()
		return nil
	}}

	// one running plus a buffer of two
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(context.Background(), job))
	}

	short, stop := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stop()
	assert.ErrorIs(t, pool.Submit(short, job), context.DeadlineExceeded)
	assert.Eventually(t, func() bool { return pool.InFlight() == 1 }, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, pool.Submit(context.Background(), job))
	ran.Wait()
	pool.Stop()
	assert.Zero(t, pool.InFlight())
}

type fakeStore struct {
	students map[string]model.Student
	saved    []*model.SyncResult
	counts   map[string]int
}

func (f *fakeStore) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, errors.ErrStudentNotFound
	}
	return &s, nil
}

func (f *fakeStore) ListStudents(ctx context.Context) ([]model.Student, error) {
	var out []model.Student
	for _, s := range f.students {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) SaveSyncResult(ctx context.Context, r *model.SyncResult) error {
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakeStore) SaveReminderCount(ctx context.Context, id string, count int) error {
	f.counts[id] = count
	return nil
}

type fakeSyncer struct {
	fail     bool
	bulkSeen int
}

func (f *fakeSyncer) SyncStudent(ctx context.Context, s model.Student) (*model.SyncResult, error) {
	if f.fail {
		return nil, errors.SyncFailure{StudentID: s.ID, Err: errors.ErrInvalidHandle}
	}
	s.CurrentRating = 1900
	return &model.SyncResult{Student: s}, nil
}

func (f *fakeSyncer) BulkSync(ctx context.Context, students []model.Student, sink syncsvc.ResultSink) model.BulkSyncReport {
	f.bulkSeen = len(students)
	for _, s := range students {
		_ = sink.SaveReminderCount(ctx, s.ID, 1)
	}
	return model.BulkSyncReport{Requested: len(students), Synced: len(students)}
}

func newSyncWorker(store *fakeStore, syncer *fakeSyncer) *SyncWorker {
	return &SyncWorker{repo: store, syncer: syncer, log: zerolog.Nop()}
}

func TestSyncWorkerStudentJob(t *testing.T) {
	store := &fakeStore{students: map[string]model.Student{"s1": {ID: "s1", Handle: "tourist"}}}
	w := newSyncWorker(store, &fakeSyncer{})

	require.NoError(t, w.process(context.Background(), model.SyncJob{Kind: model.SyncJobStudent, StudentID: "s1"}))
	require.Len(t, store.saved, 1)
	assert.Equal(t, 1900, store.saved[0].Student.CurrentRating)

	err := w.process(context.Background(), model.SyncJob{Kind: model.SyncJobStudent, StudentID: "missing"})
	assert.ErrorIs(t, err, errors.ErrStudentNotFound)
}

func TestSyncWorkerFailureSavesNothing(t *testing.T) {
	store := &fakeStore{students: map[string]model.Student{"s1": {ID: "s1"}}}
	w := newSyncWorker(store, &fakeSyncer{fail: true})

	err := w.process(context.Background(), model.SyncJob{Kind: model.SyncJobStudent, StudentID: "s1"})
	assert.ErrorIs(t, err, errors.ErrInvalidHandle)
	assert.Empty(t, store.saved)
}

func TestSyncWorkerBulkJob(t *testing.T) {
	store := &fakeStore{
		students: map[string]model.Student{"a": {ID: "a"}, "b": {ID: "b"}},
		counts:   map[string]int{},
	}
	syncer := &fakeSyncer{}
	w := newSyncWorker(store, syncer)

	report, err := w.runBulk(context.Background(), model.SyncJob{Kind: model.SyncJobBulk, TraceID: "t"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 2, syncer.bulkSeen)
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, store.counts)
}

func TestSyncWorkerRejectsBadMessages(t *testing.T) {
	w := newSyncWorker(&fakeStore{}, &fakeSyncer{})

	assert.Error(t, w.handleMessage(context.Background(), []byte("{")))

	data, _ := json.Marshal(model.SyncJob{Kind: "weekly"})
	assert.Error(t, w.handleMessage(context.Background(), data))

	data, _ = json.Marshal(model.SyncJob{Kind: model.SyncJobStudent})
	assert.Error(t, w.handleMessage(context.Background(), data))
}

type memoryStorage struct {
	objects map[string][]byte
}

func (m *memoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) Upload(ctx context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	m.objects[key] = b
	return err
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

type fakeCreator struct {
	handles map[string]bool
	created []model.Student
}

func (f *fakeCreator) CreateStudent(ctx context.Context, s *model.Student) error {
	if f.handles[s.Handle] {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateStudent, s.Handle)
	}
	f.handles[s.Handle] = true
	f.created = append(f.created, *s)
	return nil
}

type fakeRequester struct {
	ids []string
}

func (f *fakeRequester) RequestStudentSync(ctx context.Context, id string) (string, error) {
	f.ids = append(f.ids, id)
	return "trace", nil
}

func rosterWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"name", "email", "phone", "handle"},
		{"Alice", "alice@example.com", "", "tourist"},
		{"Bob", "bob@example.com", "", "Petr"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestIngestionCreatesStudentsAndRequestsSyncs(t *testing.T) {
	store := &memoryStorage{objects: map[string][]byte{"rosters/a.xlsx": rosterWorkbook(t)}}
	creator := &fakeCreator{handles: map[string]bool{"Petr": true}}
	requests := &fakeRequester{}

	w := &IngestionWorker{
		repo:    creator,
		storage: store,
		parser:  excel.NewExcelStrategy(),
		syncs:   requests,
		log:     zerolog.Nop(),
	}

	report, err := w.processFile(context.Background(), model.IngestionJob{Key: "rosters/a.xlsx"})
	require.NoError(t, err)

	assert.Equal(t, IngestionReport{Rows: 2, Created: 1, Duplicates: 1}, report)
	require.Len(t, creator.created, 1)

	alice := creator.created[0]
	assert.Equal(t, "tourist", alice.Handle)
	assert.NotEmpty(t, alice.ID)
	assert.True(t, alice.IsActive)
	assert.True(t, alice.ReminderEnabled)
	assert.Nil(t, alice.LastSubmissionDate)
	assert.Zero(t, alice.TotalUnsolvedProblems)
	assert.Equal(t, []string{alice.ID}, requests.ids)
}

func TestIngestionMissingObject(t *testing.T) {
	w := &IngestionWorker{
		storage: &memoryStorage{objects: map[string][]byte{}},
		parser:  excel.NewExcelStrategy(),
		log:     zerolog.Nop(),
	}

	_, err := w.processFile(context.Background(), model.IngestionJob{Key: "missing.xlsx"})
	assert.Error(t, err)
}
