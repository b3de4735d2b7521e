package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powietrze-import/internal/config"
	"powietrze-import/internal/database/postgres/repositories"
	"powietrze-import/internal/models"
	"powietrze-import/internal/parser"
)

type trackedFile struct {
	file     models.ImportFile
	imported int
	skipped  int
}

type mockTracker struct {
	files      map[string]*trackedFile
	nextID     uint
	resetCount int64

	failGetOrCreate error
	failInProgress  error
	resetErr        error
}

func newMockTracker() *mockTracker {
	return &mockTracker{files: map[string]*trackedFile{}}
}

func key(archiveName, filename string) string {
	return archiveName + "::" + filename
}

func (m *mockTracker) GetOrCreate(_ context.Context, archiveName, filename string) (*models.ImportFile, error) {
	if m.failGetOrCreate != nil {
		return nil, m.failGetOrCreate
	}
	if tf, ok := m.files[key(archiveName, filename)]; ok {
		return &tf.file, nil
	}
	m.nextID++
	tf := &trackedFile{file: models.ImportFile{
		ID:          m.nextID,
		ArchiveName: archiveName,
		Filename:    filename,
		Status:      models.ImportStatusPending,
	}}
	m.files[key(archiveName, filename)] = tf
	return &tf.file, nil
}

func (m *mockTracker) IsCompleted(_ context.Context, archiveName, filename string) (bool, error) {
	tf, ok := m.files[key(archiveName, filename)]
	return ok && tf.file.Status == models.ImportStatusCompleted, nil
}

func (m *mockTracker) byID(id uint) *trackedFile {
	for _, tf := range m.files {
		if tf.file.ID == id {
			return tf
		}
	}
	return nil
}

func (m *mockTracker) MarkInProgress(_ context.Context, id uint) error {
	if m.failInProgress != nil {
		return m.failInProgress
	}
	tf := m.byID(id)
	if tf.file.Status == models.ImportStatusCompleted {
		return fmt.Errorf("claim import file %d: %w", id, repositories.ErrAlreadyCompleted)
	}
	tf.file.Status = models.ImportStatusInProgress
	return nil
}

func (m *mockTracker) MarkCompleted(_ context.Context, id uint, imported, skipped int) error {
	tf := m.byID(id)
	tf.file.Status = models.ImportStatusCompleted
	tf.imported = imported
	tf.skipped = skipped
	return nil
}

func (m *mockTracker) MarkFailed(_ context.Context, id uint, message string) error {
	tf := m.byID(id)
	tf.file.Status = models.ImportStatusFailed
	tf.file.ErrorMessage = message
	return nil
}

func (m *mockTracker) ResetFailed(context.Context) (int64, error) {
	if m.resetErr != nil {
		return 0, m.resetErr
	}
	return m.resetCount, nil
}

type mockBatchLoader struct {
	batches [][]parser.Record
	failOn  int // 1-based batch index to fail on; 0 disables
	err     error
}

func (m *mockBatchLoader) LoadBatch(_ context.Context, records []parser.Record, _ uint) (int, int, error) {
	m.batches = append(m.batches, records)
	if m.failOn != 0 && len(m.batches) == m.failOn {
		return 0, 0, m.err
	}
	imported, skipped := 0, 0
	for _, r := range records {
		if r.Value != nil {
			imported++
		} else {
			skipped++
		}
	}
	return imported, skipped, nil
}

func fakeWalk(members map[string][]string) walkFunc {
	return func(path string, _ []string, fn func(name string, content []byte) error) error {
		for _, name := range members[path] {
			if err := fn(name, []byte(name)); err != nil {
				return err
			}
		}
		return nil
	}
}

// fakeParse emits n records per file where n is encoded in the registry; a
// negative count means the file is unparseable.
func fakeParse(counts map[string]int, nilEvery int) parseFunc {
	return func(content []byte, sourceFile string) ([]parser.Record, error) {
		n := counts[sourceFile]
		if n < 0 {
			return nil, errors.New("unreadable workbook")
		}
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		records := make([]parser.Record, 0, n)
		for idx := 0; idx < n; idx++ {
			var value *float64
			if nilEvery == 0 || (idx+1)%nilEvery != 0 {
				v := float64(idx)
				value = &v
			}
			records = append(records, parser.Record{
				StationCode:   "ST001",
				IndicatorName: "PM10",
				Unit:          "ug/m3",
				AveragingTime: "24g",
				MeasuredAt:    at.Add(time.Duration(idx) * time.Hour),
				Value:         value,
				SourceFile:    sourceFile,
			})
		}
		return records, nil
	}
}

func newTestImporter(tracker FileTracker, loader BatchLoader, batchSize int) *Importer {
	return &Importer{
		tracker:   tracker,
		loader:    loader,
		batchSize: batchSize,
		log:       zerolog.Nop(),
	}
}

func TestImportArchives_HappyPath(t *testing.T) {
	tracker := newMockTracker()
	loader := &mockBatchLoader{}
	imp := newTestImporter(tracker, loader, 4)
	imp.walk = fakeWalk(map[string][]string{"2024.zip": {"a.xlsx", "b.xlsx"}})
	imp.parse = fakeParse(map[string]int{"a.xlsx": 6, "b.xlsx": 3}, 6)

	var completions []string
	imp.callbacks = Callbacks{
		OnFileComplete: func(filename string, _, _ int) {
			completions = append(completions, filename)
		},
	}

	totals, err := imp.ImportArchives(context.Background(), []string{"2024.zip"})
	require.NoError(t, err)

	// a.xlsx: 6 records, one nil -> 5 imported; b.xlsx: 3 records all present.
	assert.Equal(t, 8, totals.Imported)
	assert.Equal(t, 1, totals.Skipped)
	assert.Equal(t, 0, totals.FilesSkipped)
	assert.Equal(t, []string{"a.xlsx", "b.xlsx"}, completions)

	// 6 records at batch size 4 -> 2 batches, plus one for b.xlsx.
	assert.Len(t, loader.batches, 3)

	a := tracker.files[key("2024.zip", "a.xlsx")]
	assert.Equal(t, models.ImportStatusCompleted, a.file.Status)
	assert.Equal(t, 5, a.imported)
	assert.Equal(t, 1, a.skipped)
}

func TestImportArchives_SkipsCompletedFiles(t *testing.T) {
	tracker := newMockTracker()
	loader := &mockBatchLoader{}
	imp := newTestImporter(tracker, loader, 10)
	imp.walk = fakeWalk(map[string][]string{"2024.zip": {"a.xlsx"}})
	imp.parse = fakeParse(map[string]int{"a.xlsx": 2}, 0)

	file, err := tracker.GetOrCreate(context.Background(), "2024.zip", "a.xlsx")
	require.NoError(t, err)
	require.NoError(t, tracker.MarkCompleted(context.Background(), file.ID, 2, 0))

	skippedFiles := 0
	imp.callbacks = Callbacks{OnFileSkip: func(string) { skippedFiles++ }}

	totals, err := imp.ImportArchives(context.Background(), []string{"2024.zip"})
	require.NoError(t, err)

	assert.Equal(t, 0, totals.Imported)
	assert.Equal(t, 1, totals.FilesSkipped)
	assert.Equal(t, 1, skippedFiles)
	assert.Empty(t, loader.batches)
}

func TestImportArchives_LoadFailureMarksFailedAndAborts(t *testing.T) {
	tracker := newMockTracker()
	wantErr := errors.New("connection reset")
	loader := &mockBatchLoader{failOn: 2, err: wantErr}
	imp := newTestImporter(tracker, loader, 2)
	imp.walk = fakeWalk(map[string][]string{"2024.zip": {"a.xlsx", "b.xlsx"}})
	imp.parse = fakeParse(map[string]int{"a.xlsx": 5, "b.xlsx": 5}, 0)

	_, err := imp.ImportArchives(context.Background(), []string{"2024.zip"})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)

	a := tracker.files[key("2024.zip", "a.xlsx")]
	assert.Equal(t, models.ImportStatusFailed, a.file.Status)
	assert.NotEmpty(t, a.file.ErrorMessage)

	// The failing file aborts the run; its sibling is never touched.
	_, seen := tracker.files[key("2024.zip", "b.xlsx")]
	assert.False(t, seen)
}

func TestImportArchives_UnparseableFileFailsButSiblingsContinue(t *testing.T) {
	tracker := newMockTracker()
	loader := &mockBatchLoader{}
	imp := newTestImporter(tracker, loader, 10)
	imp.walk = fakeWalk(map[string][]string{"2024.zip": {"bad.xlsx", "good.xlsx"}})
	imp.parse = fakeParse(map[string]int{"bad.xlsx": -1, "good.xlsx": 2}, 0)

	totals, err := imp.ImportArchives(context.Background(), []string{"2024.zip"})
	require.NoError(t, err)

	bad := tracker.files[key("2024.zip", "bad.xlsx")]
	assert.Equal(t, models.ImportStatusFailed, bad.file.Status)
	assert.Equal(t, "unreadable workbook", bad.file.ErrorMessage)

	good := tracker.files[key("2024.zip", "good.xlsx")]
	assert.Equal(t, models.ImportStatusCompleted, good.file.Status)
	assert.Equal(t, 2, totals.Imported)
}

func TestImportArchives_LostClaimCountsAsSkip(t *testing.T) {
	tracker := newMockTracker()
	loader := &mockBatchLoader{}
	imp := newTestImporter(tracker, loader, 10)
	imp.walk = fakeWalk(map[string][]string{"2024.zip": {"a.xlsx"}})
	imp.parse = fakeParse(map[string]int{"a.xlsx": 2}, 0)
	imp.callbacks = Callbacks{}

	tracker.failInProgress = fmt.Errorf("claim import file 1: %w", repositories.ErrAlreadyCompleted)

	totals, err := imp.ImportArchives(context.Background(), []string{"2024.zip"})
	require.NoError(t, err)
	assert.Equal(t, 1, totals.FilesSkipped)
	assert.Empty(t, loader.batches)
}

func TestImportArchives_CallbacksAndProgress(t *testing.T) {
	tracker := newMockTracker()
	loader := &mockBatchLoader{}
	imp := newTestImporter(tracker, loader, 2)
	imp.walk = fakeWalk(map[string][]string{"2024.zip": {"a.xlsx"}})
	imp.parse = fakeParse(map[string]int{"a.xlsx": 5}, 0)

	var events []string
	var progress []int
	imp.callbacks = Callbacks{
		OnArchiveStart:    func(string) { events = append(events, "archive-start") },
		OnArchiveComplete: func(string, int, int, int) { events = append(events, "archive-complete") },
		OnFileStart:       func(string) { events = append(events, "file-start") },
		OnFileComplete:    func(string, int, int) { events = append(events, "file-complete") },
		OnProgress:        func(imported int) { progress = append(progress, imported) },
	}

	_, err := imp.ImportArchives(context.Background(), []string{"2024.zip"})
	require.NoError(t, err)

	assert.Equal(t, []string{"archive-start", "file-start", "file-complete", "archive-complete"}, events)
	assert.Equal(t, []int{2, 4, 5}, progress)
}

func TestNew_DefaultsFromConfig(t *testing.T) {
	imp := New(newMockTracker(), &mockBatchLoader{}, config.ImportConfig{
		BatchSize:    123,
		SkipPatterns: []string{"Depozycja"},
	}, Callbacks{}, zerolog.Nop())

	assert.Equal(t, 123, imp.batchSize)
	assert.Equal(t, []string{"Depozycja"}, imp.skipPatterns)
	assert.NotNil(t, imp.walk)
	assert.NotNil(t, imp.parse)
}

func TestResetFailed_Passthrough(t *testing.T) {
	tracker := newMockTracker()
	tracker.resetCount = 3
	imp := newTestImporter(tracker, &mockBatchLoader{}, 10)

	count, err := imp.ResetFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestResetFailed_Error(t *testing.T) {
	tracker := newMockTracker()
	tracker.resetErr = errors.New("db down")
	imp := newTestImporter(tracker, &mockBatchLoader{}, 10)

	_, err := imp.ResetFailed(context.Background())
	assert.Error(t, err)
}
