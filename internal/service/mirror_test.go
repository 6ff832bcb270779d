package service

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/amanningeso/ngas/internal/domain/model"
	"github.com/amanningeso/ngas/internal/domain/state"
	"github.com/amanningeso/ngas/internal/storage/diskres"
	"github.com/amanningeso/ngas/internal/storage/fetch"
)

// fakeFetcher — сценарная реализация fetch.Fetcher.
type fakeFetcher struct {
	// payload — байты, записываемые в staging-файл перед возвратом
	payload []byte
	res     *fetch.Result
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, _, stagingPath string, _ int64) (*fetch.Result, error) {
	if f.payload != nil {
		if err := os.WriteFile(stagingPath, f.payload, 0o640); err != nil {
			return &fetch.Result{}, err
		}
	}
	return f.res, f.err
}

func newMirrorService(t *testing.T, vol *model.Volume, vols *fakeVolumes, fetcher fetch.Fetcher, notifier Notifier) (*MirrorService, *fakeFiles) {
	t.Helper()
	machine, err := state.NewMachine(state.StateOnline)
	if err != nil {
		t.Fatalf("ошибка создания автомата: %v", err)
	}
	files := newFakeFiles()
	committer := NewCommitter(files, newFakeContainers(), vols, testLogger())
	selector := NewVolumeSelector(vols, vol.HostID, nil, testLogger())

	svc := NewMirrorService(
		machine, selector, fetcher, diskres.NewRegistry(), committer, notifier,
		vols, nil, true, 100, testLogger(),
	)
	return svc, files
}

// TestMirror_Success проверяет успешный зеркальный приём.
func TestMirror_Success(t *testing.T) {
	vol := testVolume(t)
	vols := newFakeVolumes(vol)
	payload := []byte("mirrored content")
	fetcher := &fakeFetcher{
		payload: payload,
		res: &fetch.Result{
			Checksum:      "987654",
			BytesReceived: int64(len(payload)),
			FileSize:      int64(len(payload)),
		},
	}
	notifier := &fakeNotifier{}
	svc, files := newMirrorService(t, vol, vols, fetcher, notifier)

	res, err := svc.Mirror(context.Background(), MirrorRequest{
		FileID:      "obs-42",
		FileVersion: 2,
		URI:         "http://remote/retrieve?file_id=obs-42",
		Format:      "application/fits",
		StartByte:   -1,
	})
	if err != nil {
		t.Fatalf("ожидался успешный приём, получена ошибка: %v", err)
	}

	if res.Record.FileID != "obs-42" || res.Record.FileVersion != 2 {
		t.Errorf("некорректная запись: %+v", res.Record)
	}
	if res.Record.Checksum != "987654" {
		t.Errorf("ожидалась сумма 987654, получено %s", res.Record.Checksum)
	}
	if _, err := files.Get(context.Background(), "obs-42", 2); err != nil {
		t.Errorf("запись не найдена в каталоге: %v", err)
	}
	if notifier.callCount() != 1 {
		t.Errorf("ожидалось 1 уведомление, получено %d", notifier.callCount())
	}
}

// TestMirror_DiskExhausted проверяет исход при нехватке места:
// том помечается заполненным, класс DISK_EXHAUSTED.
func TestMirror_DiskExhausted(t *testing.T) {
	vol := testVolume(t)
	vols := newFakeVolumes(vol)
	fetcher := &fakeFetcher{
		res: &fetch.Result{BytesReceived: 128},
		err: fmt.Errorf("ошибка записи: %w", syscall.ENOSPC),
	}
	svc, _ := newMirrorService(t, vol, vols, fetcher, &fakeNotifier{})

	_, err := svc.Mirror(context.Background(), MirrorRequest{
		FileID: "obs-1", FileVersion: 1, URI: "http://remote/f", StartByte: -1,
	})
	if KindOf(err) != KindDiskExhausted {
		t.Fatalf("ожидался класс DISK_EXHAUSTED, получено %v", err)
	}
	if !vol.Completed {
		t.Error("исчерпанный том должен быть помечен заполненным")
	}
}

// TestMirror_Resumable проверяет сохранение частичного staging-файла
// как точки возобновления.
func TestMirror_Resumable(t *testing.T) {
	vol := testVolume(t)
	fetcher := &fakeFetcher{
		payload: []byte("partial"),
		res:     &fetch.Result{BytesReceived: 7},
		err:     fmt.Errorf("connection reset"),
	}
	svc, _ := newMirrorService(t, vol, newFakeVolumes(vol), fetcher, &fakeNotifier{})

	_, err := svc.Mirror(context.Background(), MirrorRequest{
		FileID: "obs-1", FileVersion: 1, URI: "http://remote/f", StartByte: -1,
	})
	if KindOf(err) != KindResumable {
		t.Fatalf("ожидался класс RESUMABLE, получено %v", err)
	}

	// Частичный файл сохранён для следующей попытки
	stagingPath := mirrorStagingPath(vol.StagingDir(), "obs-1", 1)
	if _, statErr := os.Stat(stagingPath); statErr != nil {
		t.Errorf("частичный staging-файл должен сохраниться: %v", statErr)
	}
}

// TestMirror_ZeroBytes проверяет окончательный сбой: ни байта не получено
// с нулевого смещения, staging-файл удаляется.
func TestMirror_ZeroBytes(t *testing.T) {
	vol := testVolume(t)
	fetcher := &fakeFetcher{
		payload: []byte{},
		res:     &fetch.Result{BytesReceived: 0},
		err:     fmt.Errorf("connection refused"),
	}
	svc, _ := newMirrorService(t, vol, newFakeVolumes(vol), fetcher, &fakeNotifier{})

	_, err := svc.Mirror(context.Background(), MirrorRequest{
		FileID: "obs-1", FileVersion: 1, URI: "http://remote/f", StartByte: -1,
	})
	if KindOf(err) != KindIOFailure {
		t.Fatalf("ожидался класс IO_FAILURE, получено %v", err)
	}

	stagingPath := mirrorStagingPath(vol.StagingDir(), "obs-1", 1)
	if _, statErr := os.Stat(stagingPath); !os.IsNotExist(statErr) {
		t.Error("пустой staging-файл должен быть удалён")
	}
}

// TestMirror_ResumeClassification проверяет, что сбой при возобновлении
// с ненулевого смещения остаётся возобновляемым даже без новых байт.
func TestMirror_ResumeClassification(t *testing.T) {
	vol := testVolume(t)

	// Частичный файл от прошлой попытки
	stagingPath := mirrorStagingPath(vol.StagingDir(), "obs-1", 1)
	if err := os.WriteFile(stagingPath, []byte("previous"), 0o640); err != nil {
		t.Fatalf("не удалось создать частичный файл: %v", err)
	}

	fetcher := &fakeFetcher{
		res: &fetch.Result{BytesReceived: 0},
		err: fmt.Errorf("timeout"),
	}
	svc, _ := newMirrorService(t, vol, newFakeVolumes(vol), fetcher, &fakeNotifier{})

	_, err := svc.Mirror(context.Background(), MirrorRequest{
		FileID: "obs-1", FileVersion: 1, URI: "http://remote/f", StartByte: -1,
	})
	if KindOf(err) != KindResumable {
		t.Fatalf("ожидался класс RESUMABLE, получено %v", err)
	}
	if _, statErr := os.Stat(stagingPath); statErr != nil {
		t.Errorf("частичный staging-файл должен сохраниться: %v", statErr)
	}
}

// TestMirror_Offline проверяет отклонение запроса в состоянии OFFLINE.
func TestMirror_Offline(t *testing.T) {
	vol := testVolume(t)
	svc, _ := newMirrorService(t, vol, newFakeVolumes(vol), &fakeFetcher{}, &fakeNotifier{})

	if err := svc.machine.Transition(state.StateOffline); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	_, err := svc.Mirror(context.Background(), MirrorRequest{
		FileID: "obs-1", FileVersion: 1, URI: "http://remote/f", StartByte: -1,
	})
	if KindOf(err) != KindConfigurationRejected {
		t.Errorf("ожидался класс CONFIGURATION_REJECTED, получено %v", err)
	}
}

// TestMirror_NoVolume проверяет исход без доступных томов.
func TestMirror_NoVolume(t *testing.T) {
	vol := testVolume(t)
	vol.Completed = true
	svc, _ := newMirrorService(t, vol, newFakeVolumes(vol), &fakeFetcher{}, &fakeNotifier{})

	_, err := svc.Mirror(context.Background(), MirrorRequest{
		FileID: "obs-1", FileVersion: 1, URI: "http://remote/f", StartByte: -1,
	})
	if KindOf(err) != KindNoVolumeAvailable {
		t.Errorf("ожидался класс NO_VOLUME_AVAILABLE, получено %v", err)
	}
}
