package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/amanningeso/ngas/internal/catalog"
	"github.com/amanningeso/ngas/internal/config"
	"github.com/amanningeso/ngas/internal/domain/model"
)

// TestSelectMirror_PicksLargest проверяет выбор тома с наибольшим
// доступным местом.
func TestSelectMirror_PicksLargest(t *testing.T) {
	vols := newFakeVolumes(
		&model.Volume{DiskID: "h1-s1", HostID: "h1", AvailableMB: 100},
		&model.Volume{DiskID: "h1-s2", HostID: "h1", AvailableMB: 500},
		&model.Volume{DiskID: "h2-s1", HostID: "h2", AvailableMB: 9000},
	)
	sel := NewVolumeSelector(vols, "h1", nil, testLogger())

	v, err := sel.SelectMirror(context.Background())
	if err != nil {
		t.Fatalf("ожидался выбор тома, получена ошибка: %v", err)
	}
	if v.DiskID != "h1-s2" {
		t.Errorf("ожидался том h1-s2, получен %s", v.DiskID)
	}
}

// TestSelectMirror_AllCompleted проверяет исход NO_VOLUME_AVAILABLE,
// когда все тома хоста заполнены.
func TestSelectMirror_AllCompleted(t *testing.T) {
	vols := newFakeVolumes(
		&model.Volume{DiskID: "h1-s1", HostID: "h1", AvailableMB: 100, Completed: true},
		&model.Volume{DiskID: "h1-s2", HostID: "h1", AvailableMB: 500, Completed: true},
	)
	sel := NewVolumeSelector(vols, "h1", nil, testLogger())

	_, err := sel.SelectMirror(context.Background())
	if KindOf(err) != KindNoVolumeAvailable {
		t.Errorf("ожидался класс NO_VOLUME_AVAILABLE, получено %v", err)
	}
}

// TestSelectMirror_CatalogFailure проверяет классификацию сбоя каталога.
func TestSelectMirror_CatalogFailure(t *testing.T) {
	vols := newFakeVolumes()
	vols.bestFitErr = fmt.Errorf("connection refused")
	sel := NewVolumeSelector(vols, "h1", nil, testLogger())

	_, err := sel.SelectMirror(context.Background())
	if KindOf(err) != KindCatalogFailure {
		t.Errorf("ожидался класс CATALOG_FAILURE, получено %v", err)
	}
}

// fixedMapping — политика, всегда возвращающая заданный том.
func fixedMapping(v *model.Volume) MappingFunc {
	return func(context.Context, catalog.Volumes, string) (*model.Volume, error) {
		return v, nil
	}
}

// TestSelectArchive_Mapping проверяет применение политики отображения.
func TestSelectArchive_Mapping(t *testing.T) {
	target := &model.Volume{DiskID: "h1-s1", HostID: "h1", AvailableMB: 10}
	vols := newFakeVolumes(target)

	selected, err := NewVolumeSelector(vols, "h1", fixedMapping(target), testLogger()).SelectArchive(context.Background())
	if err != nil {
		t.Fatalf("ожидался выбор тома, получена ошибка: %v", err)
	}
	if selected.DiskID != target.DiskID {
		t.Errorf("ожидался том %s, получен %s", target.DiskID, selected.DiskID)
	}
}

// TestSelectArchive_MappingNoSpace проверяет отказ, когда политика
// выдала том без доступного места.
func TestSelectArchive_MappingNoSpace(t *testing.T) {
	full := &model.Volume{DiskID: "h1-s1", HostID: "h1", AvailableMB: 0}
	sel := NewVolumeSelector(newFakeVolumes(full), "h1", fixedMapping(full), testLogger())

	_, err := sel.SelectArchive(context.Background())
	if KindOf(err) != KindNoVolumeAvailable {
		t.Errorf("ожидался класс NO_VOLUME_AVAILABLE, получено %v", err)
	}
}

// TestSelectArchive_DefaultBestFit проверяет откат на best-fit без политики.
func TestSelectArchive_DefaultBestFit(t *testing.T) {
	vols := newFakeVolumes(
		&model.Volume{DiskID: "h1-s1", HostID: "h1", AvailableMB: 50},
		&model.Volume{DiskID: "h1-s2", HostID: "h1", AvailableMB: 70},
	)
	sel := NewVolumeSelector(vols, "h1", nil, testLogger())

	v, err := sel.SelectArchive(context.Background())
	if err != nil {
		t.Fatalf("ожидался выбор тома, получена ошибка: %v", err)
	}
	if v.DiskID != "h1-s2" {
		t.Errorf("ожидался том h1-s2, получен %s", v.DiskID)
	}
}

// TestRegisterVolumes проверяет регистрацию томов при старте.
func TestRegisterVolumes(t *testing.T) {
	vols := newFakeVolumes()
	mounts := []config.VolumeMount{
		{SlotID: "slot1", MountPoint: "/mnt/a"},
		{SlotID: "slot2", MountPoint: "/mnt/b"},
	}
	usage := func(string) (int64, int64, int64, error) {
		return 0, 0, 2048 * 1024 * 1024, nil
	}

	if err := RegisterVolumes(context.Background(), vols, "h1", mounts, usage, testLogger()); err != nil {
		t.Fatalf("ожидалась успешная регистрация, получена ошибка: %v", err)
	}

	v, err := vols.Get(context.Background(), "h1-slot1")
	if err != nil {
		t.Fatalf("том h1-slot1 не зарегистрирован: %v", err)
	}
	if v.AvailableMB != 2048 {
		t.Errorf("ожидалось 2048 МБ, получено %d", v.AvailableMB)
	}
	if v.SlotID != "slot1" || v.MountPoint != "/mnt/a" || v.HostID != "h1" {
		t.Errorf("некорректные поля тома: %+v", v)
	}

	if _, err := vols.Get(context.Background(), "h1-slot2"); err != nil {
		t.Errorf("том h1-slot2 не зарегистрирован: %v", err)
	}
}

// TestRegisterVolumes_UsageError проверяет ошибку опроса точки монтирования.
func TestRegisterVolumes_UsageError(t *testing.T) {
	usage := func(string) (int64, int64, int64, error) {
		return 0, 0, 0, fmt.Errorf("statfs failed")
	}
	err := RegisterVolumes(context.Background(), newFakeVolumes(), "h1",
		[]config.VolumeMount{{SlotID: "slot1", MountPoint: "/mnt/a"}}, usage, testLogger())
	if err == nil {
		t.Fatal("ожидалась ошибка регистрации")
	}
}
