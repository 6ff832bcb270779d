package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/amanningeso/ngas/internal/domain/model"
)

// TestPersistTree_ParentBeforeChild проверяет порядок персистенции:
// каждый контейнер записывается раньше своих потомков.
func TestPersistTree_ParentBeforeChild(t *testing.T) {
	// A -> (B -> C), D
	a := model.NewContainer("A", nil)
	b := model.NewContainer("B", a)
	model.NewContainer("C", b)
	model.NewContainer("D", a)

	containers := newFakeContainers()
	svc := NewContainerService(containers, testLogger())

	if err := svc.PersistTree(context.Background(), a); err != nil {
		t.Fatalf("ожидалась успешная персистенция, получена ошибка: %v", err)
	}

	if len(containers.order) != 4 {
		t.Fatalf("ожидалось 4 контейнера, персистировано %d", len(containers.order))
	}

	// Идентификаторы выданы каталогом и проставлены в дерево
	for _, c := range []*model.Container{a, b} {
		if c.ContainerID == "" {
			t.Errorf("контейнер %s без идентификатора", c.Name)
		}
	}

	// Родительские ссылки корректны
	rowB, err := containers.Get(context.Background(), b.ContainerID)
	if err != nil {
		t.Fatalf("контейнер B не найден: %v", err)
	}
	if rowB.ParentID == nil || *rowB.ParentID != a.ContainerID {
		t.Errorf("родителем B должен быть A (%s), получено %v", a.ContainerID, rowB.ParentID)
	}

	rowA, _ := containers.Get(context.Background(), a.ContainerID)
	if rowA.ParentID != nil {
		t.Errorf("корень не должен иметь родителя, получено %v", *rowA.ParentID)
	}

	// Размер при создании нулевой, агрегат пишется при коммите
	if rowA.Size != 0 || rowB.Size != 0 {
		t.Errorf("ожидался нулевой размер при создании, получено A=%d B=%d", rowA.Size, rowB.Size)
	}
}

// TestPersistTree_CatalogFailure проверяет классификацию сбоя каталога.
func TestPersistTree_CatalogFailure(t *testing.T) {
	containers := newFakeContainers()
	containers.createErr = fmt.Errorf("connection refused")
	svc := NewContainerService(containers, testLogger())

	err := svc.PersistTree(context.Background(), model.NewContainer("A", nil))
	if KindOf(err) != KindCatalogFailure {
		t.Errorf("ожидался класс CATALOG_FAILURE, получено %v", err)
	}
}
