// containers.go — персистенция дерева контейнеров в каталог.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/amanningeso/ngas/internal/catalog"
	"github.com/amanningeso/ngas/internal/domain/model"
)

// ContainerService персистирует дерево контейнеров одного архивного
// запроса. Обход строго pre-order: родитель записывается раньше детей,
// поэтому каждый потомок ссылается на уже выданный идентификатор
// родителя — ссылок вперёд не бывает. Размер при создании нулевой,
// агрегат записывает коммит метаданных после приёма всех файлов.
type ContainerService struct {
	containers catalog.Containers
	logger     *slog.Logger
}

// NewContainerService создаёт сервис персистенции контейнеров.
func NewContainerService(containers catalog.Containers, logger *slog.Logger) *ContainerService {
	return &ContainerService{
		containers: containers,
		logger:     logger.With(slog.String("component", "container_service")),
	}
}

// PersistTree рекурсивно персистирует дерево от корня. Каждому узлу
// каталог выдаёт идентификатор и момент приёма в момент записи.
func (s *ContainerService) PersistTree(ctx context.Context, root *model.Container) error {
	return s.persist(ctx, root, nil)
}

func (s *ContainerService) persist(ctx context.Context, c *model.Container, parentID *string) error {
	now := time.Now().UTC()
	id, err := s.containers.Create(ctx, c.Name, parentID, 0, now)
	if err != nil {
		return failure(KindCatalogFailure, err)
	}
	c.ContainerID = id
	c.IngestionDate = now

	s.logger.Debug("Контейнер создан",
		slog.String("container_id", id),
		slog.String("name", c.Name),
	)

	for _, child := range c.Children {
		if err := s.persist(ctx, child, &id); err != nil {
			return err
		}
	}
	return nil
}
