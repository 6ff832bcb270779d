package model

import "time"

// Container — именованная иерархическая группа файлов, созданная в рамках
// одного архивного запроса. Дерево строится в памяти при разборе запроса
// (идентификаторы ещё не присвоены), затем персистируется сверху вниз:
// каждый потомок ссылается на уже известный идентификатор родителя.
// После приёма неизменяем, кроме агрегированного размера.
type Container struct {
	// ContainerID — идентификатор, выданный каталогом при персистенции.
	// Пустой, пока узел существует только в памяти.
	ContainerID string
	// Name — человекочитаемое имя контейнера
	Name string
	// Parent — родительский узел в памяти (nil у корня)
	Parent *Container
	// Size — агрегированный размер: сумма размеров файлов-потомков в байтах
	Size int64
	// IngestionDate — момент персистенции
	IngestionDate time.Time
	// Children — упорядоченный набор дочерних контейнеров
	Children []*Container
}

// NewContainer создаёт узел дерева и привязывает его к родителю.
func NewContainer(name string, parent *Container) *Container {
	c := &Container{Name: name, Parent: parent}
	if parent != nil {
		parent.Children = append(parent.Children, c)
	}
	return c
}
