// Пакет checksum — инкрементальная контрольная сумма потока байтов.
// Используется CRC32 (IEEE), накапливаемый по мере записи: сумма
// вычисляется в один проход вместе с записью на диск.
package checksum

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"
)

// Algorithm — метка алгоритма, записываемая в каталог вместе с суммой.
const Algorithm = "crc32"

// Accumulator — инкрементальный CRC32 над потоком байтов.
// Реализует io.Writer: каждый Write доворачивает сумму.
type Accumulator struct {
	crc uint32
}

// New создаёт пустой аккумулятор.
func New() *Accumulator {
	return &Accumulator{}
}

// Write доворачивает контрольную сумму на очередной блок.
// Ошибок не возвращает.
func (a *Accumulator) Write(p []byte) (int, error) {
	a.crc = crc32.Update(a.crc, crc32.IEEETable, p)
	return len(p), nil
}

// Sum32 возвращает текущее значение суммы.
func (a *Accumulator) Sum32() uint32 {
	return a.crc
}

// Value возвращает сумму в виде десятичной строки — в таком виде
// она хранится в каталоге.
func (a *Accumulator) Value() string {
	return strconv.FormatUint(uint64(a.crc), 10)
}

// FromFile создаёт аккумулятор, заполненный содержимым существующего
// файла. Применяется при возобновлении передачи: сумма должна покрывать
// полное содержимое, включая байты, записанные предыдущими попытками.
// Возвращает аккумулятор и количество прочитанных байт.
func FromFile(path string, blockSize int64) (*Accumulator, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	defer f.Close()

	a := New()
	n, err := io.CopyBuffer(a, f, make([]byte, blockSize))
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}
	return a, n, nil
}
