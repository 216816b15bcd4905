// Package attempts ограничивает число неудачных попыток ввода на одном шаге
// диалога. Счётчики живут в payload диалога.
package attempts

import "github.com/Spok95/wb-materials-bot/internal/dialog"

const DefaultMax = 3

type Policy struct {
	Max int
}

func key(name string) string { return "attempts:" + name }

func (p Policy) max() int {
	if p.Max <= 0 {
		return DefaultMax
	}
	return p.Max
}

// Count сколько неудачных попыток уже учтено.
func (p Policy) Count(pl dialog.Payload, name string) int {
	switch v := pl[key(name)].(type) {
	case int:
		return v
	case float64: // после JSON
		return int(v)
	}
	return 0
}

// Fail учитывает неудачную попытку. true, если лимит исчерпан.
func (p Policy) Fail(pl dialog.Payload, name string) bool {
	n := p.Count(pl, name) + 1
	pl[key(name)] = n
	return n >= p.max()
}

func (p Policy) Reset(pl dialog.Payload, name string) {
	delete(pl, key(name))
}
