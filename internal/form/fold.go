package form

import (
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Fold превращает плоские ключи вида group.index.field... во вложенную структуру.
// Ключи короче трёх сегментов сохраняются как есть.
func Fold(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	keys := lo.Keys(flat)
	sort.Strings(keys)
	for _, key := range keys {
		value := flat[key]
		parts := strings.Split(key, ".")
		if len(parts) < 3 {
			out[key] = value
			continue
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 {
			out[key] = value
			continue
		}

		list, _ := out[parts[0]].([]any)
		for len(list) <= idx {
			list = append(list, map[string]any{})
		}
		item, ok := list[idx].(map[string]any)
		if !ok {
			item = map[string]any{}
		}
		setPath(item, parts[2:], value)
		list[idx] = item
		out[parts[0]] = list
	}
	return out
}

func setPath(m map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// Flatten обратная к Fold операция: списки объектов верхнего уровня
// разворачиваются в ключи group.index.field.
func Flatten(nested map[string]any) map[string]any {
	out := make(map[string]any, len(nested))
	for key, value := range nested {
		items, ok := repeatItems(value)
		if !ok {
			out[key] = value
			continue
		}
		for i, item := range items {
			flattenInto(out, key+"."+itoa(i), item)
		}
	}
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
			flattenInto(out, prefix+"."+k, sub)
			continue
		}
		out[prefix+"."+k] = v
	}
}

// repeatItems распознаёт значение, которое Fold собрал из повторов группы.
// Пустой последний элемент Fold восстановить не может, такие списки остаются листом.
func repeatItems(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	items := make([]map[string]any, 0, len(list))
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		items = append(items, m)
	}
	if len(items[len(items)-1]) == 0 {
		return nil, false
	}
	return items, true
}

func itoa(i int) string { return strconv.Itoa(i) }
