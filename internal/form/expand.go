package form

// RepeatFunc вычисляет число повторов группы при раскрытии.
type RepeatFunc func(group Step) int

// Expand раскрывает группы в плоский список атомарных шагов с полными
// именами вида group.index.field. Порядок соответствует порядку схемы.
func Expand(steps []Step, prefix string) []Step {
	return ExpandWith(steps, prefix, Step.Repeat)
}

func ExpandWith(steps []Step, prefix string, repeat RepeatFunc) []Step {
	if repeat == nil {
		repeat = Step.Repeat
	}
	out := make([]Step, 0, len(steps))
	for _, st := range steps {
		full := st.Name
		if prefix != "" {
			full = prefix + "." + st.Name
		}
		if st.Type == StepGroup {
			n := repeat(st)
			for i := 0; i < n; i++ {
				out = append(out, ExpandWith(st.Steps, full+"."+itoa(i), repeat)...)
			}
			continue
		}
		leaf := st
		leaf.Name = full
		out = append(out, leaf)
	}
	return out
}

// Names возвращает имена шагов.
func Names(steps []Step) []string {
	out := make([]string, len(steps))
	for i, st := range steps {
		out[i] = st.Name
	}
	return out
}
