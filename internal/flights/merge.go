package flights

// Merge combines a civil record with the military record sharing its key.
//
// The result is a new value: it is flagged military, and callsign and category are taken from mil only
// when civil has none. Empty strings count as none. Neither input is modified.
func Merge(civil, mil Flight) Flight {
	out := civil
	out.Military = true
	if blank(out.Callsign) && !blank(mil.Callsign) {
		out.Callsign = mil.Callsign
	}
	if blank(out.Category) && !blank(mil.Category) {
		out.Category = mil.Category
	}
	return out
}

func blank(s *string) bool {
	return s == nil || *s == ""
}

// MergeSources joins both feeds into one list, in first insertion order.
//
// Civil records seed the index; a duplicated civil key keeps its first position but the last record wins.
// Military records either upgrade the civil record at their key or are appended unchanged.
func MergeSources(civil, mil []Flight) []Flight {
	pos := make(map[string]int, len(civil)+len(mil))
	out := make([]Flight, 0, len(civil)+len(mil))

	for _, f := range civil {
		k := f.Key()
		if i, ok := pos[k]; ok {
			out[i] = f
			continue
		}
		pos[k] = len(out)
		out = append(out, f)
	}

	for _, m := range mil {
		k := m.Key()
		if i, ok := pos[k]; ok {
			out[i] = Merge(out[i], m)
			continue
		}
		pos[k] = len(out)
		out = append(out, m)
	}

	return out
}
