package knowledge

// Lookup returns the entries of standard whose phase equals phase exactly,
// in profile order. Unknown standards and phases yield an empty result.
func Lookup(standard, phase string) []Entry {
	entries, ok := profiles[standard]
	if !ok {
		return nil
	}

	var out []Entry
	for _, e := range entries {
		if string(e.Phase) == phase {
			out = append(out, e)
		}
	}
	return out
}

// Topics returns the topic labels of entries, preserving order.
func Topics(entries []Entry) []string {
	topics := make([]string, len(entries))
	for i, e := range entries {
		topics[i] = e.Topic
	}
	return topics
}
