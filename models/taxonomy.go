package models

// Taxonomy is the full enumeration of known values per axis, normalised.
type Taxonomy struct {
	Difficulties []string `yaml:"difficulties"`
	Topics       []string `yaml:"topics"`
	Languages    []string `yaml:"languages"`
}

// DefaultTaxonomy mirrors the question bank's enums.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Difficulties: []string{"EASY", "MEDIUM", "HARD"},
		Topics: []string{
			"ARRAY", "STRING", "HASH_TABLE", "MATH", "GREEDY",
			"GRAPH", "TREE", "DYNAMIC_PROGRAMMING", "RECURSION", "BACKTRACKING",
		},
		Languages: []string{"PYTHON", "JAVASCRIPT", "JAVA", "C++", "C#", "GO", "RUBY"},
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Knows reports whether every axis of k is ANY or a known value.
func (t Taxonomy) Knows(k QueueKey) (string, bool) {
	if k.Difficulty != Any && !contains(t.Difficulties, k.Difficulty) {
		return "difficulty", false
	}
	if k.Topic != Any && !contains(t.Topics, k.Topic) {
		return "topic", false
	}
	if k.Language != Any && !contains(t.Languages, k.Language) {
		return "language", false
	}
	return "", true
}
