package models

import "fmt"

// OutputClass represents one classification label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is the ordered list of labels a model scores.
type OutputClassSet struct {
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a set from labels in model output order.
//
// Arguments:
//   - labels: The class labels; must be non-empty and unique.
//
// Returns:
//   - *OutputClassSet: The class set.
//   - error: An error if a label is empty or repeated.
func NewOutputClassSet(labels []string) (*OutputClassSet, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("class set is empty")
	}
	s := &OutputClassSet{Classes: make([]OutputClass, len(labels))}
	for i, name := range labels {
		if name == "" {
			return nil, fmt.Errorf("class %d has an empty label", i)
		}
		s.Classes[i] = OutputClass{Index: i, Name: name}
	}
	s.BuildNameIndexMap()
	if len(s.nameToIdx) != len(labels) {
		return nil, fmt.Errorf("class labels must be unique: %v", labels)
	}
	return s, nil
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// Len is the number of classes.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// Labels returns the class names in index order.
func (s *OutputClassSet) Labels() []string {
	out := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		out[i] = c.Name
	}
	return out
}

// GetName returns the class name for an index.
func (s *OutputClassSet) GetName(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", fmt.Errorf("index %d out of range for %d classes", idx, len(s.Classes))
	}
	return s.Classes[idx].Name, nil
}
