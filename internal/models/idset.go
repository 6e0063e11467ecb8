package models

import (
	"encoding/json"
	"sort"
)

// IdSet is a set of record ids. It is stored as a sorted JSON array.
type IdSet map[string]struct{}

func NewIdSet(ids ...string) IdSet {
	s := make(IdSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IdSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IdSet) Add(id string) {
	s[id] = struct{}{}
}

func (s IdSet) Remove(id string) {
	delete(s, id)
}

func (s IdSet) Len() uint64 {
	return uint64(len(s))
}

func (s IdSet) List() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s IdSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

func (s *IdSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIdSet(ids...)
	return nil
}
