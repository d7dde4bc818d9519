package repository

import "encoding/json"

// Page carries the window of a list query; Total is filled by the
// repository with the unwindowed count.
type Page struct {
	Limit  int
	Offset int
	Total  int
}

func (self *Page) MarshalJSON() ([]byte, error) {
	if self == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]int{
		"offset": self.Offset,
		"limit":  self.Limit,
		"total":  self.Total,
	})
}
