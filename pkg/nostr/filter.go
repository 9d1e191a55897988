package nostr

import "encoding/json"

// Filter é o subconjunto de filtro NIP-01 que a plataforma usa: kinds,
// autores e referências de evento (tag "#e").
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	ETags   []string
	Since   int64
	Until   int64
	Limit   int
}

func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.ETags) > 0 {
		m["#e"] = f.ETags
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Until > 0 {
		m["until"] = f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw struct {
		IDs     []string `json:"ids"`
		Authors []string `json:"authors"`
		Kinds   []int    `json:"kinds"`
		ETags   []string `json:"#e"`
		Since   int64    `json:"since"`
		Until   int64    `json:"until"`
		Limit   int      `json:"limit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.IDs = raw.IDs
	f.Authors = raw.Authors
	f.Kinds = raw.Kinds
	f.ETags = raw.ETags
	f.Since = raw.Since
	f.Until = raw.Until
	f.Limit = raw.Limit
	return nil
}

// Matches diz se um evento passa pelo filtro. Usado pelo relay do simulador
// e nos testes do listener.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !containsStr(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsStr(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.ETags) > 0 && !containsStr(f.ETags, e.FirstTagValue("e")) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && e.CreatedAt > f.Until {
		return false
	}
	return true
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}
