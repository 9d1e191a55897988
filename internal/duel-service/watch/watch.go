package watch

import (
	"sort"
	"sync"
)

// Set é a célula observável com os oracle_event_ids que o listener precisa
// acompanhar. O caminho de add-sigs escreve, o listener lê. Mudança é
// sinalizada fechando o canal corrente e trocando por um novo, então todo
// leitor pendurado no canal do snapshot acorda junto.
type Set struct {
	mu      sync.Mutex
	ids     map[string]struct{}
	changed chan struct{}
}

// NewSet cria a célula já semeada com os ids dados (apostas ativas sem
// desfecho no boot).
func NewSet(seed []string) *Set {
	ids := make(map[string]struct{}, len(seed))
	for _, id := range seed {
		ids[id] = struct{}{}
	}
	return &Set{ids: ids, changed: make(chan struct{})}
}

// Add insere um id no conjunto. Só sinaliza os leitores se o conjunto de
// fato mudou; repetir um id já presente é no-op silencioso.
func (s *Set) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	close(s.changed)
	s.changed = make(chan struct{})
	return true
}

// Snapshot devolve os ids correntes (ordenados) e o canal que fecha na
// próxima mudança. O padrão de uso é: snapshot, assina o relay com os ids,
// espera no canal, repete.
func (s *Set) Snapshot() ([]string, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, s.changed
}

// Len devolve o tamanho corrente do conjunto.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
