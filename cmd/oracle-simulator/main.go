package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/oracle-simulator/relay"
	"github.com/radieske/dlc-duel-platform-poc/internal/shared/config"
	"github.com/radieske/dlc-duel-platform-poc/internal/shared/logger"
	"github.com/radieske/dlc-duel-platform-poc/internal/shared/metrics"
	"github.com/radieske/dlc-duel-platform-poc/pkg/dlc"
	"github.com/radieske/dlc-duel-platform-poc/pkg/nostr"
)

// Catálogo fixo de eventos simulados. Cada entrada vira um anúncio no boot
// e uma atestação automática depois do prazo.
var eventCatalog = []catalogEntry{
	{ID: "coinflip-daily", Outcomes: []string{"Heads", "Tails"}, AttestIn: 2 * time.Minute},
	{ID: "bra-fla-pal", Outcomes: []string{"Flamengo", "Palmeiras", "Empate"}, AttestIn: 5 * time.Minute},
	{ID: "bra-gre-int", Outcomes: []string{"Grêmio", "Internacional", "Empate"}, AttestIn: 5 * time.Minute},
	{ID: "bra-cor-san", Outcomes: []string{"Corinthians", "Santos", "Empate"}, AttestIn: 8 * time.Minute},
}

type catalogEntry struct {
	ID       string
	Outcomes []string
	AttestIn time.Duration
}

// Métricas Prometheus do simulador
var (
	announcementsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_announcements_published_total",
		Help: "Anúncios publicados no relay",
	})
	attestationsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_attestations_published_total",
		Help: "Atestações publicadas no relay",
	})
)

// simEvent é o estado de um evento anunciado: o anúncio serializado, o id da
// nota kind 88 no relay (que as apostas referenciam) e o desfecho atestado.
type simEvent struct {
	ID        string
	Outcomes  []string
	AttestsAt time.Time

	Announcement  string // TLV em base64
	OracleEventID string // id da nota kind 88
	Attested      bool
	Outcome       string
}

var errAlreadyAttested = errors.New("event already attested")

// simulator amarra o oráculo DLC ao relay embutido: anuncia o catálogo no
// boot e atesta cada evento no prazo (ou antes, via POST /attest).
type simulator struct {
	log    *zap.Logger
	oracle *dlc.Oracle
	hub    *relay.Hub
	key    *btcec.PrivateKey

	mu     sync.Mutex
	events map[string]*simEvent
}

func newSimulator(log *zap.Logger, priv *btcec.PrivateKey, hub *relay.Hub) *simulator {
	return &simulator{
		log:    log,
		oracle: dlc.NewOracle(priv),
		hub:    hub,
		key:    priv,
		events: make(map[string]*simEvent),
	}
}

// announce assina o anúncio do evento e publica a nota kind 88 no relay.
// O id dessa nota é o oracle_event_id que o duel-service acompanha.
func (s *simulator) announce(entry catalogEntry) error {
	attestsAt := time.Now().Add(entry.AttestIn)

	ann, err := s.oracle.Announce(entry.ID, entry.Outcomes, uint32(attestsAt.Unix()))
	if err != nil {
		return fmt.Errorf("announce %s: %w", entry.ID, err)
	}

	note := &nostr.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindOracleAnnouncement,
		Tags:      []nostr.Tag{{"d", entry.ID}},
		Content:   ann.EncodeBase64(),
	}
	if err := note.Sign(s.key); err != nil {
		return fmt.Errorf("sign announcement note %s: %w", entry.ID, err)
	}
	s.hub.Accept(note)
	announcementsPublished.Inc()

	s.mu.Lock()
	s.events[entry.ID] = &simEvent{
		ID:            entry.ID,
		Outcomes:      entry.Outcomes,
		AttestsAt:     attestsAt,
		Announcement:  ann.EncodeBase64(),
		OracleEventID: note.ID,
	}
	s.mu.Unlock()

	s.log.Info("event announced",
		zap.String("event_id", entry.ID),
		zap.String("oracle_event_id", note.ID),
		zap.Strings("outcomes", entry.Outcomes),
		zap.Time("attests_at", attestsAt))
	return nil
}

// attest assina o outcome real e publica a nota kind 89 com a e-tag
// apontando pra nota de anúncio. Repetir a atestação é erro.
func (s *simulator) attest(eventID, outcome string) error {
	s.mu.Lock()
	ev, ok := s.events[eventID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown event %q", eventID)
	}
	if ev.Attested {
		s.mu.Unlock()
		return errAlreadyAttested
	}
	oracleEventID := ev.OracleEventID
	s.mu.Unlock()

	att, err := s.oracle.Attest(eventID, outcome)
	if err != nil {
		return err
	}

	note := &nostr.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindOracleAttestation,
		Tags:      []nostr.Tag{{"e", oracleEventID}},
		Content:   att.EncodeBase64(),
	}
	if err := note.Sign(s.key); err != nil {
		return fmt.Errorf("sign attestation note %s: %w", eventID, err)
	}
	s.hub.Accept(note)
	attestationsPublished.Inc()

	s.mu.Lock()
	ev.Attested = true
	ev.Outcome = outcome
	s.mu.Unlock()

	s.log.Info("event attested",
		zap.String("event_id", eventID),
		zap.String("outcome", outcome),
		zap.String("attestation_note", note.ID))
	return nil
}

// schedule dispara a atestação automática de um evento no prazo, com
// outcome sorteado. Se alguém atestou manualmente antes, vira no-op.
func (s *simulator) schedule(entry catalogEntry) {
	time.AfterFunc(entry.AttestIn, func() {
		outcome := entry.Outcomes[rand.Intn(len(entry.Outcomes))]
		if err := s.attest(entry.ID, outcome); err != nil && !errors.Is(err, errAlreadyAttested) {
			s.log.Error("auto attest failed", zap.String("event_id", entry.ID), zap.Error(err))
		}
	})
}

// announcementInfo é a projeção JSON de um evento para o GET /announcements.
type announcementInfo struct {
	EventID            string   `json:"event_id"`
	OracleEventID      string   `json:"oracle_event_id"`
	OracleAnnouncement string   `json:"oracle_announcement"`
	Outcomes           []string `json:"outcomes"`
	AttestsAt          int64    `json:"attests_at"`
	Attested           bool     `json:"attested"`
	Outcome            string   `json:"outcome,omitempty"`
}

// listHandler devolve o catálogo anunciado, com o material que um cliente
// precisa pra montar uma aposta (anúncio TLV + oracle_event_id).
func (s *simulator) listHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]announcementInfo, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, announcementInfo{
			EventID:            ev.ID,
			OracleEventID:      ev.OracleEventID,
			OracleAnnouncement: ev.Announcement,
			Outcomes:           ev.Outcomes,
			AttestsAt:          ev.AttestsAt.Unix(),
			Attested:           ev.Attested,
			Outcome:            ev.Outcome,
		})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// attestHandler força a atestação de um evento antes do prazo (útil em demo).
func (s *simulator) attestHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req struct {
		EventID string `json:"event_id"`
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := s.attest(req.EventID, req.Outcome); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errAlreadyAttested) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("true\n"))
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(announcementsPublished, attestationsPublished)

	// chave do oráculo: fixa via env pra sobreviver a restart, ou efêmera
	var priv *btcec.PrivateKey
	if cfg.OracleKey != "" {
		priv, err = nostr.ParsePrivateKey(cfg.OracleKey)
	} else {
		priv, err = nostr.GenerateKey()
	}
	if err != nil {
		log.Fatal("oracle key", zap.Error(err))
	}
	log.Info("oracle identity", zap.String("pubkey", nostr.PublicKeyHex(priv)))

	hub := relay.NewHub(log)
	sim := newSimulator(log, priv, hub)

	for _, entry := range eventCatalog {
		if err := sim.announce(entry); err != nil {
			log.Fatal("announce", zap.Error(err))
		}
		sim.schedule(entry)
	}

	// metrics/health em porta própria; sem healthFn porque o simulador não
	// depende de nada externo
	metrics.StartMetricsServer(cfg.MetricsPort, nil)
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	// ==== MUX PÚBLICO: relay ws + catálogo + atestação manual
	appMux := http.NewServeMux()
	appMux.HandleFunc("/ws", hub.HandleWS)
	appMux.HandleFunc("/announcements", sim.listHandler)
	appMux.HandleFunc("/attest", sim.attestHandler)

	publicAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("oracle simulator running",
		zap.String("addr", publicAddr),
		zap.String("paths", "/ws,/announcements,/attest"))
	if err := http.ListenAndServe(publicAddr, appMux); err != nil {
		log.Fatal("public server error", zap.Error(err))
	}
}
