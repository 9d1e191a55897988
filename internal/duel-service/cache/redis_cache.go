package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache guarda os marcadores de atestação já vista e o agregado de
// counts. Nada aqui é fonte de verdade: perder o Redis só custa re-trabalho.
type RedisCache struct {
	Client   *redis.Client
	SeenTTL  time.Duration // retenção do marcador de atestação
	CountTTL time.Duration // validade do agregado de counts
}

// NewRedisCache cria o cache com os TTLs configurados.
func NewRedisCache(c *redis.Client, seenTTL, countTTL time.Duration) *RedisCache {
	return &RedisCache{Client: c, SeenTTL: seenTTL, CountTTL: countTTL}
}

func seenKey(relayEventID string) string { return "attestation:seen:" + relayEventID }

const countsKey = "bets:counts"

// MarkAttestationSeen registra o id do evento de relay e diz se é a
// primeira vez que ele aparece. Reentrega de relay é comum; o marcador
// poupa a criptografia de novo, a idempotência de verdade fica no banco.
func (r *RedisCache) MarkAttestationSeen(ctx context.Context, relayEventID string) (bool, error) {
	return r.Client.SetNX(ctx, seenKey(relayEventID), "1", r.SeenTTL).Result()
}

// Counts é o agregado cacheado de apostas.
type Counts struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
}

// GetCounts devolve o agregado cacheado, ou ok=false se expirou/não existe.
func (r *RedisCache) GetCounts(ctx context.Context) (Counts, bool) {
	var c Counts
	b, err := r.Client.Get(ctx, countsKey).Bytes()
	if err != nil {
		return c, false
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, false
	}
	return c, true
}

// SetCounts grava o agregado com o TTL curto configurado.
func (r *RedisCache) SetCounts(ctx context.Context, c Counts) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, countsKey, b, r.CountTTL).Err()
}

// Healthy faz um ping com timeout curto, usado pelo healthz.
func (r *RedisCache) Healthy(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}
