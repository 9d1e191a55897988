package repo

import "context"

// Migrate cria o schema se ainda não existe. Roda no boot do serviço,
// antes de aceitar tráfego.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bets (
			id                    UUID PRIMARY KEY,
			oracle_announcement   BYTEA       NOT NULL,
			oracle_event_id       TEXT        NOT NULL,
			user_a                TEXT        NOT NULL,
			user_b                TEXT        NOT NULL,
			win_a                 JSONB       NOT NULL,
			lose_a                JSONB       NOT NULL,
			win_b                 JSONB       NOT NULL,
			lose_b                JSONB       NOT NULL,
			needs_reply           BOOLEAN     NOT NULL DEFAULT true,
			win_outcome_event_id  TEXT,
			lose_outcome_event_id TEXT,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_bets_oracle_event ON bets (oracle_event_id);
		CREATE INDEX IF NOT EXISTS idx_bets_user_b_pending ON bets (user_b) WHERE needs_reply;

		CREATE TABLE IF NOT EXISTS sigs (
			id         BIGSERIAL PRIMARY KEY,
			bet_id     UUID    NOT NULL REFERENCES bets (id) ON DELETE CASCADE,
			is_party_a BOOLEAN NOT NULL,
			is_win     BOOLEAN NOT NULL,
			outcome    TEXT    NOT NULL,
			sig        BYTEA   NOT NULL,
			UNIQUE (bet_id, outcome, is_party_a)
		);
	`)
	return err
}
