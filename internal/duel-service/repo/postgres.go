package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Postgres implementa a persistência de apostas e assinaturas em banco
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de apostas
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrNotFound       = errors.New("bet not found")
	ErrAlreadyReplied = errors.New("bet already has counterparty signatures")
	ErrAlreadySettled = errors.New("bet already settled with a different outcome")
)

const betColumns = `id, oracle_announcement, oracle_event_id, user_a, user_b,
	win_a, lose_a, win_b, lose_b, needs_reply,
	win_outcome_event_id, lose_outcome_event_id, created_at`

func scanBet(row interface{ Scan(...interface{}) error }) (*Bet, error) {
	var b Bet
	err := row.Scan(&b.ID, &b.OracleAnnouncement, &b.OracleEventID, &b.UserA, &b.UserB,
		&b.WinA, &b.LoseA, &b.WinB, &b.LoseB, &b.NeedsReply,
		&b.WinOutcomeEventID, &b.LoseOutcomeEventID, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBet insere a aposta e as assinaturas da parte A numa transação só:
// ou entra tudo, ou nada
func (p *Postgres) CreateBet(ctx context.Context, b *Bet, sigs []Sig) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := uuid.NewString()
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO bets (id, oracle_announcement, oracle_event_id, user_a, user_b,
			win_a, lose_a, win_b, lose_b, needs_reply)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,true)`,
		id, b.OracleAnnouncement, b.OracleEventID, b.UserA, b.UserB,
		b.WinA, b.LoseA, b.WinB, b.LoseB,
	); err != nil {
		return "", err
	}

	if err = insertSigs(ctx, tx, id, sigs); err != nil {
		return "", err
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func insertSigs(ctx context.Context, tx *sql.Tx, betID string, sigs []Sig) error {
	for _, s := range sigs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sigs (bet_id, is_party_a, is_win, outcome, sig)
			VALUES ($1,$2,$3,$4,$5)`,
			betID, s.IsPartyA, s.IsWin, s.Outcome, s.Sig,
		); err != nil {
			return err
		}
	}
	return nil
}

// AddReply grava as assinaturas da parte B e ativa a aposta, tudo na mesma
// transação. Falha com ErrAlreadyReplied se a aposta já estava ativa.
func (p *Postgres) AddReply(ctx context.Context, betID string, sigs []Sig) (*Bet, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var needsReply bool
	err = tx.QueryRowContext(ctx,
		`SELECT needs_reply FROM bets WHERE id=$1 FOR UPDATE`, betID).Scan(&needsReply)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	if !needsReply {
		return nil, ErrAlreadyReplied
	}

	if err = insertSigs(ctx, tx, betID, sigs); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE bets SET needs_reply=false WHERE id=$1`, betID); err != nil {
		return nil, err
	}

	bet, err := scanBet(tx.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE id=$1`, betID))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return bet, nil
}

// Reject apaga a aposta e as assinaturas se quem pediu é uma das partes.
// Pedido de quem não é parte não é erro, só não faz nada.
func (p *Postgres) Reject(ctx context.Context, betID, requester string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userA, userB string
	err = tx.QueryRowContext(ctx,
		`SELECT user_a, user_b FROM bets WHERE id=$1 FOR UPDATE`, betID).Scan(&userA, &userB)
	if err == sql.ErrNoRows {
		return tx.Commit()
	} else if err != nil {
		return err
	}

	if requester != userA && requester != userB {
		return tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM sigs WHERE bet_id=$1`, betID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM bets WHERE id=$1`, betID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetOutcome grava os ids dos eventos de payout liquidados, um lado por
// vez (ponteiro nulo deixa o lado como está). Regravar o mesmo valor é
// no-op; trocar um valor já gravado falha com ErrAlreadySettled.
func (p *Postgres) SetOutcome(ctx context.Context, betID string, winEventID, loseEventID *string) error {
	if winEventID == nil && loseEventID == nil {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var curWin, curLose *string
	err = tx.QueryRowContext(ctx,
		`SELECT win_outcome_event_id, lose_outcome_event_id FROM bets WHERE id=$1 FOR UPDATE`,
		betID).Scan(&curWin, &curLose)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}

	if winEventID != nil {
		if curWin != nil && *curWin != *winEventID {
			return ErrAlreadySettled
		}
		if curWin == nil {
			if _, err = tx.ExecContext(ctx,
				`UPDATE bets SET win_outcome_event_id=$1 WHERE id=$2`, *winEventID, betID); err != nil {
				return err
			}
		}
	}

	if loseEventID != nil {
		if curLose != nil && *curLose != *loseEventID {
			return ErrAlreadySettled
		}
		if curLose == nil {
			if _, err = tx.ExecContext(ctx,
				`UPDATE bets SET lose_outcome_event_id=$1 WHERE id=$2`, *loseEventID, betID); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetByID carrega uma aposta pelo id
func (p *Postgres) GetByID(ctx context.Context, betID string) (*Bet, error) {
	bet, err := scanBet(p.db.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE id=$1`, betID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return bet, nil
}

// GetByOracleEvent lista todas as apostas penduradas num anúncio de
// oráculo, ativas ou não. É a consulta do casamento de atestações.
func (p *Postgres) GetByOracleEvent(ctx context.Context, oracleEventID string) ([]Bet, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE oracle_event_id=$1`, oracleEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBets(rows)
}

// GetPendingFor lista apostas esperando a resposta do usuário dado
func (p *Postgres) GetPendingFor(ctx context.Context, pubkey string) ([]Bet, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE needs_reply=true AND user_b=$1`, pubkey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBets(rows)
}

// GetActiveFor lista apostas já respondidas que envolvem o usuário dado,
// liquidadas ou não
func (p *Postgres) GetActiveFor(ctx context.Context, pubkey string) ([]Bet, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE needs_reply=false AND (user_a=$1 OR user_b=$1)`, pubkey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBets(rows)
}

func collectBets(rows *sql.Rows) ([]Bet, error) {
	var out []Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UnresolvedEventIDs devolve os oracle_event_ids das apostas ativas ainda
// sem desfecho. É o conjunto que semeia a subscription do listener no boot.
func (p *Postgres) UnresolvedEventIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT oracle_event_id FROM bets
		WHERE needs_reply=false
		  AND (win_outcome_event_id IS NULL OR lose_outcome_event_id IS NULL)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStrings(rows)
}

// AllEventIDs devolve os oracle_event_ids de todas as apostas registradas
func (p *Postgres) AllEventIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT oracle_event_id FROM bets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStrings(rows)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteStalePending apaga apostas que nunca saíram de needs_reply e já
// passaram da janela de retenção. As assinaturas caem junto pelo cascade.
func (p *Postgres) DeleteStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM bets WHERE needs_reply=true AND created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Counts retorna o agregado de apostas ativas e liquidadas
func (p *Postgres) Counts(ctx context.Context) (active, completed int64, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE needs_reply=false
				AND (win_outcome_event_id IS NULL OR lose_outcome_event_id IS NULL)),
			count(*) FILTER (WHERE win_outcome_event_id IS NOT NULL
				AND lose_outcome_event_id IS NOT NULL)
		FROM bets`).Scan(&active, &completed)
	return active, completed, err
}

// SigsByBet lista as assinaturas de uma aposta
func (p *Postgres) SigsByBet(ctx context.Context, betID string) ([]Sig, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, bet_id, is_party_a, is_win, outcome, sig
		FROM sigs WHERE bet_id=$1`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sig
	for rows.Next() {
		var s Sig
		if err := rows.Scan(&s.ID, &s.BetID, &s.IsPartyA, &s.IsWin, &s.Outcome, &s.Sig); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SigByParams busca a assinatura de uma parte pra um outcome específico.
// Ausência não é erro: volta nil pro resolver decidir o que fazer.
func (p *Postgres) SigByParams(ctx context.Context, betID, outcome string, isPartyA bool) (*Sig, error) {
	var s Sig
	err := p.db.QueryRowContext(ctx, `
		SELECT id, bet_id, is_party_a, is_win, outcome, sig
		FROM sigs WHERE bet_id=$1 AND outcome=$2 AND is_party_a=$3`,
		betID, outcome, isPartyA).Scan(&s.ID, &s.BetID, &s.IsPartyA, &s.IsWin, &s.Outcome, &s.Sig)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &s, nil
}
