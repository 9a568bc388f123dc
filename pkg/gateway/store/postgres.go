package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxprep/voxprep/pkg/core"
	"github.com/voxprep/voxprep/pkg/interview"
)

var _ Store = (*Postgres)(nil)

// Postgres is the production Store, backed by a pgx connection pool. All
// methods are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn and runs pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) InitSession(ctx context.Context, sessionID string) error {
	const q = `
		INSERT INTO sessions (id, status)
		VALUES ($1, 'active')
		ON CONFLICT (id) DO NOTHING`
	if _, err := p.pool.Exec(ctx, q, sessionID); err != nil {
		return core.NewPersistenceError("init session", err)
	}
	return nil
}

func (p *Postgres) sessionExists(ctx context.Context, tx pgx.Tx, sessionID string) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&one)
	if err == pgx.ErrNoRows {
		return errSessionNotFound(sessionID)
	}
	if err != nil {
		return core.NewPersistenceError("lookup session", err)
	}
	return nil
}

func (p *Postgres) appendTurns(ctx context.Context, sessionID string, turns []interview.ConversationTurn, complete bool) (int, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, core.NewPersistenceError("begin", err)
	}
	defer tx.Rollback(ctx)

	if err := p.sessionExists(ctx, tx, sessionID); err != nil {
		return 0, err
	}

	var maxSeq int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = $1`, sessionID).Scan(&maxSeq)
	if err != nil {
		return 0, core.NewPersistenceError("max seq", err)
	}

	fresh, err := checkContiguous(maxSeq, turns)
	if err != nil {
		return 0, err
	}

	const ins = `
		INSERT INTO turns (session_id, seq, speaker, content, turn_type, spoken_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, t := range fresh {
		if _, err := tx.Exec(ctx, ins, sessionID, t.Seq, string(t.Speaker), t.Content, string(t.TurnType), t.Timestamp); err != nil {
			return 0, core.NewPersistenceError("insert turn", err)
		}
	}

	if complete {
		if _, err := tx.Exec(ctx,
			`UPDATE sessions SET status = 'completed', completed_at = now() WHERE id = $1`, sessionID); err != nil {
			return 0, core.NewPersistenceError("complete session", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, core.NewPersistenceError("commit", err)
	}
	return len(fresh), nil
}

func (p *Postgres) AppendTurns(ctx context.Context, sessionID string, turns []interview.ConversationTurn) (int, error) {
	return p.appendTurns(ctx, sessionID, turns, false)
}

func (p *Postgres) CompleteSession(ctx context.Context, sessionID string, remaining []interview.ConversationTurn) error {
	_, err := p.appendTurns(ctx, sessionID, remaining, true)
	return err
}

func (p *Postgres) SaveAnswer(ctx context.Context, sessionID string, answer interview.StructuredAnswer) error {
	payload, err := json.Marshal(answer)
	if err != nil {
		return core.NewPersistenceError("encode answer", err)
	}
	const q = `
		INSERT INTO answers (session_id, question_index, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, question_index) DO UPDATE SET payload = EXCLUDED.payload`
	if _, err := p.pool.Exec(ctx, q, sessionID, answer.QuestionIndex, payload); err != nil {
		return core.NewPersistenceError("insert answer", err)
	}
	return nil
}

func (p *Postgres) Answers(ctx context.Context, sessionID string) ([]interview.StructuredAnswer, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM answers WHERE session_id = $1 ORDER BY question_index`, sessionID)
	if err != nil {
		return nil, core.NewPersistenceError("query answers", err)
	}
	defer rows.Close()

	var out []interview.StructuredAnswer
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, core.NewPersistenceError("scan answer", err)
		}
		var a interview.StructuredAnswer
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, core.NewPersistenceError("decode answer", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError("iterate answers", err)
	}
	return out, nil
}

func (p *Postgres) Transcript(ctx context.Context, sessionID string) ([]interview.ConversationTurn, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT seq, speaker, content, turn_type, spoken_at
		FROM   turns
		WHERE  session_id = $1
		ORDER  BY seq`, sessionID)
	if err != nil {
		return nil, core.NewPersistenceError("query turns", err)
	}
	defer rows.Close()

	var out []interview.ConversationTurn
	for rows.Next() {
		var t interview.ConversationTurn
		var speaker, turnType string
		if err := rows.Scan(&t.Seq, &speaker, &t.Content, &turnType, &t.Timestamp); err != nil {
			return nil, core.NewPersistenceError("scan turn", err)
		}
		t.Speaker = interview.Speaker(speaker)
		t.TurnType = interview.TurnType(turnType)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError("iterate turns", err)
	}
	return out, nil
}

func (p *Postgres) Report(ctx context.Context, sessionID string) (*interview.Report, bool, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM reports WHERE session_id = $1`, sessionID).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.NewPersistenceError("query report", err)
	}
	var rep interview.Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, false, core.NewPersistenceError("decode report", err)
	}
	return &rep, true, nil
}

func (p *Postgres) SaveReport(ctx context.Context, sessionID string, rep interview.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return core.NewPersistenceError("encode report", err)
	}
	const q = `
		INSERT INTO reports (session_id, payload, generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE
		SET payload = EXCLUDED.payload, generated_at = EXCLUDED.generated_at`
	if _, err := p.pool.Exec(ctx, q, sessionID, payload, rep.GeneratedAt); err != nil {
		return core.NewPersistenceError("insert report", err)
	}
	return nil
}

func (p *Postgres) ResetSession(ctx context.Context, sessionID string) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return core.NewPersistenceError("begin", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM reports WHERE session_id = $1`,
		`DELETE FROM answers WHERE session_id = $1`,
		`DELETE FROM turns WHERE session_id = $1`,
		`UPDATE sessions SET status = 'active', completed_at = NULL WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, sessionID); err != nil {
			return core.NewPersistenceError("reset session", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return core.NewPersistenceError("commit", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return core.NewPersistenceError("ping", err)
	}
	return nil
}
