// README: Postgres-backed device token registry (fcm_tokens table).
package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"tripshare/internal/types"
)

type PGTokenStore struct {
	db *pgxpool.Pool
}

func NewTokenStore(db *pgxpool.Pool) *PGTokenStore {
	return &PGTokenStore{db: db}
}

func (s *PGTokenStore) Tokens(ctx context.Context, userID types.ID) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT token FROM fcm_tokens WHERE user_id = $1 ORDER BY updated_at DESC`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (s *PGTokenStore) Save(ctx context.Context, userID types.ID, token string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO fcm_tokens (user_id, token, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, token) DO UPDATE SET updated_at = NOW()`,
		string(userID), token)
	return err
}

func (s *PGTokenStore) Delete(ctx context.Context, userID types.ID, token string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM fcm_tokens WHERE user_id = $1 AND token = $2`,
		string(userID), token)
	return err
}
