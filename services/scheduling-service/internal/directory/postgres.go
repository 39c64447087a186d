package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/legalaid-connect/legalaid/libs/db"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (d *Postgres) Lookup(ctx context.Context, p model.Party) (model.Contact, error) {
	var query string
	switch p.Role() {
	case model.RoleCitizen:
		query = `SELECT full_name, email FROM citizens WHERE id = $1`
	case model.RoleLawyer:
		query = `SELECT full_name, email FROM lawyers WHERE id = $1`
	case model.RoleNGO:
		query = `SELECT ngo_name, email FROM ngos WHERE id = $1`
	default:
		return model.Contact{}, model.Invalid("party", "unknown role")
	}

	var c model.Contact
	err := d.pool.QueryRow(ctx, query, p.ID()).Scan(&c.Name, &c.Email)
	if db.IsNoRows(err) {
		return model.Contact{}, model.NotFound(string(p.Role()))
	}
	if err != nil {
		return model.Contact{}, fmt.Errorf("lookup %s: %w", p, err)
	}
	return c, nil
}

func (d *Postgres) SearchLawyers(ctx context.Context, specialization string) ([]model.Provider, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, full_name, email, specialization
		FROM lawyers
		WHERE is_approved AND specialization ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY id
	`, escapeLike(specialization))
	return collect(rows, err, model.Lawyer)
}

func (d *Postgres) SearchNGOs(ctx context.Context, ngoType string) ([]model.Provider, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, ngo_name, email, ngo_type
		FROM ngos
		WHERE is_approved AND ngo_type ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY id
	`, escapeLike(ngoType))
	return collect(rows, err, model.NGO)
}

func collect(rows pgx.Rows, err error, party func(int64) model.Party) ([]model.Provider, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		var (
			id int64
			p  model.Provider
		)
		if err := rows.Scan(&id, &p.Name, &p.Email, &p.Category); err != nil {
			return nil, err
		}
		p.Party = party(id)
		p.Approved = true
		out = append(out, p)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(strings.TrimSpace(term))
}
