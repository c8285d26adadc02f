package plan

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	serr "github.com/truxe-io/admission/error"
)

const (
	pgSelectPlanByOrg = `
		SELECT
			plan
		FROM
			billing.subscriptions
		WHERE
			org_id = $1 AND
			active = true
		ORDER BY
			created_at DESC
		LIMIT 1`
	pgSelectPlanByUser = `
		SELECT
			plan
		FROM
			billing.subscriptions
		WHERE
			user_id = $1 AND
			active = true
		ORDER BY
			created_at DESC
		LIMIT 1`
)

type pgService struct {
	db *sqlx.DB
}

// PostgresService returns a Postgres backed Service implementation reading
// subscriptions from the identity store.
func PostgresService(db *sqlx.DB) Service {
	return &pgService{db: db}
}

func (s *pgService) Resolve(userID, orgID string) (Plan, error) {
	var (
		name  string
		query = pgSelectPlanByUser
		arg   = userID
	)

	if orgID != "" {
		query = pgSelectPlanByOrg
		arg = orgID
	}

	err := s.db.Get(&name, query, arg)
	if err == sql.ErrNoRows {
		return Free, nil
	}
	if err != nil {
		return Free, fmt.Errorf("plan lookup failed: %s", err)
	}

	p := Plan(name)
	if !p.IsValid() {
		return Free, serr.Wrap(serr.ErrNotFound, "unknown plan %s", name)
	}

	return p, nil
}
