package geo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

func (r *Repo) ListCountries(ctx context.Context) ([]Country, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, utc_offset FROM countries WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Country, error) {
		var c Country
		err := row.Scan(&c.ID, &c.Name, &c.UTCOffset)
		return c, err
	})
}

func (r *Repo) GetCountry(ctx context.Context, id int64) (*Country, error) {
	var c Country
	err := r.db.QueryRow(ctx, `SELECT id, name, utc_offset FROM countries WHERE id=$1`, id).Scan(&c.ID, &c.Name, &c.UTCOffset)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) ListCities(ctx context.Context, countryID int64) ([]City, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, country_id, name, region, utc_offset FROM cities
		WHERE country_id=$1 AND active ORDER BY name
	`, countryID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanCity)
}

func (r *Repo) GetCity(ctx context.Context, id int64) (*City, error) {
	rows, err := r.db.Query(ctx, `SELECT id, country_id, name, region, utc_offset FROM cities WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	c, err := pgx.CollectOneRow(rows, scanCity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCity(row pgx.CollectableRow) (City, error) {
	var c City
	err := row.Scan(&c.ID, &c.CountryID, &c.Name, &c.Region, &c.UTCOffset)
	return c, err
}
