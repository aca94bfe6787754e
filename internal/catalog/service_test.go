package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/catalog"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch out := d.(type) {
		case *string:
			*out = r.vals[i].(string)
		case *int64:
			*out = r.vals[i].(int64)
		case *int32:
			*out = r.vals[i].(int32)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeDB struct {
	row  fakeRow
	hits int
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	db.hits++
	return db.row
}

func productRow(id uuid.UUID) fakeRow {
	return fakeRow{vals: []any{
		id.String(), "SKU-77", "8991002101234", "instant noodles",
		"UNIT", int64(3_500), int32(40), "",
	}}
}

func TestFindByIdentifierQueriesDatabase(t *testing.T) {
	id := uuid.New()
	db := &fakeDB{row: productRow(id)}
	svc, err := catalog.NewService(catalog.ServiceConfig{DB: db})
	require.NoError(t, err)

	p, err := svc.FindByIdentifier(context.Background(), "8991002101234")
	require.NoError(t, err)
	require.Equal(t, cart.Product{
		ID:        id,
		SKU:       "SKU-77",
		Barcode:   "8991002101234",
		Name:      "instant noodles",
		Mode:      pricing.ModeUnit,
		UnitPrice: 3_500,
		Stock:     40,
	}, p)
}

func TestFindByIdentifierNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	svc, err := catalog.NewService(catalog.ServiceConfig{DB: db})
	require.NoError(t, err)

	_, err = svc.FindByIdentifier(context.Background(), "no-such-code")
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestFindByIdentifierRejectsEmptyCode(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{DB: &fakeDB{}})
	require.NoError(t, err)

	_, err = svc.FindByIdentifier(context.Background(), "   ")
	require.Error(t, err)
}

func TestFindByIdentifierServesCachedHit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	id := uuid.New()
	db := &fakeDB{row: productRow(id)}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		DB:    db,
		Cache: catalog.NewCache(client, time.Minute),
	})
	require.NoError(t, err)

	first, err := svc.FindByIdentifier(context.Background(), "SKU-77")
	require.NoError(t, err)
	second, err := svc.FindByIdentifier(context.Background(), "SKU-77")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, db.hits)
}

func TestCacheExpiryFallsBackToDatabase(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	db := &fakeDB{row: productRow(uuid.New())}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		DB:    db,
		Cache: catalog.NewCache(client, time.Second),
	})
	require.NoError(t, err)

	_, err = svc.FindByIdentifier(context.Background(), "SKU-77")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = svc.FindByIdentifier(context.Background(), "SKU-77")
	require.NoError(t, err)
	require.Equal(t, 2, db.hits)
}
