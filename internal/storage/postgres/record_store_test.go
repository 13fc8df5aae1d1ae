package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/welanie/dealpipe/internal/product"
)

func floatPtr(v float64) *float64 { return &v }

func candidate() product.CandidateRecord {
	return product.CandidateRecord{
		Name:            "Куртка",
		Category:        "clothing",
		Price:           floatPtr(2000),
		DiscountedPrice: floatPtr(1000),
		DiscountPercent: floatPtr(50),
		Username:        "shop1",
		Image:           "aW1n",
	}
}

func TestTryInsertStoresNewRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "product_data")
	require.NoError(t, err)

	rec := candidate()
	fp := "aabbccdd"

	mock.ExpectQuery("SELECT 1 FROM product_data").
		WithArgs(fp, rec.Image).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery("INSERT INTO product_data").
		WithArgs(rec.Name, &rec.Category, rec.Price, rec.DiscountedPrice, rec.DiscountPercent,
			&rec.Username, rec.IsFree, &rec.Image, fp).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("rec-1"))

	result, id, err := store.TryInsert(context.Background(), rec, fp)
	require.NoError(t, err)
	require.Equal(t, product.ResultInserted, result)
	require.Equal(t, "rec-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryInsertSkipsKnownFingerprint(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "product_data")
	require.NoError(t, err)

	rec := candidate()
	mock.ExpectQuery("SELECT 1 FROM product_data").
		WithArgs("aabbccdd", rec.Image).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	result, id, err := store.TryInsert(context.Background(), rec, "aabbccdd")
	require.NoError(t, err)
	require.Equal(t, product.ResultDuplicate, result)
	require.Empty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryInsertConstraintRaceIsDuplicate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "product_data")
	require.NoError(t, err)

	rec := candidate()
	fp := "aabbccdd"
	mock.ExpectQuery("SELECT 1 FROM product_data").
		WithArgs(fp, rec.Image).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery("INSERT INTO product_data").
		WithArgs(rec.Name, &rec.Category, rec.Price, rec.DiscountedPrice, rec.DiscountPercent,
			&rec.Username, rec.IsFree, &rec.Image, fp).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "product_data_fingerprint_key"})

	result, id, err := store.TryInsert(context.Background(), rec, fp)
	require.NoError(t, err)
	require.Equal(t, product.ResultDuplicate, result)
	require.Empty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryInsertOutageIsAnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "product_data")
	require.NoError(t, err)

	rec := candidate()
	mock.ExpectQuery("SELECT 1 FROM product_data").
		WithArgs("aabbccdd", rec.Image).
		WillReturnError(errors.New("connection refused"))

	_, _, err = store.TryInsert(context.Background(), rec, "aabbccdd")
	require.ErrorContains(t, err, "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryInsertRequiresFingerprint(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "product_data")
	require.NoError(t, err)

	_, _, err = store.TryInsert(context.Background(), candidate(), "")
	require.Error(t, err)
}

func TestListReturnsStoredRecords(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "product_data")
	require.NoError(t, err)

	category := "clothing"
	price := 2000.0
	discounted := 1000.0
	percent := 50.0
	mock.ExpectQuery("SELECT id, name, category").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "category", "price", "discounted_price", "discount_percent",
			"username", "is_free", "image_base64", "fingerprint",
		}).AddRow("rec-1", "Куртка", &category, &price, &discounted, &percent,
			(*string)(nil), false, (*string)(nil), "aabbccdd"))

	records, err := store.List(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Куртка", records[0].Name)
	require.Equal(t, "clothing", records[0].Category)
	require.Equal(t, 2000.0, *records[0].Price)
	require.Empty(t, records[0].Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreRejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(mock, "product-data; DROP TABLE")
	require.Error(t, err)
}
