package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/welanie/dealpipe/internal/notify"
)

func TestUserUpsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewUserStoreWithPool(mock)
	require.NoError(t, err)

	user := notify.User{ID: 42, FirstName: "Yan", Username: "yan42"}
	data, err := json.Marshal(user)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO telegram_users").
		WithArgs(user.ID, user.FirstName, user.LastName, data).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), user))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewUserStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT user_data FROM telegram_users").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"user_data"}))

	_, err = store.Get(context.Background(), 7)
	require.ErrorIs(t, err, notify.ErrUserNotFound)
}

func TestUserList(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewUserStoreWithPool(mock)
	require.NoError(t, err)

	first, err := json.Marshal(notify.User{ID: 1, FirstName: "A"})
	require.NoError(t, err)
	second, err := json.Marshal(notify.User{ID: 2, FirstName: "B", Username: "bee"})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT user_data FROM telegram_users").
		WillReturnRows(pgxmock.NewRows([]string{"user_data"}).AddRow(first).AddRow(second))

	users, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "bee", users[1].Username)
	require.NoError(t, mock.ExpectationsWereMet())
}
