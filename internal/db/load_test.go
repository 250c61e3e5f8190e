package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exposureTable = Table{Schema: "gis", Name: "exposure"}

func TestReplace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE "gis"."exposure"`).WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "exposure"}, []string{"feature_id", "burn_mean"}).WillReturnResult(3)
	mock.ExpectCommit()

	rows := [][]any{{1, 2.5}, {2, nil}, {3, 0.0}}
	n, err := Replace(context.Background(), mock, exposureTable, []string{"feature_id", "burn_mean"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_EmptyStillTruncates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE "exposure"`).WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
	mock.ExpectCommit()

	n, err := Replace(context.Background(), mock, Table{Name: "exposure"}, []string{"feature_id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE`).WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "exposure"}, []string{"feature_id"}).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = Replace(context.Background(), mock, exposureTable, []string{"feature_id"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into gis.exposure")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "stage_exposure" \(LIKE "gis"."exposure"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_exposure"}, []string{"feature_id", "burn_mean"}).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("feature_id"\) DO UPDATE SET "burn_mean" = EXCLUDED."burn_mean"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := Merge(context.Background(), mock, exposureTable, "feature_id",
		[]string{"feature_id", "burn_mean"}, [][]any{{1, 2.5}, {2, nil}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge_Guards(t *testing.T) {
	n, err := Merge(context.Background(), nil, exposureTable, "feature_id", []string{"feature_id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = Merge(context.Background(), nil, exposureTable, "id", []string{"feature_id"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key "id"`)
}

func TestMerge_RowWidthMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_exposure"}, []string{"feature_id", "burn_mean"}).
		WillReturnError(fmt.Errorf("row 0 has 1 values for 2 columns"))
	mock.ExpectRollback()

	_, err = Merge(context.Background(), mock, exposureTable, "feature_id",
		[]string{"feature_id", "burn_mean"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: merge")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSQL_KeyOnly(t *testing.T) {
	got := mergeSQL(exposureTable, exposureTable.stage(), "feature_id", []string{"feature_id"})
	assert.Equal(t, `INSERT INTO "gis"."exposure" ("feature_id") SELECT "feature_id" FROM "stage_exposure" ON CONFLICT ("feature_id") DO NOTHING`, got)
}
