package export

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestCopyExposure_Replace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "gis"."exposure"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE "gis"."exposure"`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "exposure"}, postgisColumns).WillReturnResult(3)
	mock.ExpectCommit()

	n, err := CopyExposure(context.Background(), mock, testDataset(t), PostGISOptions{Schema: "gis", Table: "exposure"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyExposure_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "exposure"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_exposure"}, postgisColumns).WillReturnResult(3)
	mock.ExpectExec(`ON CONFLICT \("feature_id"\)`).WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCommit()

	n, err := CopyExposure(context.Background(), mock, testDataset(t), PostGISOptions{Table: "exposure", Mode: PostGISUpsert})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyExposure_QualifiedTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "gis"."exposure"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE "gis"."exposure"`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"gis", "exposure"}, postgisColumns).WillReturnResult(3)
	mock.ExpectCommit()

	_, err = CopyExposure(context.Background(), mock, testDataset(t), PostGISOptions{Table: "gis.exposure"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyExposure_CreateFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyExposure(context.Background(), mock, testDataset(t), PostGISOptions{Schema: "gis", Table: "exposure"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create gis.exposure")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyExposure_Validation(t *testing.T) {
	_, err := CopyExposure(context.Background(), nil, testDataset(t), PostGISOptions{})
	assert.Error(t, err)
}

func TestExposureRows(t *testing.T) {
	rows, err := exposureRows(testDataset(t), 3400)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Len(t, rows[0], len(postgisColumns))

	assert.JSONEq(t, `{"LICENCE":"00123","LENGTH":1.5}`, string(rows[0][1].([]byte)))

	g, err := ewkb.Unmarshal(rows[0][2].([]byte))
	require.NoError(t, err)
	assert.Equal(t, 3400, g.SRID())
	assert.Equal(t, int16(1), rows[0][7])
	assert.Nil(t, rows[2][3].(*float64))
}

func TestEncodeEWKB(t *testing.T) {
	data, err := EncodeEWKB(nil, 4326)
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = EncodeEWKB(geom.NewGeometryCollection(), 4326)
	assert.Error(t, err)

	pt := geom.NewPointFlat(geom.XY, []float64{1, 2})
	data, err = EncodeEWKB(pt, 3347)
	require.NoError(t, err)
	assert.Equal(t, 0, pt.SRID(), "input geometry is not modified")

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, 3347, g.SRID())
}
