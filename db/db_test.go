//
// Copyright 2021-present Sonatype Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sonatype-nexus-community/clam/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertSqlToDbMockExpect(t *testing.T) {
	// sanity check all the cases we've found so far
	assert.Equal(t, `\$\(\)\*`, ConvertSqlToDbMockExpect(`$()*`))
}

const mockCLAVersion = "2.0"

func mockSignatory() types.Signatory {
	return types.Signatory{
		Login:      "alice",
		CLAVersion: mockCLAVersion,
		FullName:   "Alice Liddell",
		Email:      "alice@example.com",
		Address:    "1 Rabbit Hole\r\nWonderland",
		Telephone:  "555-0100",
		TimeSigned: time.Now(),
	}
}

func TestInsertSignatureError(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	s := mockSignatory()
	forcedError := errors.New("forced SQL insert error")
	mock.ExpectExec(ConvertSqlToDbMockExpect(sqlInsertSignature)).
		WithArgs(s.Login, s.CLAVersion, s.FullName, s.Email, "1 Rabbit Hole\nWonderland", s.Telephone, AnyTime{}).
		WillReturnError(forcedError)

	err := db.InsertSignature(context.Background(), &s)
	assert.ErrorIs(t, err, forcedError)
	assert.False(t, errors.Is(err, ErrDuplicateSignature))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSignatureRowsAffectedError(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	s := mockSignatory()
	forcedError := errors.New("forced rows affected error")
	mock.ExpectExec(ConvertSqlToDbMockExpect(sqlInsertSignature)).
		WillReturnResult(sqlmock.NewErrorResult(forcedError))

	assert.ErrorIs(t, db.InsertSignature(context.Background(), &s), forcedError)
}

func TestInsertSignatureErrorDuplicateSignature(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	s := mockSignatory()
	mock.ExpectExec(ConvertSqlToDbMockExpect(sqlInsertSignature)).
		WithArgs(s.Login, s.CLAVersion, s.FullName, s.Email, "1 Rabbit Hole\nWonderland", s.Telephone, AnyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.InsertSignature(context.Background(), &s)
	assert.ErrorIs(t, err, ErrDuplicateSignature)
	assert.EqualError(t, err, fmt.Sprintf("insert error. user: alice, error: %s", ErrDuplicateSignature))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSignature(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	s := mockSignatory()
	mock.ExpectExec(ConvertSqlToDbMockExpect(sqlInsertSignature)).
		WithArgs(s.Login, s.CLAVersion, s.FullName, s.Email, "1 Rabbit Hole\nWonderland", s.Telephone, AnyTime{}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, db.InsertSignature(context.Background(), &s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasSignedQueryError(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	forcedError := errors.New("forced SQL query error")
	mock.ExpectQuery(ConvertSqlToDbMockExpect(sqlSelectHasSigned)).
		WithArgs("alice").
		WillReturnError(forcedError)

	hasSigned, err := db.HasSigned(context.Background(), "alice")
	assert.EqualError(t, err, forcedError.Error())
	assert.False(t, hasSigned)
}

func TestHasSigned(t *testing.T) {
	for _, signed := range []bool{true, false} {
		t.Run(fmt.Sprintf("signed=%t", signed), func(t *testing.T) {
			mock, db, closeDbFunc := SetupMockDB(t)
			defer closeDbFunc()

			mock.ExpectQuery(ConvertSqlToDbMockExpect(sqlSelectHasSigned)).
				WithArgs("Alice").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(signed))

			hasSigned, err := db.HasSigned(context.Background(), "Alice")
			assert.NoError(t, err)
			assert.Equal(t, signed, hasSigned)
		})
	}
}

func TestGetSignatureNotFound(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	mock.ExpectQuery(ConvertSqlToDbMockExpect(sqlSelectSignature)).
		WithArgs("bob").
		WillReturnRows(NewSignatoryRows())

	found, err := db.GetSignature(context.Background(), "bob")
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestGetSignatureReadRowError(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	mock.ExpectQuery(ConvertSqlToDbMockExpect(sqlSelectSignature)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(signatoryColumns).
			FromCSVString(`alice,2.0,Alice,alice@example.com,here,555,INVALID_TIME_VALUE_TO_CAUSE_ROW_READ_ERROR`))

	found, err := db.GetSignature(context.Background(), "alice")
	assert.EqualError(t, err, "sql: Scan error on column index 6, name \"signed_at\": unsupported Scan, storing driver.Value type []uint8 into type *time.Time")
	assert.Nil(t, found)
}

func TestGetSignature(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	s := mockSignatory()
	mock.ExpectQuery(ConvertSqlToDbMockExpect(sqlSelectSignature)).
		WithArgs("alice").
		WillReturnRows(NewSignatoryRows(s))

	found, err := db.GetSignature(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, s, *found)
}

func TestListSignatures(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	alice := mockSignatory()
	bob := mockSignatory()
	bob.Login = "bob"
	mock.ExpectQuery(ConvertSqlToDbMockExpect(sqlSelectAllSignatures)).
		WillReturnRows(NewSignatoryRows(alice, bob))

	found, err := db.ListSignatures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Signatory{alice, bob}, found)
}

func TestListSignaturesEmpty(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	mock.ExpectQuery(ConvertSqlToDbMockExpect(sqlSelectAllSignatures)).
		WillReturnRows(NewSignatoryRows())

	found, err := db.ListSignatures(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)
}

func TestListSignaturesQueryError(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	forcedError := errors.New("forced list error")
	mock.ExpectQuery(ConvertSqlToDbMockExpect(sqlSelectAllSignatures)).
		WillReturnError(forcedError)

	_, err := db.ListSignatures(context.Background())
	assert.EqualError(t, err, forcedError.Error())
}

// exclude parent 'db' directory for tests
const testMigrateSourceURL = "file://migrations"

func TestMigrateDBErrorPostgresWithInstance(t *testing.T) {
	_, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	assert.Error(t, db.MigrateDB(testMigrateSourceURL))
}

func setupMockPostgresWithInstance(mock sqlmock.Sqlmock) (args []driver.Value) {
	// mocks for 'postgres.WithInstance()'
	mock.ExpectQuery(`SELECT CURRENT_DATABASE()`).
		WillReturnRows(sqlmock.NewRows([]string{"col1"}).FromCSVString("theDatabaseName"))
	mock.ExpectQuery(`SELECT CURRENT_SCHEMA()`).
		WillReturnRows(sqlmock.NewRows([]string{"col1"}).FromCSVString("theDatabaseSchema"))

	args = []driver.Value{"1560208929"}
	mock.ExpectExec(ConvertSqlToDbMockExpect(`SELECT pg_advisory_lock($1)`)).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(ConvertSqlToDbMockExpect(`SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2 LIMIT 1`)).
		WithArgs("theDatabaseSchema", "schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"theCount"}).AddRow(0))

	mock.ExpectExec(ConvertSqlToDbMockExpect(`CREATE TABLE IF NOT EXISTS "theDatabaseSchema"."schema_migrations" (version bigint not null primary key, dirty boolean not null)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec(ConvertSqlToDbMockExpect(`SELECT pg_advisory_unlock($1)`)).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 0))
	return
}

func TestMigrateDBErrorMigrateUp(t *testing.T) {
	mock, db, closeDbFunc := SetupMockDB(t)
	defer closeDbFunc()

	args := setupMockPostgresWithInstance(mock)

	assert.EqualError(t, db.MigrateDB(testMigrateSourceURL), fmt.Sprintf("try lock failed in line 0: SELECT pg_advisory_lock($1) (details: all expectations were already fulfilled, call to ExecQuery 'SELECT pg_advisory_lock($1)' with args [{Name: Ordinal:1 Value:%s}] was not expected)", args[0]))
}
