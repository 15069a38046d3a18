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
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sonatype-nexus-community/clam/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// SetupMockDB should always be followed by a call to the closeDbFunc, like so:
//
//	mock, db, closeDbFunc := SetupMockDB(t)
//	defer closeDbFunc()
func SetupMockDB(t *testing.T) (mock sqlmock.Sqlmock, mockDbIf *ClaDB, closeDbFunc func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	closeDbFunc = func() {
		_ = db.Close()
	}
	mockDbIf = New(db, zaptest.NewLogger(t))
	return
}

type AnyTime struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

var signatoryColumns = []string{"login_name", "cla_version", "full_name", "email", "address", "telephone", "signed_at"}

// NewSignatoryRows builds the rows a signatory select returns.
func NewSignatoryRows(signatories ...types.Signatory) *sqlmock.Rows {
	rows := sqlmock.NewRows(signatoryColumns)
	for _, s := range signatories {
		rows.AddRow(s.Login, s.CLAVersion, s.FullName, s.Email, s.Address, s.Telephone, s.TimeSigned)
	}
	return rows
}

var sqlMockEscapes = regexp.MustCompile(`([$()*])`)

// ConvertSqlToDbMockExpect takes a "real" sql string and adds escape characters as needed to produce a
// regex matching string for use with database mock expect calls.
func ConvertSqlToDbMockExpect(realSql string) string {
	return sqlMockEscapes.ReplaceAllString(realSql, `\$1`)
}
