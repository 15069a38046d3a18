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

//go:build go1.16
// +build go1.16

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sonatype-nexus-community/clam/types"
)

// ErrDuplicateSignature is returned when the login already has a signature on record.
var ErrDuplicateSignature = errors.New("signature already exists")

const sqlInsertSignature = `INSERT INTO signatories
		(login_name, cla_version, full_name, email, address, telephone, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`

const msgTemplateErrInsertSignature = "insert error. user: %s, error: %w"

type IClaDB interface {
	InsertSignature(ctx context.Context, s *types.Signatory) error
	HasSigned(ctx context.Context, login string) (bool, error)
	GetSignature(ctx context.Context, login string) (*types.Signatory, error)
	ListSignatures(ctx context.Context) ([]types.Signatory, error)
	MigrateDB(migrateSourceURL string) error
}

type ClaDB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Roll that beautiful bean footage
var _ IClaDB = (*ClaDB)(nil)

func New(db *sql.DB, logger *zap.Logger) *ClaDB {
	return &ClaDB{db: db, logger: logger}
}

// InsertSignature records a new signature. An existing record for the same login is never
// overwritten; ErrDuplicateSignature is returned instead.
func (p *ClaDB) InsertSignature(ctx context.Context, s *types.Signatory) error {
	address := strings.ReplaceAll(s.Address, "\r", "")
	result, err := p.db.ExecContext(ctx, sqlInsertSignature,
		s.Login, s.CLAVersion, s.FullName, s.Email, address, s.Telephone, s.TimeSigned)
	if err != nil {
		return fmt.Errorf(msgTemplateErrInsertSignature, s.Login, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf(msgTemplateErrInsertSignature, s.Login, err)
	}
	if rowsAffected == 0 {
		p.logger.Debug("duplicate signature rejected", zap.String("login", s.Login))
		return fmt.Errorf(msgTemplateErrInsertSignature, s.Login, ErrDuplicateSignature)
	}
	return nil
}

const sqlSelectHasSigned = `SELECT EXISTS(
		SELECT 1 FROM signatories WHERE lower(login_name) = lower($1))`

func (p *ClaDB) HasSigned(ctx context.Context, login string) (isSigned bool, err error) {
	p.logger.Debug("did author sign the CLA", zap.String("login", login))

	err = p.db.QueryRowContext(ctx, sqlSelectHasSigned, login).Scan(&isSigned)
	return
}

const sqlSelectSignature = `SELECT 
		login_name, cla_version, full_name, email, address, telephone, signed_at 
		FROM signatories
		WHERE lower(login_name) = lower($1)`

// GetSignature returns nil and no error when the login has not signed.
func (p *ClaDB) GetSignature(ctx context.Context, login string) (found *types.Signatory, err error) {
	row := p.db.QueryRowContext(ctx, sqlSelectSignature, login)
	s := types.Signatory{}
	err = row.Scan(&s.Login, &s.CLAVersion, &s.FullName, &s.Email, &s.Address, &s.Telephone, &s.TimeSigned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.logger.Debug("found author signature",
		zap.String("login", s.Login),
		zap.Time("timeSigned", s.TimeSigned),
		zap.String("claVersion", s.CLAVersion),
	)
	return &s, nil
}

const sqlSelectAllSignatures = `SELECT 
		login_name, cla_version, full_name, email, address, telephone, signed_at 
		FROM signatories
		ORDER BY lower(login_name)`

func (p *ClaDB) ListSignatures(ctx context.Context) (signatures []types.Signatory, err error) {
	rows, err := p.db.QueryContext(ctx, sqlSelectAllSignatures)
	if err != nil {
		return
	}
	defer func() {
		_ = rows.Close()
	}()

	signatures = []types.Signatory{}
	for rows.Next() {
		s := types.Signatory{}
		if err = rows.Scan(&s.Login, &s.CLAVersion, &s.FullName, &s.Email, &s.Address, &s.Telephone, &s.TimeSigned); err != nil {
			return
		}
		signatures = append(signatures, s)
	}
	err = rows.Err()
	return
}

func (p *ClaDB) MigrateDB(migrateSourceURL string) (err error) {
	driver, err := postgres.WithInstance(p.db, &postgres.Config{})
	if err != nil {
		return
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrateSourceURL,
		"postgres", driver)
	if err != nil {
		return
	}

	if err = m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			// we can ignore (and clear) the "no change" error
			err = nil
		}
	}
	return
}
