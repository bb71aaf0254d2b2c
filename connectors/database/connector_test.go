// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"clouddeck/hub/connectors/base"
)

func pgCreds() *base.Credentials {
	return &base.Credentials{Database: &base.DatabaseCredentials{
		Type:     "postgres",
		Host:     "db.local",
		Port:     5432,
		Username: "deck",
		Password: "secret",
		Database: "deck",
	}}
}

func mockedConnector(t *testing.T, family base.Family) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	conn := New(family)
	conn.open = func(driverName, dsn string) (*sql.DB, error) {
		return db, nil
	}
	return conn, mock
}

func TestProbe_ListsDatabases(t *testing.T) {
	conn, mock := mockedConnector(t, base.FamilyRelationalDB)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT datname FROM pg_database").
		WillReturnRows(sqlmock.NewRows([]string{"datname"}).AddRow("deck").AddRow("media"))
	mock.ExpectClose()

	result, err := conn.Probe(context.Background(), pgCreds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ItemCount != 2 {
		t.Errorf("expected 2 databases, got %d", result.ItemCount)
	}
	if result.Message != "2 database(s) found" {
		t.Errorf("unexpected message: %q", result.Message)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProbe_EmptyServer(t *testing.T) {
	conn, mock := mockedConnector(t, base.FamilyRelationalDB)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT datname FROM pg_database").
		WillReturnRows(sqlmock.NewRows([]string{"datname"}))
	mock.ExpectClose()

	result, err := conn.Probe(context.Background(), pgCreds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.NoItems {
		t.Error("expected no-items marker for an empty server")
	}
}

func TestProbe_AuthFailure(t *testing.T) {
	conn, mock := mockedConnector(t, base.FamilyRelationalDB)
	mock.ExpectPing().WillReturnError(errors.New(`pq: password authentication failed for user "deck"`))
	mock.ExpectClose()

	_, err := conn.Probe(context.Background(), pgCreds())
	var ce *base.ConnectorError
	if !errors.As(err, &ce) || ce.Kind != base.KindUnauthorized {
		t.Fatalf("expected unauthorized kind, got %v", err)
	}
}

func TestProbe_MySQLAccessDenied(t *testing.T) {
	conn, mock := mockedConnector(t, base.FamilyRelationalDB)
	mock.ExpectPing().WillReturnError(errors.New("Error 1045: Access denied for user 'deck'@'10.0.0.2'"))
	mock.ExpectClose()

	creds := pgCreds()
	creds.Database.Type = "mysql"
	creds.Database.Port = 3306

	_, err := conn.Probe(context.Background(), creds)
	var ce *base.ConnectorError
	if !errors.As(err, &ce) || ce.Kind != base.KindUnauthorized {
		t.Fatalf("expected unauthorized kind, got %v", err)
	}
}

func TestProbe_Unreachable(t *testing.T) {
	conn, mock := mockedConnector(t, base.FamilyDeviceDB)
	mock.ExpectPing().WillReturnError(errors.New("dial tcp 10.0.0.9:5432: connect: connection refused"))
	mock.ExpectClose()

	_, err := conn.Probe(context.Background(), pgCreds())
	var ce *base.ConnectorError
	if !errors.As(err, &ce) || ce.Kind != base.KindUnreachable {
		t.Fatalf("expected unreachable kind, got %v", err)
	}
}

func TestProbe_QueryFailure(t *testing.T) {
	conn, mock := mockedConnector(t, base.FamilyRelationalDB)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT datname FROM pg_database").
		WillReturnError(errors.New("pq: permission denied for table pg_database"))
	mock.ExpectClose()

	_, err := conn.Probe(context.Background(), pgCreds())
	var ce *base.ConnectorError
	if !errors.As(err, &ce) || ce.Kind != base.KindForbidden {
		t.Fatalf("expected forbidden kind, got %v", err)
	}
}

func TestValidate_FieldPresence(t *testing.T) {
	conn := New(base.FamilyRelationalDB)

	if err := conn.Validate(pgCreds()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	missingHost := pgCreds()
	missingHost.Database.Host = ""
	badPort := pgCreds()
	badPort.Database.Port = 0
	badType := pgCreds()
	badType.Database.Type = "oracle"

	for i, creds := range []*base.Credentials{nil, {}, missingHost, badPort, badType} {
		err := conn.Validate(creds)
		var ce *base.ConnectorError
		if !errors.As(err, &ce) || ce.Kind != base.KindValidation {
			t.Errorf("case %d: expected validation kind, got %v", i, err)
		}
	}
}

func TestDialect(t *testing.T) {
	driver, dsn, listQuery := dialect(pgCreds().Database)
	if driver != "postgres" {
		t.Errorf("expected postgres driver, got %s", driver)
	}
	if dsn == "" || listQuery == "" {
		t.Error("expected non-empty dsn and list query")
	}

	mysqlCreds := pgCreds().Database
	mysqlCreds.Type = "mysql"
	mysqlCreds.Port = 3306
	driver, dsn, listQuery = dialect(mysqlCreds)
	if driver != "mysql" {
		t.Errorf("expected mysql driver, got %s", driver)
	}
	if listQuery != "SHOW DATABASES" {
		t.Errorf("unexpected list query: %s", listQuery)
	}
	if dsn != "deck:secret@tcp(db.local:3306)/deck?timeout=10s" {
		t.Errorf("unexpected mysql dsn: %s", dsn)
	}
}
