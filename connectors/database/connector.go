// Copyright 2025 CloudDeck
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package database implements the SQL handshake connector backing both the
// relational-db family (user-configured servers) and the device-db family
// (the database service of a mounted device). A probe opens a short-lived
// connection, pings, and lists the reachable databases.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver

	"clouddeck/hub/connectors/base"
)

// Connector probes PostgreSQL and MySQL servers.
type Connector struct {
	family base.Family
	logger *log.Logger
	// open is swapped for a sqlmock opener in tests.
	open func(driverName, dsn string) (*sql.DB, error)
}

// New creates a database connector for the given family (relational-db or
// device-db).
func New(family base.Family) *Connector {
	return &Connector{
		family: family,
		logger: log.New(os.Stdout, "[DATABASE] ", log.LstdFlags),
		open:   sql.Open,
	}
}

// Family returns the handled integration family.
func (c *Connector) Family() base.Family {
	return c.family
}

// Validate checks that every connection field is present and well-formed
// before any handshake is attempted.
func (c *Connector) Validate(creds *base.Credentials) error {
	if creds == nil || creds.Database == nil {
		return base.NewValidationError(c.family, "database", "database credentials are required")
	}
	return base.ValidateStruct(c.family, creds.Database)
}

// Probe opens a connection, pings the server and lists its databases.
func (c *Connector) Probe(ctx context.Context, creds *base.Credentials) (*base.ProbeResult, error) {
	if err := c.Validate(creds); err != nil {
		return nil, err
	}

	dbCreds := creds.Database
	driver, dsn, listQuery := dialect(dbCreds)

	ctx, cancel := context.WithTimeout(ctx, base.ProbeTimeout)
	defer cancel()

	db, err := c.open(driver, dsn)
	if err != nil {
		return nil, base.NewConnectorError(c.family, "Probe", base.KindValidation, "invalid connection settings", err)
	}
	defer func() { _ = db.Close() }()

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Minute)

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return nil, classifyHandshake(c.family, err)
	}

	rows, err := db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, classifyHandshake(c.family, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]base.Item, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, base.NewConnectorError(c.family, "Probe", base.KindUpstream, "failed to scan database list", err)
		}
		items = append(items, base.Item{Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyHandshake(c.family, err)
	}
	latency := time.Since(start)

	result := &base.ProbeResult{
		Items:     items,
		ItemCount: len(items),
		Message:   fmt.Sprintf("%d database(s) found", len(items)),
		Latency:   latency,
	}
	if len(items) == 0 {
		result.NoItems = true
		result.Message = "connected, no databases visible"
	}

	c.logger.Printf("Probed %s://%s:%d: %s (%v)", dbCreds.Type, dbCreds.Host, dbCreds.Port, result.Message, latency)
	return result, nil
}

// dialect returns the driver name, DSN and database-list statement for the
// configured server type. Validate has already pinned Type to a known value.
func dialect(creds *base.DatabaseCredentials) (driver, dsn, listQuery string) {
	switch creds.Type {
	case "mysql":
		return "mysql",
			fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=10s",
				creds.Username, creds.Password, creds.Host, creds.Port, creds.Database),
			"SHOW DATABASES"
	default:
		return "postgres",
			fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=prefer connect_timeout=10",
				creds.Host, creds.Port, creds.Username, creds.Password, creds.Database),
			"SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname"
	}
}

// classifyHandshake maps driver errors to the closed taxonomy. Driver
// packages expose auth failures only as message text, so the match is on
// the well-known phrases.
func classifyHandshake(family base.Family, err error) *base.ConnectorError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "password authentication failed"),
		strings.Contains(msg, "Access denied"):
		return base.NewConnectorError(family, "Probe", base.KindUnauthorized, "credentials rejected by server", err)
	case strings.Contains(msg, "permission denied"):
		return base.NewConnectorError(family, "Probe", base.KindForbidden, "access denied by server", err)
	default:
		return base.FromTransport(family, "Probe", err)
	}
}
