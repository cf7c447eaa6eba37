//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
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

package serde

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/lib/pq"
)

type pgSerDe struct {
	dbConn *sql.DB
	prefix string

	sqlAgent, sqlTarget, sqlMonitor, sqlAgentMonitors, sqlMonitors, sqlTouch *sql.Stmt

	sqlState, sqlSaveState, sqlStream, sqlRRAs, sqlDPs *sql.Stmt
	sqlSaveStream, sqlSaveRRA, sqlSaveDP, sqlDeleteDP               *sql.Stmt
	sqlDelStreamDPs, sqlDelStreamRRAs, sqlDelStream                 *sql.Stmt
	sqlDelMonDPs, sqlDelMonRRAs, sqlDelMonStreams, sqlDelMonState   *sql.Stmt
}

var sqlOpen = func(driver, connect string) (*sql.DB, error) {
	return sql.Open(driver, connect)
}

// InitDb connects to PostgreSQL, creates the tables if necessary and
// prepares the statements.
func InitDb(connectString, prefix string) (SerDe, error) {
	dbConn, err := sqlOpen("postgres", connectString)
	if err != nil {
		return nil, err
	}
	p := &pgSerDe{dbConn: dbConn, prefix: prefix}
	if err := p.dbConn.Ping(); err != nil {
		return nil, err
	}
	if err := p.createTablesIfNotExist(); err != nil {
		return nil, err
	}
	if err := p.prepareSqlStatements(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pgSerDe) Close() error {
	return p.dbConn.Close()
}

const monitorCols = "id, agent_id, target_id, protocol, port, dscp, pollcount, pollinterval, active"

const stateCols = "sample, current_loss, current_median, current_min, current_max, current_stddev, " +
	"avg_loss, avg_median, avg_min, avg_max, avg_stddev, prev_loss, last_down, total_down, last_update, last_clear"

func (p *pgSerDe) prepareSqlStatements() error {
	var err error
	prepare := func(stmt **sql.Stmt, query string) {
		if err != nil {
			return
		}
		*stmt, err = p.dbConn.Prepare(fmt.Sprintf(query, p.prefix))
	}

	prepare(&p.sqlAgent, "SELECT id, name, active FROM %[1]sagent WHERE id = $1")
	prepare(&p.sqlTarget, "SELECT id, name, address FROM %[1]starget WHERE id = $1")
	prepare(&p.sqlMonitor, "SELECT "+monitorCols+" FROM %[1]smonitor WHERE id = $1")
	prepare(&p.sqlAgentMonitors, "SELECT "+monitorCols+" FROM %[1]smonitor WHERE agent_id = $1 ORDER BY id")
	prepare(&p.sqlMonitors, "SELECT "+monitorCols+" FROM %[1]smonitor ORDER BY id")
	prepare(&p.sqlTouch, "UPDATE %[1]sagent SET address = $1, last_seen = $2 WHERE id = $3")

	prepare(&p.sqlState, "SELECT "+stateCols+" FROM %[1]sstats WHERE monitor_id = $1")
	prepare(&p.sqlSaveState, "INSERT INTO %[1]sstats (monitor_id, "+stateCols+") "+
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17) "+
		"ON CONFLICT (monitor_id) DO UPDATE SET "+
		"sample = $2, current_loss = $3, current_median = $4, current_min = $5, current_max = $6, current_stddev = $7, "+
		"avg_loss = $8, avg_median = $9, avg_min = $10, avg_max = $11, avg_stddev = $12, "+
		"prev_loss = $13, last_down = $14, total_down = $15, last_update = $16, last_clear = $17")

	prepare(&p.sqlStream, "SELECT step_ms, channels, lastupdate FROM %[1]sstream WHERE key = $1")
	prepare(&p.sqlRRAs, "SELECT channel, n, cf, steps_per_row, size, xff, value, duration_ms, pdp_begin, latest "+
		"FROM %[1]srra WHERE stream_key = $1 ORDER BY channel, n")
	prepare(&p.sqlDPs, "SELECT channel, n, slot, value FROM %[1]sdp WHERE stream_key = $1")
	prepare(&p.sqlSaveStream, "INSERT INTO %[1]sstream (key, monitor_id, step_ms, channels, lastupdate) "+
		"VALUES ($1, $2, $3, $4, $5) "+
		"ON CONFLICT (key) DO UPDATE SET monitor_id = $2, step_ms = $3, channels = $4, lastupdate = $5")
	prepare(&p.sqlSaveRRA, "INSERT INTO %[1]srra (stream_key, channel, n, cf, steps_per_row, size, xff, value, duration_ms, pdp_begin, latest) "+
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) "+
		"ON CONFLICT (stream_key, channel, n) DO UPDATE SET "+
		"cf = $4, steps_per_row = $5, size = $6, xff = $7, value = $8, duration_ms = $9, pdp_begin = $10, latest = $11")
	prepare(&p.sqlSaveDP, "INSERT INTO %[1]sdp (stream_key, channel, n, slot, value) VALUES ($1, $2, $3, $4, $5) "+
		"ON CONFLICT (stream_key, channel, n, slot) DO UPDATE SET value = $5")
	prepare(&p.sqlDeleteDP, "DELETE FROM %[1]sdp WHERE stream_key = $1 AND channel = $2 AND n = $3 AND slot = $4")

	prepare(&p.sqlDelStreamDPs, "DELETE FROM %[1]sdp WHERE stream_key = $1")
	prepare(&p.sqlDelStreamRRAs, "DELETE FROM %[1]srra WHERE stream_key = $1")
	prepare(&p.sqlDelStream, "DELETE FROM %[1]sstream WHERE key = $1")

	prepare(&p.sqlDelMonDPs, "DELETE FROM %[1]sdp WHERE stream_key IN (SELECT key FROM %[1]sstream WHERE monitor_id = $1)")
	prepare(&p.sqlDelMonRRAs, "DELETE FROM %[1]srra WHERE stream_key IN (SELECT key FROM %[1]sstream WHERE monitor_id = $1)")
	prepare(&p.sqlDelMonStreams, "DELETE FROM %[1]sstream WHERE monitor_id = $1")
	prepare(&p.sqlDelMonState, "DELETE FROM %[1]sstats WHERE monitor_id = $1")

	return err
}

func (p *pgSerDe) createTablesIfNotExist() error {
	create_sql := `
       CREATE TABLE IF NOT EXISTS %[1]sagent (
       id UUID NOT NULL PRIMARY KEY,
       name TEXT NOT NULL DEFAULT '',
       active BOOLEAN NOT NULL DEFAULT TRUE,
       address TEXT,
       last_seen TIMESTAMPTZ);

       CREATE TABLE IF NOT EXISTS %[1]starget (
       id UUID NOT NULL PRIMARY KEY,
       name TEXT NOT NULL DEFAULT '',
       address TEXT NOT NULL);

       CREATE TABLE IF NOT EXISTS %[1]smonitor (
       id UUID NOT NULL PRIMARY KEY,
       agent_id UUID NOT NULL,
       target_id UUID NOT NULL,
       protocol TEXT NOT NULL,
       port INT NOT NULL DEFAULT 0,
       dscp TEXT NOT NULL DEFAULT 'BE',
       pollcount INT NOT NULL,
       pollinterval INT NOT NULL,
       active BOOLEAN NOT NULL DEFAULT TRUE);

       CREATE TABLE IF NOT EXISTS %[1]sstats (
       monitor_id UUID NOT NULL PRIMARY KEY,
       sample BIGINT NOT NULL DEFAULT 0,
       current_loss INT NOT NULL DEFAULT 0,
       current_median DOUBLE PRECISION NOT NULL DEFAULT 0,
       current_min DOUBLE PRECISION NOT NULL DEFAULT 0,
       current_max DOUBLE PRECISION NOT NULL DEFAULT 0,
       current_stddev DOUBLE PRECISION NOT NULL DEFAULT 0,
       avg_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
       avg_median DOUBLE PRECISION NOT NULL DEFAULT 0,
       avg_min DOUBLE PRECISION NOT NULL DEFAULT 0,
       avg_max DOUBLE PRECISION NOT NULL DEFAULT 0,
       avg_stddev DOUBLE PRECISION NOT NULL DEFAULT 0,
       prev_loss INT NOT NULL DEFAULT 0,
       last_down TIMESTAMPTZ,
       total_down BIGINT NOT NULL DEFAULT 0,
       last_update TIMESTAMPTZ,
       last_clear TIMESTAMPTZ);

       CREATE TABLE IF NOT EXISTS %[1]sstream (
       key TEXT NOT NULL PRIMARY KEY,
       monitor_id UUID NOT NULL,
       step_ms BIGINT NOT NULL,
       channels TEXT[] NOT NULL,
       lastupdate TIMESTAMPTZ);

       CREATE TABLE IF NOT EXISTS %[1]srra (
       stream_key TEXT NOT NULL,
       channel TEXT NOT NULL,
       n INT NOT NULL,
       cf TEXT NOT NULL,
       steps_per_row INT NOT NULL,
       size INT NOT NULL,
       xff REAL NOT NULL,
       value DOUBLE PRECISION NOT NULL DEFAULT 'NaN',
       duration_ms BIGINT NOT NULL DEFAULT 0,
       pdp_begin TIMESTAMPTZ,
       latest TIMESTAMPTZ,
       PRIMARY KEY (stream_key, channel, n));

       CREATE TABLE IF NOT EXISTS %[1]sdp (
       stream_key TEXT NOT NULL,
       channel TEXT NOT NULL,
       n INT NOT NULL,
       slot BIGINT NOT NULL,
       value DOUBLE PRECISION NOT NULL,
       PRIMARY KEY (stream_key, channel, n, slot));
    `
	if rows, err := p.dbConn.Query(fmt.Sprintf(create_sql, p.prefix)); err != nil {
		log.Printf("ERROR: initial CREATE TABLE failed: %v", err)
		return err
	} else {
		rows.Close()
	}

	create_sql = `
       CREATE INDEX IF NOT EXISTS %[1]smonitor_agent_id ON %[1]smonitor (agent_id);
       CREATE INDEX IF NOT EXISTS %[1]sstream_monitor_id ON %[1]sstream (monitor_id);
    `
	if rows, err := p.dbConn.Query(fmt.Sprintf(create_sql, p.prefix)); err != nil {
		log.Printf("ERROR: initial CREATE INDEX failed: %v", err)
		return err
	} else {
		rows.Close()
	}
	return nil
}

func (p *pgSerDe) FetchAgent(ctx context.Context, id uuid.UUID) (*monitor.Agent, error) {
	var a monitor.Agent
	err := p.sqlAgent.QueryRowContext(ctx, id).Scan(&a.ID, &a.Name, &a.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *pgSerDe) FetchTarget(ctx context.Context, id uuid.UUID) (*monitor.Target, error) {
	var t monitor.Target
	err := p.sqlTarget.QueryRowContext(ctx, id).Scan(&t.ID, &t.Name, &t.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func monitorFromRow(row scanner) (*monitor.Monitor, error) {
	var (
		m     monitor.Monitor
		proto string
	)
	err := row.Scan(&m.ID, &m.AgentID, &m.TargetID, &proto, &m.Port, &m.DSCP, &m.PollCount, &m.PollInterval, &m.Active)
	if err != nil {
		return nil, err
	}
	m.Protocol = monitor.Protocol(proto)
	return &m, nil
}

func (p *pgSerDe) FetchMonitor(ctx context.Context, id uuid.UUID) (*monitor.Monitor, error) {
	m, err := monitorFromRow(p.sqlMonitor.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (p *pgSerDe) fetchMonitors(ctx context.Context, stmt *sql.Stmt, args ...interface{}) ([]*monitor.Monitor, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		log.Printf("fetchMonitors(): error querying database: %v", err)
		return nil, err
	}
	defer rows.Close()

	result := []*monitor.Monitor{}
	for rows.Next() {
		m, err := monitorFromRow(rows)
		if err != nil {
			log.Printf("fetchMonitors(): error scanning row: %v", err)
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (p *pgSerDe) FetchAgentMonitors(ctx context.Context, agentID uuid.UUID) ([]*monitor.Monitor, error) {
	return p.fetchMonitors(ctx, p.sqlAgentMonitors, agentID)
}

func (p *pgSerDe) FetchMonitors(ctx context.Context) ([]*monitor.Monitor, error) {
	return p.fetchMonitors(ctx, p.sqlMonitors)
}

func (p *pgSerDe) TouchAgent(ctx context.Context, id uuid.UUID, addr string, now time.Time) error {
	_, err := p.sqlTouch.ExecContext(ctx, addr, now, id)
	return err
}

func nullTime(t time.Time) pq.NullTime {
	return pq.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOf(nt pq.NullTime) time.Time {
	if nt.Valid {
		return nt.Time
	}
	return time.Time{}
}
