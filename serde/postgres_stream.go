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
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kineticmon/kinetic/rrd"
	"github.com/kineticmon/kinetic/stats"
	"github.com/lib/pq"
)

func (p *pgSerDe) FetchState(ctx context.Context, monitorID uuid.UUID) (*stats.State, error) {
	var (
		st                              stats.State
		lastDown, lastUpdate, lastClear pq.NullTime
	)
	err := p.sqlState.QueryRowContext(ctx, monitorID).Scan(
		&st.Sample, &st.CurrentLoss, &st.CurrentMedian, &st.CurrentMin, &st.CurrentMax, &st.CurrentStdDev,
		&st.AvgLoss, &st.AvgMedian, &st.AvgMin, &st.AvgMax, &st.AvgStdDev,
		&st.PrevLoss, &lastDown, &st.TotalDown, &lastUpdate, &lastClear)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		log.Printf("FetchState(): error scanning row: %v", err)
		return nil, err
	}
	st.LastDown, st.LastUpdate, st.LastClear = timeOf(lastDown), timeOf(lastUpdate), timeOf(lastClear)
	return &st, nil
}

func stateArgs(monitorID uuid.UUID, st *stats.State) []interface{} {
	return []interface{}{monitorID,
		st.Sample, st.CurrentLoss, st.CurrentMedian, st.CurrentMin, st.CurrentMax, st.CurrentStdDev,
		st.AvgLoss, st.AvgMedian, st.AvgMin, st.AvgMax, st.AvgStdDev,
		st.PrevLoss, nullTime(st.LastDown), st.TotalDown, nullTime(st.LastUpdate), nullTime(st.LastClear)}
}

func (p *pgSerDe) SaveState(ctx context.Context, monitorID uuid.UUID, st *stats.State) error {
	_, err := p.sqlSaveState.ExecContext(ctx, stateArgs(monitorID, st)...)
	return err
}

type rraKey struct {
	channel string
	n       int
}

type rraRecord struct {
	latest, pdpBegin pq.NullTime
	value            float64
	durationMs       int64
	dps              map[int64]float64
}

// FetchStream loads a stream with all its archives and rows.
func (p *pgSerDe) FetchStream(ctx context.Context, key string) (*rrd.Stream, error) {
	var (
		stepMs     int64
		channels   []string
		lastUpdate pq.NullTime
	)
	err := p.sqlStream.QueryRowContext(ctx, key).Scan(&stepMs, pq.Array(&channels), &lastUpdate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		log.Printf("FetchStream(): error scanning stream row: %v", err)
		return nil, err
	}

	rows, err := p.sqlRRAs.QueryContext(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		specs []rrd.RRASpec
		recs  = make(map[rraKey]*rraRecord)
	)
	for rows.Next() {
		var (
			channel, cfName string
			n               int
			steps, size     int64
			xff             float32
			rec             = &rraRecord{dps: make(map[int64]float64)}
		)
		if err := rows.Scan(&channel, &n, &cfName, &steps, &size, &xff, &rec.value, &rec.durationMs, &rec.pdpBegin, &rec.latest); err != nil {
			log.Printf("FetchStream(): error scanning rra row: %v", err)
			return nil, err
		}
		cf, err := rrd.ParseConsolidation(cfName)
		if err != nil {
			return nil, err
		}
		// All channels have the same RRAs, take the specs from the first one.
		if len(channels) > 0 && channel == channels[0] {
			specs = append(specs, rrd.RRASpec{Function: cf, Steps: steps, Size: size, Xff: xff})
		}
		recs[rraKey{channel, n}] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	dpRows, err := p.sqlDPs.QueryContext(ctx, key)
	if err != nil {
		return nil, err
	}
	defer dpRows.Close()
	for dpRows.Next() {
		var (
			channel string
			n       int
			slot    int64
			value   float64
		)
		if err := dpRows.Scan(&channel, &n, &slot, &value); err != nil {
			log.Printf("FetchStream(): error scanning dp row: %v", err)
			return nil, err
		}
		if rec := recs[rraKey{channel, n}]; rec != nil {
			rec.dps[slot] = value
		}
	}
	if err := dpRows.Err(); err != nil {
		return nil, err
	}

	s := rrd.NewStream(&rrd.StreamSpec{
		Step:       time.Duration(stepMs) * time.Millisecond,
		Channels:   channels,
		RRAs:       specs,
		LastUpdate: timeOf(lastUpdate),
	})
	for _, ds := range s.DataSources() {
		for n, rra := range ds.RRAs() {
			rec := recs[rraKey{ds.Name(), n}]
			if rec == nil {
				return nil, fmt.Errorf("stream %s: missing rra %d of channel %q", key, n, ds.Name())
			}
			rra.SetState(timeOf(rec.latest), timeOf(rec.pdpBegin), rec.value,
				time.Duration(rec.durationMs)*time.Millisecond, rec.dps)
		}
	}
	return s, nil
}

// SaveVolley saves the state and the stream change in one transaction.
func (p *pgSerDe) SaveVolley(ctx context.Context, monitorID uuid.UUID, key string, st *stats.State, s *rrd.Stream, c *rrd.Change, replace bool) (err error) {
	tx, err := p.dbConn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.StmtContext(ctx, p.sqlSaveState).ExecContext(ctx, stateArgs(monitorID, st)...); err != nil {
		return err
	}

	if replace {
		if err = p.deleteStream(ctx, tx, key); err != nil {
			return err
		}
	}

	if s != nil && c != nil {
		if err = p.saveChange(ctx, tx, monitorID, key, s, c); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *pgSerDe) saveChange(ctx context.Context, tx *sql.Tx, monitorID uuid.UUID, key string, s *rrd.Stream, c *rrd.Change) error {
	if _, err := tx.StmtContext(ctx, p.sqlSaveStream).ExecContext(ctx,
		key, monitorID, s.Step().Milliseconds(), pq.Array(s.Channels()), c.Slot()); err != nil {
		return err
	}

	saveRRA := tx.StmtContext(ctx, p.sqlSaveRRA)
	saveDP := tx.StmtContext(ctx, p.sqlSaveDP)
	deleteDP := tx.StmtContext(ctx, p.sqlDeleteDP)

	for _, a := range c.Archives() {
		if _, err := saveRRA.ExecContext(ctx, key, a.Channel, a.Index, a.Spec.Function.String(),
			a.Spec.Steps, a.Spec.Size, a.Spec.Xff, a.Value, a.Duration.Milliseconds(),
			nullTime(a.PdpBegin), nullTime(a.Latest)); err != nil {
			return err
		}
		for _, row := range a.Rows {
			var err error
			if math.IsNaN(row.Value) {
				_, err = deleteDP.ExecContext(ctx, key, a.Channel, a.Index, row.Slot)
			} else {
				_, err = saveDP.ExecContext(ctx, key, a.Channel, a.Index, row.Slot, row.Value)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *pgSerDe) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.dbConn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *pgSerDe) deleteStream(ctx context.Context, tx *sql.Tx, key string) error {
	for _, stmt := range []*sql.Stmt{p.sqlDelStreamDPs, p.sqlDelStreamRRAs, p.sqlDelStream} {
		if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (p *pgSerDe) DeleteMonitorData(ctx context.Context, monitorID uuid.UUID) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []*sql.Stmt{p.sqlDelMonDPs, p.sqlDelMonRRAs, p.sqlDelMonStreams, p.sqlDelMonState} {
			if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, monitorID); err != nil {
				return err
			}
		}
		return nil
	})
}
