//
// Copyright 2015 Gregory Trubetskoy. All Rights Reserved.
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

package http

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kineticmon/kinetic/misc"
	"github.com/kineticmon/kinetic/monitor"
	"github.com/kineticmon/kinetic/rrd"
)

// Default series range.
const defaultFrom = "-1d"

func MonitorStatsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "monitorID")
		if err != nil {
			writeError(w, "MonitorStatsHandler", err)
			return
		}
		st, err := svc.Stats(r.Context(), id)
		if err != nil {
			writeError(w, "MonitorStatsHandler", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// MonitorClearHandler resets the running statistics.
func MonitorClearHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "monitorID")
		if err != nil {
			writeError(w, "MonitorClearHandler", err)
			return
		}
		if err := svc.ClearStats(r.Context(), id, now()); err != nil {
			writeError(w, "MonitorClearHandler", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MonitorDeleteHandler removes the statistics and the time series.
func MonitorDeleteHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "monitorID")
		if err != nil {
			writeError(w, "MonitorDeleteHandler", err)
			return
		}
		if err := svc.DeleteMonitor(r.Context(), id); err != nil {
			writeError(w, "MonitorDeleteHandler", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MonitorSeriesHandler returns Graphite style datapoints, i.e.
// [value, unix timestamp] pairs, unknown values are null.
func MonitorSeriesHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id, err := pathID(r, "monitorID")
		if err != nil {
			writeError(w, "MonitorSeriesHandler", err)
			return
		}

		cf := rrd.AVERAGE
		if s := r.FormValue("cf"); s != "" {
			if cf, err = rrd.ParseConsolidation(s); err != nil {
				writeError(w, "MonitorSeriesHandler", &monitor.ValidationError{What: "cf", Err: err})
				return
			}
		}

		t := now()
		fromStr := r.FormValue("from")
		if fromStr == "" {
			fromStr = defaultFrom
		}
		from, err := misc.ParseTime(fromStr, t)
		if err != nil {
			writeError(w, "MonitorSeriesHandler", &monitor.ValidationError{What: "from", Err: err})
			return
		}
		until := t
		if s := r.FormValue("until"); s != "" {
			if until, err = misc.ParseTime(s, t); err != nil {
				writeError(w, "MonitorSeriesHandler", &monitor.ValidationError{What: "until", Err: err})
				return
			}
		}

		points, err := svc.Series(r.Context(), id, mux.Vars(r)["channel"], cf, from, until)
		if err != nil {
			writeError(w, "MonitorSeriesHandler", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "[")
		for n, p := range points {
			if n > 0 {
				fmt.Fprintf(w, ",")
			}
			if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
				fmt.Fprintf(w, "[null, %v]", p.Time.Unix())
			} else {
				fmt.Fprintf(w, "[%v, %v]", p.Value, p.Time.Unix())
			}
		}
		fmt.Fprintf(w, "]\n")

		log.Printf("MonitorSeriesHandler: %d points in %v", len(points), time.Now().Sub(start))
	}
}

// DownHandler returns the monitors that are down.
func DownHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.DownReport(r.Context(), now())
		if err != nil {
			writeError(w, "DownHandler", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
