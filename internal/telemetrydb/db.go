// Package telemetrydb persists session telemetry to sqlite: one row per
// capture session, interval packet statistics, and sampled joint state.
// Schema changes go through golang-migrate files under migrations/.
package telemetrydb

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/candela-robotics/teleop.live/internal/ingest"
	"github.com/candela-robotics/teleop.live/internal/joints"
	"github.com/candela-robotics/teleop.live/internal/monitoring"
)

type DB struct {
	*sql.DB
	sessionID string
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

// StartSession inserts a session row and remembers its id for subsequent
// telemetry writes.
func (db *DB) StartSession(lidarAddr string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, lidar_addr) VALUES (?, ?)`,
		id, lidarAddr,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session row: %w", err)
	}
	db.sessionID = id
	return id, nil
}

// SessionID returns the active session id, empty before StartSession.
func (db *DB) SessionID() string {
	return db.sessionID
}

// RecordPacketStats persists one reporting interval's LiDAR counters.
func (db *DB) RecordPacketStats(snap ingest.StatsSnapshot) error {
	_, err := db.Exec(
		`INSERT INTO packet_stats (
			session_id, packets, bytes, points, decode_failures,
			missed_estimate, duration_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		db.sessionID, snap.Packets, snap.Bytes, snap.Points,
		snap.DecodeFailures, snap.MissedEstimate, snap.Duration.Seconds(),
	)
	return err
}

// RecordJointSample persists one joint-state sample. Missing and failed
// joints store NULL angles; the per-joint statuses are kept as a
// comma-joined string for ad-hoc queries.
func (db *DB) RecordJointSample(sample joints.Sample) error {
	args := make([]interface{}, 0, joints.JointCount+3)
	args = append(args, db.sessionID, sample.Timestamp.UnixMilli())
	for i := 0; i < joints.JointCount; i++ {
		if sample.Angles[i] == nil {
			args = append(args, nil)
		} else {
			args = append(args, *sample.Angles[i])
		}
	}
	args = append(args, statusList(sample.Status))

	_, err := db.Exec(
		`INSERT INTO joint_samples (
			session_id, sampled_at_ms,
			base, shoulder, elbow, wrist_pitch, wrist_roll, gripper,
			statuses
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	return err
}

func statusList(status [joints.JointCount]joints.JointStatus) string {
	out := ""
	for i, s := range status {
		if i > 0 {
			out += ","
		}
		out += s.String()
	}
	return out
}

// PacketStatsRow is one persisted reporting interval.
type PacketStatsRow struct {
	SessionID       string
	Packets         int64
	Bytes           int64
	Points          int64
	DecodeFailures  int64
	MissedEstimate  int64
	DurationSeconds float64
}

// RecentPacketStats returns the newest persisted intervals, newest first.
func (db *DB) RecentPacketStats(limit int) ([]PacketStatsRow, error) {
	rows, err := db.Query(
		`SELECT session_id, packets, bytes, points, decode_failures,
			missed_estimate, duration_seconds
		 FROM packet_stats ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PacketStatsRow
	for rows.Next() {
		var r PacketStatsRow
		if err := rows.Scan(
			&r.SessionID, &r.Packets, &r.Bytes, &r.Points,
			&r.DecodeFailures, &r.MissedEstimate, &r.DurationSeconds,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// JointSampleCount returns the number of persisted joint samples for the
// active session.
func (db *DB) JointSampleCount() (int64, error) {
	var n int64
	err := db.QueryRow(
		`SELECT COUNT(*) FROM joint_samples WHERE session_id = ?`,
		db.sessionID,
	).Scan(&n)
	return n, err
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://telemetry.db", db.DB, &tailsql.DBOptions{
		Label: "Telemetry DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("failed to remove backup file: %v", err)
			}
		}()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))

	return nil
}
