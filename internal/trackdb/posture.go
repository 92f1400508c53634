package trackdb

import (
	"database/sql"
	"fmt"
	"math"
)

// Posture array layout: positions are time-major [T, 3, N] and directors
// [T, 3, 3, N], flattened row-major with the ring index innermost. T is
// the store's frame count and N its ring count. Entries that could not be
// reconstructed are NaN in memory and NULL on disk.

// PostureUnit annotates the stored posture arrays.
const PostureUnit = "m"

// SavePosture persists both posture arrays in one transaction: positions
// and directors are replaced together or not at all.
func (s *Store) SavePosture(positions, directors []float64) error {
	T, N := s.FrameCount, s.RingCount
	if len(positions) != T*3*N {
		return fmt.Errorf("save posture: positions length %d, want %d", len(positions), T*3*N)
	}
	if len(directors) != T*9*N {
		return fmt.Errorf("save posture: directors length %d, want %d", len(directors), T*9*N)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save posture: begin tx: %w", err)
	}

	for _, table := range []string{"posture_positions", "posture_directors"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			tx.Rollback()
			return fmt.Errorf("save posture: clear %s: %w", table, err)
		}
	}

	posStmt, err := tx.Prepare(`
		INSERT INTO posture_positions (frame, ring_index, x, y, z, unit)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save posture: prepare positions: %w", err)
	}
	defer posStmt.Close()

	dirStmt, err := tx.Prepare(`
		INSERT INTO posture_directors (frame, ring_index,
			d11, d12, d13, d21, d22, d23, d31, d32, d33, unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save posture: prepare directors: %w", err)
	}
	defer dirStmt.Close()

	for t := 0; t < T; t++ {
		for ring := 0; ring < N; ring++ {
			_, err := posStmt.Exec(t, ring,
				nullFloat(positions[(t*3+0)*N+ring]),
				nullFloat(positions[(t*3+1)*N+ring]),
				nullFloat(positions[(t*3+2)*N+ring]),
				PostureUnit,
			)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("save posture: position frame=%d ring=%d: %w", t, ring, err)
			}

			args := make([]interface{}, 0, 12)
			args = append(args, t, ring)
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					args = append(args, nullFloat(directors[(t*9+i*3+j)*N+ring]))
				}
			}
			args = append(args, PostureUnit)
			if _, err := dirStmt.Exec(args...); err != nil {
				tx.Rollback()
				return fmt.Errorf("save posture: director frame=%d ring=%d: %w", t, ring, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save posture: commit: %w", err)
	}
	return nil
}

// LoadPosture reads both posture arrays. ok is false when either array is
// absent, signalling the caller to recompute both: the arrays are a
// single derived artifact and never trusted independently.
func (s *Store) LoadPosture() (positions, directors []float64, ok bool, err error) {
	T, N := s.FrameCount, s.RingCount

	var posRows, dirRows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM posture_positions`).Scan(&posRows); err != nil {
		return nil, nil, false, fmt.Errorf("load posture: count positions: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM posture_directors`).Scan(&dirRows); err != nil {
		return nil, nil, false, fmt.Errorf("load posture: count directors: %w", err)
	}
	if posRows != T*N || dirRows != T*N {
		return nil, nil, false, nil
	}

	positions = nanFilled(T * 3 * N)
	directors = nanFilled(T * 9 * N)

	rows, err := s.db.Query(`SELECT frame, ring_index, x, y, z FROM posture_positions`)
	if err != nil {
		return nil, nil, false, fmt.Errorf("load posture: query positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t, ring int
		var x, y, z sql.NullFloat64
		if err := rows.Scan(&t, &ring, &x, &y, &z); err != nil {
			return nil, nil, false, fmt.Errorf("load posture: scan position: %w", err)
		}
		if t < 0 || t >= T || ring < 0 || ring >= N {
			continue
		}
		positions[(t*3+0)*N+ring] = floatOrNaN(x)
		positions[(t*3+1)*N+ring] = floatOrNaN(y)
		positions[(t*3+2)*N+ring] = floatOrNaN(z)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("load posture: iterate positions: %w", err)
	}

	dRows, err := s.db.Query(`
		SELECT frame, ring_index, d11, d12, d13, d21, d22, d23, d31, d32, d33
		FROM posture_directors`)
	if err != nil {
		return nil, nil, false, fmt.Errorf("load posture: query directors: %w", err)
	}
	defer dRows.Close()

	for dRows.Next() {
		var t, ring int
		var d [9]sql.NullFloat64
		if err := dRows.Scan(&t, &ring,
			&d[0], &d[1], &d[2], &d[3], &d[4], &d[5], &d[6], &d[7], &d[8]); err != nil {
			return nil, nil, false, fmt.Errorf("load posture: scan director: %w", err)
		}
		if t < 0 || t >= T || ring < 0 || ring >= N {
			continue
		}
		for k := 0; k < 9; k++ {
			directors[(t*9+k)*N+ring] = floatOrNaN(d[k])
		}
	}
	if err := dRows.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("load posture: iterate directors: %w", err)
	}

	return positions, directors, true, nil
}

func nanFilled(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func nullFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
