package storage

// devices.go contains Store methods for the device registry.
// A device is any remote that has successfully authenticated at least once.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

// Device represents a remote device known to this host.
type Device struct {
	ID        string
	Name      string
	Platform  string
	FirstSeen time.Time
	LastSeen  time.Time
}

// SaveDevice records a device sighting. New devices get first_seen = now;
// devices seen before keep their original first_seen and refresh name,
// platform, and last_seen.
func (s *Store) SaveDevice(device *Device) error {
	if device == nil {
		return errors.New("device cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: saving device %s (%s)", device.ID, device.Name)

	const query = `
		INSERT INTO devices (id, name, platform, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			platform = excluded.platform,
			last_seen = excluded.last_seen
	`

	_, err := s.db.Exec(query,
		device.ID,
		device.Name,
		device.Platform,
		device.FirstSeen.Format(time.RFC3339Nano),
		device.LastSeen.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save device: %w", err)
	}

	return nil
}

// GetDevice retrieves a device by ID.
// Returns nil, nil if the device does not exist.
func (s *Store) GetDevice(id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, name, platform, first_seen, last_seen
		FROM devices
		WHERE id = ?
	`

	device, err := scanDevice(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	return device, nil
}

// ListDevices returns all known devices, most recently seen first.
func (s *Store) ListDevices() ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, name, platform, first_seen, last_seen
		FROM devices
		ORDER BY last_seen DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := scanDeviceRows(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device rows: %w", err)
	}

	log.Printf("storage: listed %d devices", len(devices))
	return devices, nil
}

// DeleteDevice removes a device from the registry.
// Returns nil if the device does not exist (idempotent delete).
func (s *Store) DeleteDevice(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: deleting device %s", id)

	_, err := s.db.Exec("DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}

	return nil
}

// UpdateLastSeen refreshes the last_seen timestamp for a device.
// Returns ErrDeviceNotFound if the device does not exist.
func (s *Store) UpdateLastSeen(id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `UPDATE devices SET last_seen = ? WHERE id = ?`

	result, err := s.db.Exec(query, t.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// scanDevice scans a single row into a Device.
func scanDevice(row *sql.Row) (*Device, error) {
	var (
		device    Device
		firstSeen string
		lastSeen  string
	)

	err := row.Scan(
		&device.ID,
		&device.Name,
		&device.Platform,
		&firstSeen,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	return finishDevice(device, firstSeen, lastSeen)
}

// scanDeviceRows scans a row from sql.Rows into a Device.
func scanDeviceRows(rows *sql.Rows) (*Device, error) {
	var (
		device    Device
		firstSeen string
		lastSeen  string
	)

	err := rows.Scan(
		&device.ID,
		&device.Name,
		&device.Platform,
		&firstSeen,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	return finishDevice(device, firstSeen, lastSeen)
}

func finishDevice(device Device, firstSeen, lastSeen string) (*Device, error) {
	t, err := time.Parse(time.RFC3339Nano, firstSeen)
	if err != nil {
		return nil, fmt.Errorf("parse first_seen: %w", err)
	}
	device.FirstSeen = t

	t, err = time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	device.LastSeen = t

	return &device, nil
}
