package storage

import (
	"errors"
	"testing"
	"time"
)

func TestSaveDevice_Nil(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveDevice(nil); err == nil {
		t.Error("SaveDevice(nil) expected error, got nil")
	}
}

// TestSaveDevice_PreservesFirstSeen verifies that re-saving a known device
// refreshes name, platform, and last_seen but keeps the original first_seen.
func TestSaveDevice_PreservesFirstSeen(t *testing.T) {
	store := newTestStore(t)

	first := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	if err := store.SaveDevice(&Device{
		ID: "dev-1", Name: "Phone", Platform: "android",
		FirstSeen: first, LastSeen: first,
	}); err != nil {
		t.Fatalf("SaveDevice() error: %v", err)
	}

	// Same device reconnects later with a new name.
	if err := store.SaveDevice(&Device{
		ID: "dev-1", Name: "Renamed Phone", Platform: "android",
		FirstSeen: later, LastSeen: later,
	}); err != nil {
		t.Fatalf("SaveDevice() second error: %v", err)
	}

	dev, err := store.GetDevice("dev-1")
	if err != nil {
		t.Fatalf("GetDevice() error: %v", err)
	}
	if dev == nil {
		t.Fatal("GetDevice() returned nil for saved device")
	}
	if dev.Name != "Renamed Phone" {
		t.Errorf("Name = %q, want updated name", dev.Name)
	}
	if !dev.FirstSeen.Equal(first) {
		t.Errorf("FirstSeen = %v, want original %v", dev.FirstSeen, first)
	}
	if !dev.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want refreshed %v", dev.LastSeen, later)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	store := newTestStore(t)

	dev, err := store.GetDevice("missing")
	if err != nil {
		t.Fatalf("GetDevice() error: %v", err)
	}
	if dev != nil {
		t.Errorf("GetDevice(missing) = %+v, want nil", dev)
	}
}

// TestListDevices_RecencyOrder verifies devices come back most recently
// seen first.
func TestListDevices_RecencyOrder(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "newer", "newest"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		if err := store.SaveDevice(&Device{
			ID: id, Name: id, Platform: "android",
			FirstSeen: ts, LastSeen: ts,
		}); err != nil {
			t.Fatalf("SaveDevice(%s) error: %v", id, err)
		}
	}

	devices, err := store.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices() error: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("ListDevices() returned %d devices, want 3", len(devices))
	}

	want := []string{"newest", "newer", "old"}
	for i, id := range want {
		if devices[i].ID != id {
			t.Errorf("devices[%d].ID = %q, want %q", i, devices[i].ID, id)
		}
	}
}

func TestDeleteDevice_Idempotent(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	if err := store.SaveDevice(&Device{
		ID: "dev-1", Name: "Phone", Platform: "android",
		FirstSeen: now, LastSeen: now,
	}); err != nil {
		t.Fatalf("SaveDevice() error: %v", err)
	}

	if err := store.DeleteDevice("dev-1"); err != nil {
		t.Fatalf("DeleteDevice() error: %v", err)
	}
	// Deleting again is a no-op, not an error.
	if err := store.DeleteDevice("dev-1"); err != nil {
		t.Fatalf("second DeleteDevice() error: %v", err)
	}

	dev, err := store.GetDevice("dev-1")
	if err != nil {
		t.Fatalf("GetDevice() error: %v", err)
	}
	if dev != nil {
		t.Errorf("GetDevice after delete = %+v, want nil", dev)
	}
}

func TestUpdateLastSeen(t *testing.T) {
	store := newTestStore(t)

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := store.SaveDevice(&Device{
		ID: "dev-1", Name: "Phone", Platform: "android",
		FirstSeen: first, LastSeen: first,
	}); err != nil {
		t.Fatalf("SaveDevice() error: %v", err)
	}

	later := first.Add(3 * time.Hour)
	if err := store.UpdateLastSeen("dev-1", later); err != nil {
		t.Fatalf("UpdateLastSeen() error: %v", err)
	}

	dev, err := store.GetDevice("dev-1")
	if err != nil {
		t.Fatalf("GetDevice() error: %v", err)
	}
	if !dev.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", dev.LastSeen, later)
	}
	if !dev.FirstSeen.Equal(first) {
		t.Errorf("FirstSeen = %v, want unchanged %v", dev.FirstSeen, first)
	}
}

func TestUpdateLastSeen_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateLastSeen("missing", time.Now())
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateLastSeen(missing) error = %v, want ErrDeviceNotFound", err)
	}
}
