package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *BanList {
	t.Helper()
	l, err := OpenBanList(filepath.Join(t.TempDir(), "ban.sqlite"))
	if err != nil {
		t.Fatalf("OpenBanList failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestBanLifecycle(t *testing.T) {
	l := openTemp(t)
	now := time.Now()

	if err := l.Add("10.0.0.5", "flooding", 0); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	banned, reason, err := l.IsBanned("10.0.0.5", now)
	if err != nil || !banned || reason != "flooding" {
		t.Errorf("IsBanned = (%v, %q, %v), want (true, flooding, nil)", banned, reason, err)
	}

	banned, _, err = l.IsBanned("10.0.0.6", now)
	if err != nil || banned {
		t.Errorf("unlisted address: IsBanned = (%v, %v)", banned, err)
	}

	if err := l.Remove("10.0.0.5"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if banned, _, _ := l.IsBanned("10.0.0.5", now); banned {
		t.Error("address still banned after Remove")
	}
}

func TestBanExpiry(t *testing.T) {
	l := openTemp(t)

	if err := l.Add("192.168.1.9", "cooldown", time.Hour); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := l.Add("192.168.1.10", "permanent", 0); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	later := time.Now().Add(2 * time.Hour)
	if banned, _, _ := l.IsBanned("192.168.1.9", later); banned {
		t.Error("expired ban still active")
	}
	if banned, _, _ := l.IsBanned("192.168.1.10", later); !banned {
		t.Error("permanent ban lifted")
	}

	n, err := l.Prune(later)
	if err != nil || n != 1 {
		t.Errorf("Prune = (%d, %v), want (1, nil)", n, err)
	}

	list, err := l.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Addr != "192.168.1.10" || !list[0].Expires.IsZero() {
		t.Errorf("List = %+v", list)
	}
}

func TestBanRejectsBadAddress(t *testing.T) {
	l := openTemp(t)
	if err := l.Add("not-an-ip", "x", 0); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("err = %v, want ErrInvalidAddress", err)
	}
}
