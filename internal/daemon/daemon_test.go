package daemon_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"inkwell/internal/daemon"
	"inkwell/internal/testsupport"
)

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRedisAddr(mr.Addr()))

	first, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	t.Cleanup(first.Stop)

	second, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("second daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestDaemonStopIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRedisAddr(mr.Addr()))

	d, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected running daemon")
	}
	d.Stop()
	if d.Running() {
		t.Fatal("expected stopped daemon")
	}
	d.Stop()
}
