package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snapmatch-ai/snapmatch/internal/db"
)

type mockKV struct {
	getFn    func(ctx context.Context, key string) ([]byte, error)
	incrByFn func(ctx context.Context, key string, val int64) error
	expireFn func(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKV) IncrBy(ctx context.Context, key string, val int64) error {
	if m.incrByFn != nil {
		return m.incrByFn(ctx, key, val)
	}
	return nil
}

func (m *mockKV) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	if m.expireFn != nil {
		return m.expireFn(ctx, key, ttl, nx)
	}
	return nil
}

func TestIncrBy_SetsTTLWithNX(t *testing.T) {
	kv := &mockKV{}
	var gotTTL time.Duration
	var gotNX bool
	kv.expireFn = func(_ context.Context, _ string, ttl time.Duration, nx bool) error {
		gotTTL = ttl
		gotNX = nx
		return nil
	}

	s := New(kv, 48*time.Hour, 62*24*time.Hour)
	err := s.IncrBy(context.Background(), "snapmatch:budget:vision:daily:2026-08-31", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTTL != 48*time.Hour {
		t.Errorf("expected daily TTL, got %v", gotTTL)
	}
	if !gotNX {
		t.Error("expected NX expire")
	}
}

func TestIncrBy_MonthlyTTL(t *testing.T) {
	kv := &mockKV{}
	var gotTTL time.Duration
	kv.expireFn = func(_ context.Context, _ string, ttl time.Duration, _ bool) error {
		gotTTL = ttl
		return nil
	}

	s := New(kv, 48*time.Hour, 62*24*time.Hour)
	err := s.IncrBy(context.Background(), "snapmatch:budget:vision:monthly:2026-08", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTTL != 62*24*time.Hour {
		t.Errorf("expected monthly TTL, got %v", gotTTL)
	}
}

func TestGet_MissingKeyIsZero(t *testing.T) {
	s := New(&mockKV{}, time.Hour, time.Hour)
	val, err := s.Get(context.Background(), "snapmatch:budget:vision:daily:2026-08-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 0 {
		t.Errorf("expected 0, got %d", val)
	}
}

func TestGet_ParsesValue(t *testing.T) {
	kv := &mockKV{
		getFn: func(context.Context, string) ([]byte, error) {
			return []byte("4200"), nil
		},
	}
	s := New(kv, time.Hour, time.Hour)
	val, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 4200 {
		t.Errorf("expected 4200, got %d", val)
	}
}

func TestGet_StoreError(t *testing.T) {
	kv := &mockKV{
		getFn: func(context.Context, string) ([]byte, error) {
			return nil, errors.New("connection refused")
		},
	}
	s := New(kv, time.Hour, time.Hour)
	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}
