package tasks

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/productdb/eoxsync/app/cache"
)

func TestBroker_RoundTrip(t *testing.T) {
	store := cache.NewMemory()
	broker := NewBroker(store)

	sent := []Request{
		{ID: "a", Type: TaskTypeManualSync, Force: true, LockHeld: true},
		{ID: "b", Type: TaskTypeInitialImport, Years: []int{2018, 2017}, LockHeld: true},
	}
	for _, req := range sent {
		if err := broker.Dispatch(context.Background(), req); err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received []Request
	broker.Consume(ctx, func(req Request) {
		received = append(received, req)
		if len(received) == len(sent) {
			cancel()
		}
	})

	if !reflect.DeepEqual(received, sent) {
		t.Errorf("Expected %+v, got %+v", sent, received)
	}
}

func TestBroker_SkipsMalformedPayload(t *testing.T) {
	store := cache.NewMemory()
	broker := NewBroker(store)

	store.Push(context.Background(), BrokerQueueKey, "not json")
	broker.Dispatch(context.Background(), Request{ID: "ok", Type: TaskTypePeriodicSync})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ids []string
	broker.Consume(ctx, func(req Request) {
		ids = append(ids, req.ID)
		cancel()
	})

	if len(ids) != 1 || ids[0] != "ok" {
		t.Errorf("Expected only the valid request, got %v", ids)
	}
}
