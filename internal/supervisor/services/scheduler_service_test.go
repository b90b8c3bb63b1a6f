// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/cratedig/internal/candidates"
	"github.com/tomtom215/cratedig/internal/config"
	"github.com/tomtom215/cratedig/internal/ingest"
)

type fakeLister struct {
	users []string
	err   error
}

func (f *fakeLister) Users(_ context.Context) ([]string, error) {
	return f.users, f.err
}

type fakeIngestor struct {
	mu    sync.Mutex
	users []string
	fail  map[string]error
}

func (f *fakeIngestor) ImportUser(_ context.Context, userID string) (*ingest.Result, error) {
	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()
	if err := f.fail[userID]; err != nil {
		return nil, err
	}
	return &ingest.Result{UserID: userID, PlaysStored: 1}, nil
}

type fakeRunner struct {
	mu    sync.Mutex
	users []string
	fail  map[string]error
	ran   chan string
}

func (f *fakeRunner) RunUser(_ context.Context, userID string) (*candidates.RunSummary, error) {
	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()
	if f.ran != nil {
		f.ran <- userID
	}
	if err := f.fail[userID]; err != nil {
		return nil, err
	}
	return &candidates.RunSummary{UserID: userID, RunID: "run-" + userID}, nil
}

func (f *fakeRunner) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.users))
	copy(out, f.users)
	sort.Strings(out)
	return out
}

func schedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:         true,
		Interval:        time.Hour,
		UserConcurrency: 2,
		RunTimeout:      time.Minute,
	}
}

func TestSchedulerRunsAllUsersOnStart(t *testing.T) {
	runner := &fakeRunner{ran: make(chan string, 4)}
	svc := NewSchedulerService(
		&fakeLister{users: []string{"alice", "bob"}},
		nil,
		runner,
		schedulerConfig(),
		config.IngestConfig{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Serve(ctx)
		close(done)
	}()

	for range 2 {
		select {
		case <-runner.ran:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler never ran all users")
		}
	}
	cancel()
	<-done

	want := []string{"alice", "bob"}
	got := runner.seen()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("ran users %v, want %v", got, want)
	}
}

func TestSchedulerMergesConfiguredAndStoredUsers(t *testing.T) {
	svc := NewSchedulerService(
		&fakeLister{users: []string{"bob", "carol"}},
		&fakeIngestor{},
		&fakeRunner{},
		schedulerConfig(),
		config.IngestConfig{Enabled: true, Users: []string{"alice", "bob"}},
	)

	users, err := svc.collectUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(users) != 3 || users[0] != want[0] || users[1] != want[1] || users[2] != want[2] {
		t.Errorf("collectUsers = %v, want %v", users, want)
	}
}

func TestSchedulerIngestFailureStillGenerates(t *testing.T) {
	ingestor := &fakeIngestor{fail: map[string]error{"alice": errors.New("api down")}}
	runner := &fakeRunner{}
	svc := NewSchedulerService(
		&fakeLister{},
		ingestor,
		runner,
		schedulerConfig(),
		config.IngestConfig{Enabled: true, Users: []string{"alice"}},
	)

	svc.runCycle(context.Background())

	if got := runner.seen(); len(got) != 1 || got[0] != "alice" {
		t.Errorf("runner saw %v, want [alice]", got)
	}
}

func TestSchedulerUserFailureIsolated(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"alice": errors.New("boom")}}
	svc := NewSchedulerService(
		&fakeLister{users: []string{"alice", "bob"}},
		nil,
		runner,
		schedulerConfig(),
		config.IngestConfig{},
	)

	svc.runCycle(context.Background())

	got := runner.seen()
	if len(got) != 2 {
		t.Errorf("runner saw %v, want both users despite alice failing", got)
	}
}

func TestSchedulerListerFailureSkipsCycle(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewSchedulerService(
		&fakeLister{err: errors.New("db gone")},
		nil,
		runner,
		schedulerConfig(),
		config.IngestConfig{},
	)

	svc.runCycle(context.Background())

	if got := runner.seen(); len(got) != 0 {
		t.Errorf("runner saw %v, want no runs", got)
	}
}
