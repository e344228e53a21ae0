package inmemdb

import (
	"context"
	"sync"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
	"github.com/pogilapp/server/core/course"
	"github.com/pogilapp/server/core/user"
)

type (
	enrollment struct {
		courseID, studentID int
	}

	tables struct {
		users       map[int]user.User
		courses     map[int]course.Course
		enrollments map[enrollment]struct{}
		activities  map[int]activity.Activity
		instances   map[int]activity.Instance
		groups      map[int]activity.Group // members included
		heartbeats  map[[2]int]activity.Heartbeat
		pk          int
	}

	// DB is an in-memory stand-in for the relational store, used by tests and the offline CLI.
	DB struct {
		mu   sync.RWMutex
		txMu sync.Mutex
		t    tables
	}
)

func Open() *DB {
	return &DB{t: tables{
		users:       make(map[int]user.User),
		courses:     make(map[int]course.Course),
		enrollments: make(map[enrollment]struct{}),
		activities:  make(map[int]activity.Activity),
		instances:   make(map[int]activity.Instance),
		groups:      make(map[int]activity.Group),
		heartbeats:  make(map[[2]int]activity.Heartbeat),
	}}
}

// nextPK must be called with mu held.
func (db *DB) nextPK() int {
	db.t.pk++
	return db.t.pk
}

func (t tables) clone() tables {
	c := tables{
		users:       make(map[int]user.User, len(t.users)),
		courses:     make(map[int]course.Course, len(t.courses)),
		enrollments: make(map[enrollment]struct{}, len(t.enrollments)),
		activities:  make(map[int]activity.Activity, len(t.activities)),
		instances:   make(map[int]activity.Instance, len(t.instances)),
		groups:      make(map[int]activity.Group, len(t.groups)),
		heartbeats:  make(map[[2]int]activity.Heartbeat, len(t.heartbeats)),
		pk:          t.pk,
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.courses {
		c.courses[k] = v
	}
	for k, v := range t.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range t.activities {
		c.activities[k] = v
	}
	for k, v := range t.instances {
		c.instances[k] = v
	}
	for k, v := range t.groups {
		v.Members = append([]activity.Member(nil), v.Members...)
		c.groups[k] = v
	}
	for k, v := range t.heartbeats {
		c.heartbeats[k] = v
	}
	return c
}

type txRunner struct {
	db *DB
}

// NewTxRunner serializes transactions and restores a snapshot of every table when fn fails.
func NewTxRunner(db *DB) core.TxRunner {
	return &txRunner{db: db}
}

func (r *txRunner) RunInTx(_ context.Context, fn func(tx core.DBExecutor) error) (err error) {
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()

	r.db.mu.RLock()
	snapshot := r.db.t.clone()
	r.db.mu.RUnlock()

	defer func() {
		p := recover()
		if p != nil || err != nil {
			r.db.mu.Lock()
			r.db.t = snapshot
			r.db.mu.Unlock()
		}
		if p != nil {
			panic(p)
		}
	}()
	return fn(nil)
}
