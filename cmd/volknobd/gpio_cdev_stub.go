//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
)

// The GPIO character device only exists on Linux. On other platforms the
// cdev driver is a configuration error; use the periph driver instead.

type cdevWatcher struct{}

func newCdevWatcher(chip string, pins map[Channel]int, logger *slog.Logger) (*cdevWatcher, error) {
	return nil, errors.New("gpio driver \"cdev\" requires linux")
}

func (w *cdevWatcher) Run(ctx context.Context, edges chan<- rawEdge) {}

func (w *cdevWatcher) Close() error { return nil }
