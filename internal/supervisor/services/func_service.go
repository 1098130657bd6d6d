// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package services

import "context"

// FuncService supervises a plain run function.
type FuncService struct {
	name string
	run  func(ctx context.Context) error
}

func NewFuncService(name string, run func(ctx context.Context) error) *FuncService {
	return &FuncService{name: name, run: run}
}

func (f *FuncService) Serve(ctx context.Context) error {
	return f.run(ctx)
}

func (f *FuncService) String() string {
	return f.name
}
