package app

import (
	"context"

	"github.com/chase3718/sonic-plants/internal/monitor"
	"github.com/chase3718/sonic-plants/internal/recorder"
)

// do runs fn on the loop goroutine and waits for it.
func (r *Runner) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status implements monitor.Controller.
func (r *Runner) Status(ctx context.Context) (monitor.Status, error) {
	var st monitor.Status
	if err := r.do(ctx, func() { st = r.status() }); err != nil {
		return monitor.Status{}, err
	}
	return st, nil
}

// SetMIDIEnabled implements monitor.Controller.
func (r *Runner) SetMIDIEnabled(ctx context.Context, on bool) (monitor.Status, error) {
	var st monitor.Status
	if err := r.do(ctx, func() {
		r.eng.SetMIDIEnabled(on)
		st = r.status()
	}); err != nil {
		return monitor.Status{}, err
	}
	return st, nil
}

// StartRecording implements monitor.Controller.
func (r *Runner) StartRecording(ctx context.Context, path string) (recorder.Session, error) {
	var (
		sess   recorder.Session
		recErr error
	)
	if err := r.do(ctx, func() { sess, recErr = r.rec.Start(path, r.now()) }); err != nil {
		return recorder.Session{}, err
	}
	return sess, recErr
}

// StopRecording implements monitor.Controller.
func (r *Runner) StopRecording(ctx context.Context) (recorder.Session, error) {
	var (
		sess   recorder.Session
		recErr error
	)
	if err := r.do(ctx, func() { sess, recErr = r.rec.Stop() }); err != nil {
		return recorder.Session{}, err
	}
	return sess, recErr
}

// History implements monitor.Controller.
func (r *Runner) History(ctx context.Context) ([]float64, error) {
	var h []float64
	if err := r.do(ctx, func() { h = r.disp.History() }); err != nil {
		return nil, err
	}
	return h, nil
}
