// Package worker runs the command dispatch pipeline: a single FIFO task queue
// drained by N workers. Each task carries a one-shot completion channel the
// connection loop blocks on, so commands on one connection execute in issue
// order while connections progress in parallel.
package worker

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Result is a handler outcome. The status code never goes on the wire; the
// text is the reply the client sees.
type Result struct {
	Status int
	Text   string
}

// Handler executes one command against the engine.
type Handler func(args []string) (int, string)

type task struct {
	command string
	args    []string
	done    chan Result
}

// Pool owns the task queue and the worker goroutines.
type Pool struct {
	handlers map[string]Handler
	tasks    chan task
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	log zerolog.Logger
}

// New builds a pool over the dispatch table. workers must be at least 1.
func New(handlers map[string]Handler, workers int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		handlers: handlers,
		tasks:    make(chan task, 1024),
		log:      logger.With().Str("component", "worker").Logger(),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.done <- p.execute(t.command, t.args)
	}
}

// execute looks the command up and runs its handler. A panic in a handler is
// delivered as a 500 reply; it never tears down the worker.
func (p *Pool) execute(command string, args []string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("command", command).Interface("panic", r).Msg("handler panicked")
			res = Result{Status: 500, Text: fmt.Sprintf("-ERR worker exception: %v", r)}
		}
	}()

	handler, ok := p.handlers[command]
	if !ok {
		return Result{Status: 400, Text: fmt.Sprintf("-ERR unknown command '%s'", command)}
	}
	status, text := handler(args)
	return Result{Status: status, Text: text}
}

// Dispatch enqueues a task and returns its completion channel. The channel
// always receives exactly one result; submissions after shutdown are rejected
// with a 500 rather than dropped.
func (p *Pool) Dispatch(command string, args []string) <-chan Result {
	done := make(chan Result, 1)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		done <- Result{Status: 500, Text: "-ERR server is shutting down"}
		return done
	}
	p.tasks <- task{command: command, args: args, done: done}
	p.mu.Unlock()
	return done
}

// Shutdown stops intake, lets the workers drain every pending task, and
// returns when they have exited.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
