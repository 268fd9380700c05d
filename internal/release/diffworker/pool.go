/*
Copyright The CodePush Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package diffworker is a small bounded goroutine pool that runs diff-archive
// generation after a release commit, so the HTTP response for an upload
// does not wait on it; diff archives are a download optimization, never
// required for a commit/promote/rollback to succeed.
package diffworker

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/yplabs-ltd/codepush-server/internal/log"
)

// DefaultQueueSize is the bound on pending jobs before Submit drops work.
const DefaultQueueSize = 256

// Pool runs submitted jobs on a fixed number of goroutines, collecting
// every job error so Close can report what failed instead of discarding it.
type Pool struct {
	jobs chan func() error
	wg   sync.WaitGroup
	log  log.Logger

	mu   sync.Mutex
	errs *multierror.Error
}

// New starts a pool with the given number of workers and queue depth.
func New(workers, queueSize int, logger log.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = log.NopLogger{}
	}
	p := &Pool{
		jobs: make(chan func() error, queueSize),
		log:  logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.safeRun(job)
	}
}

func (p *Pool) safeRun(job func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("diffworker: job panicked", "recovered", r)
			p.recordErr(fmt.Errorf("diffworker: job panicked: %v", r))
		}
	}()
	if err := job(); err != nil {
		p.log.Warn("diffworker: job failed", "error", err.Error())
		p.recordErr(err)
	}
}

func (p *Pool) recordErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = multierror.Append(p.errs, err)
}

// Submit enqueues job. If the queue is full the job is dropped and logged;
// diff archives are a pure acceleration of future update checks, never a
// correctness requirement, so dropping one under load is safe.
func (p *Pool) Submit(job func() error) {
	select {
	case p.jobs <- job:
	default:
		p.log.Warn("diffworker: queue full, dropping diff job")
	}
}

// Close stops accepting new jobs, waits for in-flight ones to finish, and
// returns every job error seen, aggregated into one error.
func (p *Pool) Close() error {
	close(p.jobs)
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs.ErrorOrNil()
}
