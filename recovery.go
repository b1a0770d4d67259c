/*
Copyright 2024 Arbor Authors.

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

package arbor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arborhq/arbor/config"
	"github.com/arborhq/arbor/model"
)

// CascadeRecoveryProcessor periodically rescues delete operations that lost
// their worker: in-progress rows whose worker crashed past the stuck
// threshold, and pending rows whose queue task never arrived. Recovery is
// just re-enqueueing; the claim and the ledger checkpoint make the re-run
// safe.
type CascadeRecoveryProcessor struct {
	arbor          *Arbor
	batchSize      int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewCascadeRecoveryProcessor(arbor *Arbor) *CascadeRecoveryProcessor {
	pollInterval := 30 * time.Second
	stuckThreshold := 10 * time.Minute
	cfg, err := config.Fetch()
	if err == nil {
		pollInterval = cfg.CascadeDelete.RecoveryPollInterval()
		stuckThreshold = cfg.CascadeDelete.StuckThreshold()
	}

	return &CascadeRecoveryProcessor{
		arbor:          arbor,
		batchSize:      100,
		pollInterval:   pollInterval,
		stuckThreshold: stuckThreshold,
		stopCh:         make(chan struct{}),
	}
}

func (p *CascadeRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Cascade recovery processor started")
}

func (p *CascadeRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Cascade recovery processor stopped")
}

func (p *CascadeRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *CascadeRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Cascade recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Cascade recovery processor stop signal received")
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *CascadeRecoveryProcessor) processBatch(ctx context.Context) {
	p.recoverWithThreshold(ctx, p.stuckThreshold)
}

// RecoverDeleteOperations triggers an immediate recovery pass using the
// provided threshold. This is exposed for the manual trigger API endpoint.
func (a *Arbor) RecoverDeleteOperations(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold < 2*time.Minute {
		threshold = 2 * time.Minute
	}

	processor := NewCascadeRecoveryProcessor(a)
	return processor.recoverWithThreshold(ctx, threshold), nil
}

func (p *CascadeRecoveryProcessor) recoverWithThreshold(ctx context.Context, threshold time.Duration) int {
	recovered := 0

	stalled, err := p.arbor.datasource.GetStalledDeleteOperations(ctx, threshold, p.batchSize)
	if err != nil {
		logrus.Errorf("failed to get stalled delete operations: %v", err)
	} else {
		recovered += p.reEnqueue(ctx, stalled, "stalled")
	}

	// Pending rows older than the threshold mean the enqueue itself was
	// lost, most often because Redis was unavailable at initiation.
	pending, err := p.arbor.datasource.GetPendingDeleteOperations(ctx, threshold, p.batchSize)
	if err != nil {
		logrus.Errorf("failed to get dropped pending delete operations: %v", err)
	} else {
		recovered += p.reEnqueue(ctx, pending, "pending")
	}

	return recovered
}

func (p *CascadeRecoveryProcessor) reEnqueue(ctx context.Context, operations []*model.DeleteOperation, kind string) int {
	if len(operations) == 0 {
		return 0
	}

	logrus.Infof("Re-enqueueing %d %s delete operations (threshold=%v)", len(operations), kind, p.stuckThreshold)

	count := 0
	for _, op := range operations {
		err := p.arbor.queue.EnqueueDeleteOperation(ctx, DeleteOperationPayload{
			OperationID: op.OperationID,
			ContainerID: op.ContainerID,
		})
		if err != nil {
			logrus.Errorf("failed to re-enqueue delete operation %s: %v", op.OperationID, err)
			continue
		}
		count++
	}
	return count
}
