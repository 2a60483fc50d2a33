package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"agroforward/internal/canonical"
	"agroforward/internal/config"
	"agroforward/internal/models"
	"agroforward/internal/repository"
)

// Uploader pins canonical bytes to a content-addressed store and returns the
// content reference and a gateway URL for it.
type Uploader interface {
	PinJSON(ctx context.Context, name string, keyvalues map[string]string, content []byte) (cid, url string, err error)
}

// ArtifactPublisher is the asynchronous side of acceptance: it uploads the
// canonical document to the content-addressed store and records the
// reference. It runs decoupled from the request that triggered it — a failed
// or slow upload is recorded as FAILED on the contract and retried, never
// surfaced to the accept caller, and never allowed to touch the contract's
// status column.
type ArtifactPublisher struct {
	Repo     repository.Repository
	Uploader Uploader
	Logger   *zap.Logger
	Config   config.PublisherConfig

	queue chan string
	once  sync.Once
}

func (p *ArtifactPublisher) init() {
	p.once.Do(func() {
		size := p.Config.QueueSize
		if size <= 0 {
			size = 64
		}
		p.queue = make(chan string, size)
	})
}

// Enqueue hands a contract id to the workers without blocking. A full queue
// is not an error: the periodic scan picks up anything still marked PENDING.
func (p *ArtifactPublisher) Enqueue(contractID string) {
	if p == nil {
		return
	}
	p.init()
	select {
	case p.queue <- contractID:
	default:
		if p.Logger != nil {
			p.Logger.Warn("publish queue full, deferring to rescan", zap.String("contract_id", contractID))
		}
	}
}

// Run starts the worker pool and the periodic scan for due contracts
// (PENDING, or FAILED below the attempt cap). Blocks until ctx is done.
func (p *ArtifactPublisher) Run(ctx context.Context) error {
	if p == nil || p.Repo == nil {
		return nil
	}
	p.init()

	workers := p.Config.Workers
	if workers <= 0 {
		workers = 2
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-p.queue:
					p.publishWithTimeout(ctx, id)
				}
			}
		}()
	}

	interval := p.Config.ScanInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.scanOnce(ctx); err != nil && p.Logger != nil {
			p.Logger.Warn("publish scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *ArtifactPublisher) scanOnce(ctx context.Context) error {
	due, err := p.Repo.ListPublishDue(ctx, p.Config.MaxAttempts, cap(p.queue))
	if err != nil {
		return err
	}
	for _, item := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.Enqueue(item.ID)
	}
	return nil
}

func (p *ArtifactPublisher) publishWithTimeout(ctx context.Context, id string) {
	timeout := p.Config.TaskTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Publish(taskCtx, id); err != nil && p.Logger != nil {
		p.Logger.Warn("artifact publish failed", zap.String("contract_id", id), zap.Error(err))
	}
}

// Publish uploads the canonical document for one contract. Uploading
// identical bytes to a content-addressed store yields the same reference, so
// re-invocation after any number of failures is safe.
func (p *ArtifactPublisher) Publish(ctx context.Context, contractID string) error {
	if p == nil || p.Repo == nil {
		return nil
	}
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return fmt.Errorf("%w: contract id is required", ErrValidation)
	}

	item, err := p.Repo.GetContractByID(ctx, contractID)
	if err != nil {
		return fmt.Errorf("%w: load contract: %v", ErrDependency, err)
	}
	if item == nil {
		return fmt.Errorf("%w: contract %s", ErrNotFound, contractID)
	}
	if item.Status != models.StatusAccepted {
		return fmt.Errorf("%w: contract is %s, only accepted contracts are published", ErrConflict, item.Status)
	}
	if item.ArtifactStatus == models.ArtifactPublished {
		return nil
	}
	if p.Uploader == nil {
		return p.fail(ctx, contractID, "no uploader configured")
	}

	payload, err := canonical.Marshal(item)
	if err != nil {
		return p.fail(ctx, contractID, fmt.Sprintf("canonicalize: %v", err))
	}

	keyvalues := map[string]string{
		"contractId": item.ID,
		"crop":       item.Crop,
		"type":       item.Kind,
	}

	attempts := uint(p.Config.MaxAttempts)
	if attempts == 0 {
		attempts = 3
	}
	backoff := p.Config.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var cid, url string
	err = retry.Do(
		func() error {
			var uploadErr error
			cid, url, uploadErr = p.Uploader.PinJSON(ctx, "Contract-"+item.ID, keyvalues, payload)
			return uploadErr
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return p.fail(ctx, contractID, err.Error())
	}

	if err := p.Repo.MarkArtifactPublished(ctx, contractID, cid, url); err != nil {
		return fmt.Errorf("%w: record artifact reference: %v", ErrDependency, err)
	}
	if p.Logger != nil {
		p.Logger.Info("artifact published",
			zap.String("contract_id", contractID),
			zap.String("cid", cid),
		)
	}
	return nil
}

func (p *ArtifactPublisher) fail(ctx context.Context, contractID, reason string) error {
	if err := p.Repo.MarkArtifactFailed(ctx, contractID, reason); err != nil && p.Logger != nil {
		p.Logger.Error("failed to record publish failure", zap.String("contract_id", contractID), zap.Error(err))
	}
	return fmt.Errorf("publish %s: %s", contractID, reason)
}
