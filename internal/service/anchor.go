package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"agroforward/internal/canonical"
	"agroforward/internal/config"
	"agroforward/internal/models"
	"agroforward/internal/repository"
)

type VerificationRecord struct {
	ContractID     string `json:"contractId"`
	DocumentHash   string `json:"documentHash"`
	TxHash         string `json:"txHash"`
	ExplorerURL    string `json:"explorerUrl"`
	ArtifactCID    string `json:"artifactCid,omitempty"`
	ArtifactURL    string `json:"artifactUrl,omitempty"`
	ArtifactStatus string `json:"artifactStatus,omitempty"`
}

// AnchorService computes and persists the reproducible verification record
// for a contract. Anchor is idempotent: re-running it on unchanged content
// returns bit-identical hash, tx id and explorer URL, and the persisted write
// is a no-op. A missing or failed artifact upload never changes the result.
type AnchorService struct {
	Repo      repository.Repository
	Publisher Enqueuer
	Logger    *zap.Logger
	Config    config.AnchorConfig
}

func (s *AnchorService) Anchor(ctx context.Context, contractID string) (*VerificationRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("%w: anchor service not configured", ErrDependency)
	}
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return nil, fmt.Errorf("%w: contract id is required", ErrValidation)
	}

	item, err := s.Repo.GetContractByID(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("%w: load contract: %v", ErrDependency, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: contract %s", ErrNotFound, contractID)
	}
	if item.Status == models.StatusCreated {
		return nil, fmt.Errorf("%w: contract not yet accepted, nothing to anchor", ErrConflict)
	}

	payload, err := canonical.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("canonicalize contract %s: %w", contractID, err)
	}
	documentHash := canonical.Hash(payload)
	txHash := canonical.TxHash(documentHash)
	explorerURL := canonical.ExplorerURL(s.Config.ExplorerBase, txHash)

	if err := s.Repo.SaveVerification(ctx, contractID, documentHash, txHash, explorerURL, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("%w: save verification: %v", ErrDependency, err)
	}

	// Kick the artifact pipeline if the document is not published yet. The
	// outcome has no bearing on this call's result.
	if s.Publisher != nil && item.Status == models.StatusAccepted && item.ArtifactStatus != models.ArtifactPublished {
		s.Publisher.Enqueue(contractID)
	}

	if s.Logger != nil {
		s.Logger.Info("contract anchored",
			zap.String("contract_id", contractID),
			zap.String("document_hash", documentHash),
		)
	}

	return &VerificationRecord{
		ContractID:     contractID,
		DocumentHash:   documentHash,
		TxHash:         txHash,
		ExplorerURL:    explorerURL,
		ArtifactCID:    item.ArtifactCID,
		ArtifactURL:    item.ArtifactURL,
		ArtifactStatus: item.ArtifactStatus,
	}, nil
}
