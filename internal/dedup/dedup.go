// Package dedup records and answers duplicate verdicts between items.
//
// Detection only proposes candidates (status pending). A reviewer verifies
// or rejects them; the workflow honors verified decisions only.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/store"
)

// Service is the duplicate decision store.
type Service struct {
	store *store.Store
	fold  cases.Caser
}

// New creates a Service.
func New(s *store.Store) *Service {
	return &Service{store: s, fold: cases.Fold()}
}

// Signature reduces a title to its comparison form: NFC, case folded,
// letters and digits only, single spaces.
func (s *Service) Signature(title string) string {
	folded := s.fold.String(norm.NFC.String(title))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(words, " ")
}

// Record proposes that itemID duplicates duplicateID. An existing decision
// for the pair is left as it is.
func (s *Service) Record(ctx context.Context, itemID, duplicateID, dedupContext, note string) (bool, error) {
	existing, err := s.store.DedupDecisions(ctx, itemID, dedupContext, "")
	if err != nil {
		return false, err
	}
	for _, d := range existing {
		if d.DuplicateID == duplicateID {
			return false, nil
		}
	}
	err = s.store.WriteDedupDecision(ctx, model.DedupDecision{
		ItemID:      itemID,
		DuplicateID: duplicateID,
		Context:     dedupContext,
		Status:      model.DedupPending,
		Note:        note,
	})
	return err == nil, err
}

// Verify confirms the pair is a duplicate.
func (s *Service) Verify(ctx context.Context, itemID, duplicateID, dedupContext, note string) error {
	return s.setStatus(ctx, itemID, duplicateID, dedupContext, model.DedupVerified, note)
}

// Reject records that the pair is not a duplicate.
func (s *Service) Reject(ctx context.Context, itemID, duplicateID, dedupContext, note string) error {
	return s.setStatus(ctx, itemID, duplicateID, dedupContext, model.DedupRejected, note)
}

func (s *Service) setStatus(ctx context.Context, itemID, duplicateID, dedupContext string, status model.DedupStatus, note string) error {
	if itemID == duplicateID {
		return fmt.Errorf("dedup: item %s cannot duplicate itself", itemID)
	}
	return s.store.WriteDedupDecision(ctx, model.DedupDecision{
		ItemID:      itemID,
		DuplicateID: duplicateID,
		Context:     dedupContext,
		Status:      status,
		Note:        note,
	})
}

// Decisions returns every decision on itemID in context.
func (s *Service) Decisions(ctx context.Context, itemID, dedupContext string) ([]model.DedupDecision, error) {
	return s.store.DedupDecisions(ctx, itemID, dedupContext, "")
}

// VerifiedDecisions returns the verified decisions on itemID in context.
func (s *Service) VerifiedDecisions(ctx context.Context, itemID, dedupContext string) ([]model.DedupDecision, error) {
	return s.store.DedupDecisions(ctx, itemID, dedupContext, model.DedupVerified)
}

// Detect proposes every live archived item of the same type whose title
// signature matches it as a workflow duplicate candidate.
// Returns the newly recorded candidate ids.
func (s *Service) Detect(ctx context.Context, it *model.Item) ([]string, error) {
	sig := s.Signature(it.Title())
	if sig == "" {
		return []string{}, nil
	}

	items, err := s.store.ListItems(ctx, it.EntityType)
	if err != nil {
		return nil, fmt.Errorf("detect duplicates of %s: %w", it.ID, err)
	}

	found := []string{}
	for _, other := range items {
		if other.ID == it.ID || !other.Archived || other.Withdrawn {
			continue
		}
		if s.Signature(other.Title()) != sig {
			continue
		}
		recorded, err := s.Record(ctx, it.ID, other.ID, model.DedupContextWorkflow, "title match")
		if err != nil {
			return nil, fmt.Errorf("detect duplicates of %s: %w", it.ID, err)
		}
		if recorded {
			found = append(found, other.ID)
		}
	}

	if len(found) > 0 {
		slog.Info("duplicate candidates recorded",
			"item", it.ID,
			"candidates", found,
		)
	}
	return found, nil
}
