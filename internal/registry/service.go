package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"logbook/internal/store"
	"logbook/internal/token"
)

// ErrNotFound reports a delete against an identity that does not exist.
var ErrNotFound = errors.New("identity not found")

// ValidationError reports a missing or invalid registration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	DisplayName string `json:"display_name"`
	ExternalID  string `json:"external_id"`
	Affiliation string `json:"affiliation"`
	Contact     string `json:"contact"`
	Category    string `json:"category"`
}

// Registered is the outcome of a successful registration: the stored
// identity plus the encoded token string its artifact will render.
type Registered struct {
	Identity Identity `json:"identity"`
	Token    string   `json:"token"`
}

// Service guards and coordinates registry mutations.
type Service struct {
	db          *store.DB
	repo        *Repository
	artifactDir string
	logger      *zap.Logger
}

// NewService creates a service backed by a repository.
func NewService(db *store.DB, repo *Repository, artifactDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, repo: repo, artifactDir: artifactDir, logger: logger}
}

// Register validates the form, assigns the guest sentinel where it applies,
// and inserts the identity with its token artifact path already decided.
// The token image itself is rendered later by the worker.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Registered, error) {
	if in.DisplayName == "" {
		return Registered{}, &ValidationError{Field: "display_name", Reason: "required"}
	}
	if !KnownCategory(in.Category) {
		return Registered{}, &ValidationError{Field: "category", Reason: "must be Student, Teacher or Guest"}
	}
	if in.Contact == "" {
		return Registered{}, &ValidationError{Field: "contact", Reason: "required"}
	}

	if in.Category == CategoryGuest {
		in.ExternalID = GuestSentinel
		in.Affiliation = GuestSentinel
	} else {
		if in.ExternalID == "" {
			return Registered{}, &ValidationError{Field: "external_id", Reason: "required"}
		}
		if in.Affiliation == "" {
			return Registered{}, &ValidationError{Field: "affiliation", Reason: "required"}
		}
	}

	encoded := token.Encode(token.Data{
		DisplayName: in.DisplayName,
		ExternalID:  in.ExternalID,
		Affiliation: in.Affiliation,
		Category:    in.Category,
	})

	id := Identity{
		DisplayName: in.DisplayName,
		ExternalID:  in.ExternalID,
		Affiliation: in.Affiliation,
		Contact:     in.Contact,
		Category:    in.Category,
		TokenPath:   token.ArtifactPath(s.artifactDir),
	}

	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		if id.Category != CategoryGuest {
			exists, err := s.repo.ExistsExternalID(ctx, id.ExternalID)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateExternalID
			}
		}
		newID, err := s.repo.Insert(ctx, id)
		if err != nil {
			return err
		}
		id.ID = newID
		return nil
	})
	if err != nil {
		return Registered{}, err
	}

	fresh, err := s.repo.Get(ctx, id.ID)
	if err == nil && fresh != nil {
		id = *fresh
	}
	return Registered{Identity: id, Token: encoded}, nil
}

// Delete removes the identity and cascades over its visits in one
// transaction, then best-effort removes the token artifact. A failed file
// removal never fails the delete.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var artifactPath string
	err := s.db.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
		artifactPath = existing.TokenPath
		ok, err := s.repo.DeleteCascade(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := token.RemoveArtifact(artifactPath); err != nil {
		s.logger.Warn("token artifact removal failed",
			zap.Int64("identity_id", id),
			zap.String("path", artifactPath),
			zap.Error(err))
	}
	return nil
}

// ExistsExternalID answers the registration form's duplicate probe.
func (s *Service) ExistsExternalID(ctx context.Context, externalID string) (bool, error) {
	return s.repo.ExistsExternalID(ctx, externalID)
}

// ResetSequence exposes the maintenance counter rewrite.
func (s *Service) ResetSequence(ctx context.Context, table string) error {
	return s.repo.ResetSequence(ctx, table)
}
