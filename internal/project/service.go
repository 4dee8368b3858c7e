package project

import (
	"context"
	"fmt"

	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/models"
)

type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

type CreateInput struct {
	Name                string
	Description         string
	Tags                []string
	DefaultLLMModel     string
	DefaultSystemPrompt string
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*models.Project, error) {
	if in.Name == "" || len(in.Name) > 255 {
		return nil, fmt.Errorf("%w: name must be 1-255 characters", common.ErrInvalid)
	}

	p := &models.Project{
		UserID:              userID,
		Name:                in.Name,
		Description:         nullable(in.Description),
		Tags:                in.Tags,
		DefaultLLMModel:     nullable(in.DefaultLLMModel),
		DefaultSystemPrompt: nullable(in.DefaultSystemPrompt),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (*models.Project, error) {
	return s.repo.Get(ctx, id, userID)
}

func (s *Service) List(ctx context.Context, userID string) ([]models.Project, error) {
	return s.repo.List(ctx, userID)
}

func (s *Service) Update(ctx context.Context, id, userID string, patch Patch) (*models.Project, error) {
	if patch.Name != nil && (*patch.Name == "" || len(*patch.Name) > 255) {
		return nil, fmt.Errorf("%w: name must be 1-255 characters", common.ErrInvalid)
	}
	return s.repo.Update(ctx, id, userID, patch)
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return s.repo.Delete(ctx, id, userID)
}
