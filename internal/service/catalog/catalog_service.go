package catalog

import (
	"context"
	"fmt"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/avreline/repairbooking/internal/repository"
	"go.uber.org/zap"
)

type CatalogUseCase interface {
	ListDevices(ctx context.Context) ([]domain.Device, error)
	GetDevice(ctx context.Context, id string) (*domain.Device, error)
	CompatibleServices(ctx context.Context, device domain.Device) ([]domain.RepairService, error)
}

type DeviceCache interface {
	GetDevices(ctx context.Context) ([]domain.Device, error)
	SetDevices(ctx context.Context, devices []domain.Device) error
}

// SynthPricing drives the issue-to-service bridge: devices whose upstream
// record only carries free-text common issues get one synthesized service per
// issue, priced base + step*index.
type SynthPricing struct {
	BasePrice    float64
	PriceStep    float64
	Minutes      int
	WarrantyDays int
}

type CatalogService struct {
	repo   repository.CatalogRepository
	cache  DeviceCache
	synth  SynthPricing
	logger *zap.Logger
}

func NewCatalogService(repo repository.CatalogRepository, cache DeviceCache, synth SynthPricing, logger *zap.Logger) *CatalogService {
	return &CatalogService{repo: repo, cache: cache, synth: synth, logger: logger}
}

func (s *CatalogService) ListDevices(ctx context.Context) ([]domain.Device, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetDevices(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	devices, err := s.repo.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetDevices(ctx, devices)
	}
	return devices, nil
}

func (s *CatalogService) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	return s.repo.GetDevice(ctx, id)
}

// CompatibleServices returns the structured services covering the device's
// category. When the catalog has none but the device record carries upstream
// common issues, each issue is mapped 1:1 into a synthesized service with a
// deterministic ID and monotonically increasing price. Unknown categories
// yield an empty slice, not an error.
func (s *CatalogService) CompatibleServices(ctx context.Context, device domain.Device) ([]domain.RepairService, error) {
	services, err := s.repo.ListServicesForCategory(ctx, device.Category)
	if err != nil {
		return nil, err
	}
	if len(services) > 0 {
		return services, nil
	}
	if len(device.CommonIssues) == 0 {
		return []domain.RepairService{}, nil
	}

	s.logger.Debug("synthesizing services from device issues",
		zap.String("device_id", device.ID), zap.Int("issues", len(device.CommonIssues)))
	return s.synthesize(device), nil
}

func (s *CatalogService) synthesize(device domain.Device) []domain.RepairService {
	services := make([]domain.RepairService, 0, len(device.CommonIssues))
	for i, issue := range device.CommonIssues {
		services = append(services, domain.RepairService{
			ID:                    fmt.Sprintf("service-%s-%d", device.ID, i),
			Name:                  issue,
			Description:           fmt.Sprintf("Repair for: %s", issue),
			Category:              device.Category,
			BasePrice:             s.synth.BasePrice + s.synth.PriceStep*float64(i),
			EstimatedMinutes:      s.synth.Minutes,
			Difficulty:            device.Difficulty,
			WarrantyDays:          s.synth.WarrantyDays,
			CompatibleDeviceTypes: []string{device.Category},
		})
	}
	return services
}

var _ CatalogUseCase = (*CatalogService)(nil)
