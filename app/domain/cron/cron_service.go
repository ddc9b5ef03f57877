package cron

import (
	"context"
	"sync"

	"github.com/mileusna/crontab"
	"hydrogen.im/hydrogen-worker/app/domain/manifest"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

type ManifestLoader interface {
	Load() (*manifest.Manifest, error)
}

type Deployer interface {
	Deploy(ctx context.Context, m *manifest.Manifest) error
}

// CronService watches the manifest file and deploys every new build it
// finds there.
type CronService struct {
	Loader   ManifestLoader
	Deployer Deployer

	mu       sync.Mutex
	deployed string
}

func NewService(loader ManifestLoader, deployer Deployer) *CronService {
	return &CronService{
		Loader:   loader,
		Deployer: deployer,
	}
}

func (cs *CronService) Start(ctx context.Context, ctab *crontab.Crontab) {
	if err := cs.CheckManifest(ctx); err != nil {
		logger.GetLogger().Warnf("cron service: initial deploy failed: %v", err)
	}

	schedule := environment_variables.Current().MANIFEST_WATCH_SCHEDULE
	err := ctab.AddJob(schedule, func() {
		environment_variables.Reload()
		if err := cs.CheckManifest(ctx); err != nil {
			logger.GetLogger().Warnf("cron service: deploy failed: %v", err)
		}
	})
	if err != nil {
		logger.GetLogger().Errorf("cron service: invalid MANIFEST_WATCH_SCHEDULE %q: %v", schedule, err)
	}
}

// CheckManifest loads the manifest and deploys it when its build hash
// differs from the last one deployed.
func (cs *CronService) CheckManifest(ctx context.Context) error {
	m, err := cs.Loader.Load()
	if err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if m.BuildHash == cs.deployed {
		return nil
	}
	if err := cs.Deployer.Deploy(ctx, m); err != nil {
		return err
	}
	cs.deployed = m.BuildHash
	logger.GetLogger().Infof("cron service: deployed build %s (%s)", m.BuildHash, m.Version)
	return nil
}

func (cs *CronService) Deployed() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.deployed
}
