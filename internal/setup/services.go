package setup

import (
	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/services/clock"
	"github.com/the127/resumable/internal/services/kv"
	"github.com/the127/resumable/internal/services/locking"
	"github.com/the127/resumable/internal/services/sessionToken"
	"github.com/the127/resumable/internal/services/uploads"
	"github.com/the127/resumable/internal/storageBackends"
)

func Clock(dc *ioc.DependencyCollection, clockService clock.Service) {
	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) clock.Service {
		return clockService
	})
}

// Services registers the upload machinery. Kv, Blob and Clock have to be
// registered as well.
func Services(dc *ioc.DependencyCollection, c config.SessionConfig) {
	locks := locking.NewService()
	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) locking.Service {
		return locks
	})

	ioc.RegisterSingleton(dc, func(dp *ioc.DependencyProvider) uploads.Service {
		return uploads.NewService(
			ioc.GetDependency[storageBackends.StorageBackend](dp),
			ioc.GetDependency[kv.Store](dp),
			c.Expiration,
		)
	})

	ioc.RegisterSingleton(dc, func(dp *ioc.DependencyProvider) sessionToken.Service {
		return sessionToken.NewService(c.SigningKey, c.Expiration, ioc.GetDependency[clock.Service](dp))
	})
}
