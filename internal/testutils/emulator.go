package testutils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/The127/ioc"
	"github.com/stretchr/testify/require"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/server"
	"github.com/the127/resumable/internal/services/clock"
	"github.com/the127/resumable/internal/setup"
	"github.com/the127/resumable/internal/storage/rest"
)

// Emulator is an in-memory storage service listening on a local port.
type Emulator struct {
	Server   *httptest.Server
	Provider *ioc.DependencyProvider
	SetTime  clock.TimeSetterFn
}

func NewEmulator(t testing.TB) *Emulator {
	t.Helper()

	dc := ioc.NewDependencyCollection()

	database := setup.Database(dc, config.DatabaseConfig{Mode: config.DatabaseModeInMemory})
	require.NoError(t, database.Migrate())

	clockService, setTime := clock.NewMockService(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	setup.Clock(dc, clockService)
	setup.Kv(dc, config.KvConfig{Mode: config.KvModeInMemory})
	setup.Blob(dc, config.BlobStorageConfig{Mode: config.BlobStorageModeInMemory})
	setup.Services(dc, config.SessionConfig{
		SigningKey: "emulator-test-key",
		Expiration: time.Hour,
	})
	setup.Mediator(dc)

	dp := dc.BuildProvider()
	srv := httptest.NewServer(server.NewHandler(dp, config.ServerConfig{}))
	t.Cleanup(srv.Close)

	return &Emulator{
		Server:   srv,
		Provider: dp,
		SetTime:  setTime,
	}
}

func (e *Emulator) Endpoint() string {
	return e.Server.URL
}

// RawClient talks to the emulator, sending extraHeaders with every request.
func (e *Emulator) RawClient(extraHeaders map[string]string) *rest.Client {
	return rest.NewClient(rest.Options{
		Endpoint:     e.Server.URL,
		ExtraHeaders: extraHeaders,
	})
}
