package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) writeConfig(content string) string {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ConfigTestSuite) TestDefaults() {
	// arrange

	// act
	c, err := Load("")

	// assert
	s.Require().NoError(err)
	s.Equal(9023, c.Server.Port)
	s.Equal("http://localhost:9023", c.Server.ExternalUrl)
	s.Equal(c.Server.ExternalUrl, c.Client.Endpoint)
	s.Equal(8*1024*1024, c.Client.ChunkSize)
	s.Equal(10, c.Retry.MaxFailures)
	s.Equal(10*time.Minute, c.Retry.MaxDuration)
	s.Equal(time.Second, c.Backoff.InitialDelay)
	s.Equal(5*time.Minute, c.Backoff.MaxDelay)
	s.Equal(2.0, c.Backoff.Scaling)
	s.Equal(64, c.Parallel.MaxStreams)
	s.Equal(int64(64*1024*1024), c.Parallel.MinStreamSize)
	s.Equal(DatabaseModeInMemory, c.Database.Mode)
	s.Equal(KvModeInMemory, c.Kv.Mode)
	s.Equal(BlobStorageModeInMemory, c.Blob.Mode)
	s.NotEmpty(c.Session.SigningKey)
	s.Equal(7*24*time.Hour, c.Session.Expiration)
}

func (s *ConfigTestSuite) TestFileValues() {
	// arrange
	path := s.writeConfig(`
server:
  port: 8080
  host: emulator
retry:
  maxFailures: 3
  maxDuration: 30s
database:
  mode: postgres
`)

	// act
	c, err := Load(path)

	// assert
	s.Require().NoError(err)
	s.Equal(8080, c.Server.Port)
	s.Equal("http://emulator:8080", c.Server.ExternalUrl)
	s.Equal(3, c.Retry.MaxFailures)
	s.Equal(30*time.Second, c.Retry.MaxDuration)
	s.Equal(DatabaseModePostgres, c.Database.Mode)
	s.Equal("localhost", c.Database.Postgres.Host)
	s.Equal(5432, c.Database.Postgres.Port)
	s.Equal("disable", c.Database.Postgres.SslMode)
}

func (s *ConfigTestSuite) TestEnvironmentOverridesFile() {
	// arrange
	path := s.writeConfig(`
server:
  port: 8080
`)
	s.T().Setenv("RESUMABLE_SERVER_PORT", "9999")
	s.T().Setenv("RESUMABLE_SERVER_ALLOWEDORIGINS", "http://a http://b")

	// act
	c, err := Load(path)

	// assert
	s.Require().NoError(err)
	s.Equal(9999, c.Server.Port)
	s.Equal([]string{"http://a", "http://b"}, c.Server.AllowedOrigins)
}

func (s *ConfigTestSuite) TestMissingFile() {
	// arrange
	path := filepath.Join(s.T().TempDir(), "missing.yaml")

	// act
	_, err := Load(path)

	// assert
	s.Error(err)
}

func (s *ConfigTestSuite) TestChunkSizeMustBeQuantumMultiple() {
	// arrange
	path := s.writeConfig(`
client:
  chunkSize: 1000
`)

	// act & assert
	s.Panics(func() {
		_, _ = Load(path)
	})
}

func (s *ConfigTestSuite) TestDirectoryBlobStorageNeedsPath() {
	// arrange
	path := s.writeConfig(`
blob:
  mode: directory
`)

	// act & assert
	s.Panics(func() {
		_, _ = Load(path)
	})
}

func (s *ConfigTestSuite) TestUnknownDatabaseMode() {
	// arrange
	path := s.writeConfig(`
database:
  mode: sqlite
`)

	// act & assert
	s.Panics(func() {
		_, _ = Load(path)
	})
}
