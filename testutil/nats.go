package testutil

import (
	"os"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
)

// NewNatsServer starts an in-process JetStream-enabled server for
// provider tests. Pass -1 to let the server pick a free port.
func NewNatsServer(port int) *server.Server {
	opts := natsserver.DefaultTestOptions
	opts.Port = port
	opts.JetStream = true
	return natsserver.RunServer(&opts)
}

// ShutdownNatsServer stops the server and removes its JetStream store
// directory.
func ShutdownNatsServer(s *server.Server) {
	var storeDir string
	if c := s.JetStreamConfig(); c != nil {
		storeDir = c.StoreDir
	}
	s.Shutdown()
	if storeDir != "" {
		os.RemoveAll(storeDir)
	}
	s.WaitForShutdown()
}
