package server

import (
	"resumable-upload-core/pkg/coordinator"
	"resumable-upload-core/pkg/logging"
)

// Config wires a Server's dependencies together.
type Config struct {
	ServerID    string
	Coordinator *coordinator.Coordinator
	Logger      *logging.Logger
}
