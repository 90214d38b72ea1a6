package logger

import (
	"go.uber.org/zap"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// New builds a zap logger suited to environment.
func New(environment string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	switch environment {
	case EnvProduction:
		l, err = zap.NewProduction()
	case EnvTest:
		l = zap.NewExample()
	default:
		l, err = zap.NewDevelopment()
	}
	return l, err
}
