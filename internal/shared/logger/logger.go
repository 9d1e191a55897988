package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New monta o logger padrão dos serviços: JSON de produção (console em
// env=local), timestamps ISO8601 e os campos service/env em toda linha.
// Sampling fica desligado: o volume aqui é por aposta, não por request, e
// perder linha de liquidação custa caro num debug.
func New(serviceName string, env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{
		"service": serviceName,
		"env":     env,
	}

	return cfg.Build()
}
