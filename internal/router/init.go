package router

import (
	"github.com/oksasatya/authd/internal/application"
	"github.com/oksasatya/authd/internal/container"
	pginfra "github.com/oksasatya/authd/internal/infrastructure/postgres"
	handlers "github.com/oksasatya/authd/internal/interface/http"
	"github.com/oksasatya/authd/internal/router/modules"
	"github.com/oksasatya/authd/pkg/token"
)

// InitModules builds the auth service from the container singletons and
// registers every module. Called once during startup, after the container
// is populated.
func InitModules(r *Registry) {
	cfg := container.GetConfig()

	svc := &application.Service{
		Repo:         pginfra.NewUserRepository(container.GetPGPool()),
		JWT:          container.GetJWT(),
		Verify:       token.NewCodec(cfg.VerifyTokenTTL),
		Reset:        token.NewCodec(cfg.ResetTokenTTL),
		Cfg:          cfg,
		GCS:          container.GetGCS(),
		GCSBucket:    cfg.GCSBucket,
		Redis:        container.GetRedis(),
		Logger:       container.GetLogger(),
		ES:           container.GetES(),
		ESUsersIndex: cfg.ESUsersIndex,
	}
	// A nil concrete publisher must not end up inside the interface field.
	if pub := container.GetRabbitPub(); pub != nil {
		svc.Pub = pub
	}

	handler := handlers.NewAuthHandler(svc, container.GetLogger(), cfg, container.GetPGPool())

	r.Add(modules.NewAuthModule(handler, container.GetJWT()))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}
