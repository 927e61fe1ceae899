package record

import (
	"github.com/smallbiznis/coldline/internal/record/repository"
	"github.com/smallbiznis/coldline/internal/record/service"
	"go.uber.org/fx"
)

var Module = fx.Module("record.service",
	fx.Provide(repository.ProvidePrimaryStore),
	fx.Provide(service.NewService),
)
