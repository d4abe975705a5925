package badge

import (
	"reputation-engine/services/reputation"

	"go.uber.org/fx"
)

var Module = fx.Module("badge.service",
	fx.Provide(
		provideLedger,
		NewService,
	),
)

func provideLedger(svc *reputation.Service) Ledger {
	return svc
}
