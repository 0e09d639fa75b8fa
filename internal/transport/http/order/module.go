package order

import "go.uber.org/fx"

// Module mounts the /orders routes on the shared Echo instance.
var Module = fx.Module("http_order",
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
