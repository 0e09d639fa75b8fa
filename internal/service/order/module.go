package order

import "go.uber.org/fx"

// Module provides the order service, which the HTTP handlers and the cache
// eviction workers share.
var Module = fx.Module("service_order", fx.Provide(NewService))
